package model

type TemplateSource string

const (
	SourceBuiltin  TemplateSource = "builtin"
	SourceCustom   TemplateSource = "custom"
	SourceExternal TemplateSource = "external"
)

// DefaultCategory is assigned to templates loaded from documents that carry
// no category of their own.
const DefaultCategory = "General"

// Template is one named, categorized task template. Identity for lookup and
// override is the (Name, Category) pair.
type Template struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	Task        Envelope       `json:"task"`
	Source      TemplateSource `json:"source,omitempty"`
}

type TemplateKey struct {
	Name     string
	Category string
}

func (t Template) Key() TemplateKey {
	return TemplateKey{Name: t.Name, Category: t.Category}
}

// CustomTemplatesDoc is the persisted shape of the custom tier. Every
// mutation rewrites the whole document.
type CustomTemplatesDoc struct {
	Templates []Template `json:"templates"`
}
