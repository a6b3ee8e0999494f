// Package tail incrementally streams newly appended lines from a text file
// that may be rotated or truncated underneath it. One Tailer owns one
// position/identity pair; drive it from a single goroutine.
package tail

import (
	"io"
	"os"
	"strings"
	"unicode"
)

// identity names the physical file behind a path: device plus inode where
// the platform exposes one, device plus size otherwise. The size fallback
// misreads ordinary growth as rotation; that limitation is inherited and
// documented rather than papered over.
type identity struct {
	dev   uint64
	ino   uint64
	size  int64
	inode bool
}

func (a identity) sameFile(b identity) bool {
	if a.inode && b.inode {
		return a.dev == b.dev && a.ino == b.ino
	}
	return a.dev == b.dev && a.size == b.size
}

// Tailer reads a growing file in increments, never re-emitting seen lines.
type Tailer struct {
	path     string
	position int64
	identity identity
	started  bool
}

func New(path string) *Tailer {
	return &Tailer{path: path}
}

// Poll reads everything appended since the previous call and returns it as
// one batch of non-empty lines. An absent target or any I/O error yields an
// empty batch; the next poll retries from the last known good state.
func (t *Tailer) Poll() []string {
	info, err := os.Stat(t.path)
	if err != nil {
		return nil
	}

	id, ok := identityOf(t.path, info)
	if !ok {
		return nil
	}
	// Rotation or truncation: new physical file, or the file shrank below
	// what we already consumed.
	if !t.started || !id.sameFile(t.identity) || info.Size() < t.position {
		t.position = 0
	}
	t.identity = id
	t.started = true

	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	if _, err := f.Seek(t.position, io.SeekStart); err != nil {
		return nil
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	t.position += int64(len(chunk))

	if len(chunk) == 0 {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(string(chunk), "\n") {
		trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}

// Severity is the display class of one log line.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityOK    Severity = "ok"
	SeverityPlain Severity = "plain"
)

// Classify assigns a display severity from line content heuristics.
func Classify(line string) Severity {
	low := strings.ToLower(line)
	switch {
	case strings.Contains(low, "error"),
		strings.Contains(low, " fail "),
		strings.HasSuffix(low, " fail"),
		strings.Contains(low, "timeout"):
		return SeverityError
	case strings.Contains(low, "warn"):
		return SeverityWarn
	case strings.Contains(low, "ok"), strings.Contains(low, "success"):
		return SeverityOK
	default:
		return SeverityPlain
	}
}

// MatchesTool reports whether a log line mentions the tool: "[tool]",
// "tool:" or a bare " tool " token, case-insensitive.
func MatchesTool(line, tool string) bool {
	if tool == "" {
		return true
	}
	low := strings.ToLower(line)
	tl := strings.ToLower(tool)
	return strings.Contains(low, "["+tl+"]") ||
		strings.Contains(low, tl+":") ||
		strings.Contains(low, " "+tl+" ")
}

// MatchesText is the case-insensitive substring filter.
func MatchesText(line, text string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(line), strings.ToLower(text))
}
