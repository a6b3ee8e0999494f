package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/msageha/overseer/internal/ipc"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
	"github.com/msageha/overseer/internal/schedule"
	"github.com/msageha/overseer/internal/status"
	"github.com/msageha/overseer/internal/template"
)

// registerHandlers registers one IPC handler per CLI command. Every handler
// delegates to the same component the direct CLI path uses, so the two paths
// cannot diverge in behavior.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *ipc.Request) *ipc.Response {
		return ipc.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("version", func(req *ipc.Request) *ipc.Response {
		return ipc.SuccessResponse(map[string]any{
			"version":          Version,
			"protocol_version": ipc.ProtocolVersion,
		})
	})

	d.server.Handle("shutdown", func(req *ipc.Request) *ipc.Response {
		d.log(LogLevelInfo, "shutdown requested via IPC")
		go d.Shutdown()
		return ipc.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	d.server.Handle("status", d.handleStatus)
	d.server.Handle("enqueue", d.handleEnqueue)

	d.server.Handle("queue_list", d.handleQueueList)
	d.server.Handle("queue_retry", d.handleQueueRetry)
	d.server.Handle("queue_retry_all", d.handleQueueRetryAll)
	d.server.Handle("queue_delete", d.handleQueueDelete)
	d.server.Handle("queue_edit_retry", d.handleQueueEditRetry)
	d.server.Handle("queue_read", d.handleQueueRead)
	d.server.Handle("queue_depths", d.handleQueueDepths)

	d.server.Handle("breaker_list", d.handleBreakerList)
	d.server.Handle("breaker_force_close", d.handleBreakerForceClose)

	d.server.Handle("metrics_summary", d.handleMetricsSummary)
	d.server.Handle("metrics_export", d.handleMetricsExport)

	d.server.Handle("templates_list", d.handleTemplatesList)
	d.server.Handle("templates_grouped", d.handleTemplatesGrouped)
	d.server.Handle("templates_get", d.handleTemplatesGet)
	d.server.Handle("templates_save", d.handleTemplatesSave)
	d.server.Handle("templates_delete", d.handleTemplatesDelete)
	d.server.Handle("templates_load_external", d.handleTemplatesLoadExternal)

	d.server.Handle("schedule_add", d.handleScheduleAdd)
	d.server.Handle("schedule_remove", d.handleScheduleRemove)
	d.server.Handle("schedule_enable", d.handleScheduleEnable)
	d.server.Handle("schedule_list", d.handleScheduleList)

	d.server.Handle("worker_heartbeat", d.handleWorkerHeartbeat)
	d.server.Handle("worker_running", d.handleWorkerRunning)
	d.server.Handle("worker_stop", d.handleWorkerStop)
	d.server.Handle("worker_clear_stop", d.handleWorkerClearStop)

	d.server.Handle("tail_since", d.handleTailSince)
}

// decodeParams unmarshals request params into v, returning a validation
// error response on malformed input. Absent params decode to zero values;
// per-field validation in each handler reports what is actually missing.
func decodeParams(req *ipc.Request, v any) *ipc.Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

// errorResponse maps component sentinel errors onto IPC error codes.
func errorResponse(err error) *ipc.Response {
	switch {
	case errors.Is(err, queue.ErrValidation),
		errors.Is(err, template.ErrValidation),
		errors.Is(err, schedule.ErrValidation):
		return ipc.ErrorResponse(ipc.ErrCodeValidation, err.Error())
	case errors.Is(err, queue.ErrNotFound),
		errors.Is(err, template.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound):
		return ipc.ErrorResponse(ipc.ErrCodeNotFound, err.Error())
	case errors.Is(err, template.ErrNotPermitted):
		return ipc.ErrorResponse(ipc.ErrCodeNotPermitted, err.Error())
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return ipc.ErrorResponse(ipc.ErrCodeIO, err.Error())
	default:
		return ipc.ErrorResponse(ipc.ErrCodeInternal, err.Error())
	}
}

func (d *Daemon) handleStatus(req *ipc.Request) *ipc.Response {
	snapshot := status.CollectWith(d.roots, d.config, status.DaemonStatus{
		Running: true,
		Pid:     strconv.Itoa(os.Getpid()),
	})
	return ipc.SuccessResponse(snapshot)
}

// EnqueueParams is the request payload for the enqueue command. Either a
// template reference or a literal task is given, not both.
type EnqueueParams struct {
	Template string          `json:"template,omitempty"`
	Category string          `json:"category,omitempty"`
	Task     *model.Envelope `json:"task,omitempty"`
}

func (d *Daemon) handleEnqueue(req *ipc.Request) *ipc.Response {
	var params EnqueueParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	var env model.Envelope
	switch {
	case params.Template != "":
		if params.Category == "" {
			params.Category = model.DefaultCategory
		}
		tmpl, ok := d.catalog.Get(params.Template, params.Category)
		if !ok {
			return ipc.ErrorResponse(ipc.ErrCodeNotFound,
				fmt.Sprintf("template not found: %s/%s", params.Category, params.Template))
		}
		env = tmpl.Task
		env.ID = "" // fresh task id per enqueue
	case params.Task != nil:
		env = *params.Task
	default:
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "template or task is required")
	}

	env, path, err := d.queues.Enqueue(env)
	if err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "enqueued %s tool=%s", env.ID, env.Tool)
	return ipc.SuccessResponse(map[string]string{"id": env.ID, "path": path})
}

// QueueListParams selects a state directory to enumerate.
type QueueListParams struct {
	State string `json:"state"`
	Limit int    `json:"limit,omitempty"`
}

func (d *Daemon) handleQueueList(req *ipc.Request) *ipc.Response {
	var params QueueListParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	state, err := model.ParseQueueState(params.State)
	if err != nil {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, err.Error())
	}

	entries, err := d.queues.List(state, params.Limit)
	if err != nil {
		return errorResponse(err)
	}
	return ipc.SuccessResponse(map[string]any{
		"state":   params.State,
		"entries": entries,
	})
}

// PathsParams carries the file arguments of bulk queue operations.
type PathsParams struct {
	Paths []string `json:"paths"`
}

func (d *Daemon) handleQueueRetry(req *ipc.Request) *ipc.Response {
	var params PathsParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if len(params.Paths) == 0 {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "paths are required")
	}

	res := d.queues.Retry(params.Paths)
	d.log(LogLevelInfo, "retried %d envelope(s), %d failed", res.Moved, len(res.Failed))
	return ipc.SuccessResponse(res)
}

// RetryAllParams names the source states; empty means failed only.
type RetryAllParams struct {
	States []string `json:"states,omitempty"`
}

func (d *Daemon) handleQueueRetryAll(req *ipc.Request) *ipc.Response {
	var params RetryAllParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	states := []model.QueueState{model.StateFailed}
	if len(params.States) > 0 {
		states = states[:0]
		for _, raw := range params.States {
			state, err := model.ParseQueueState(raw)
			if err != nil {
				return ipc.ErrorResponse(ipc.ErrCodeValidation, err.Error())
			}
			if state == model.StateInbox {
				return ipc.ErrorResponse(ipc.ErrCodeValidation, "cannot retry from inbox")
			}
			states = append(states, state)
		}
	}

	res := d.queues.RetryAll(states)
	d.log(LogLevelInfo, "retry-all moved %d envelope(s), %d failed", res.Moved, len(res.Failed))
	return ipc.SuccessResponse(res)
}

func (d *Daemon) handleQueueDelete(req *ipc.Request) *ipc.Response {
	var params PathsParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if len(params.Paths) == 0 {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "paths are required")
	}

	res := d.queues.Delete(params.Paths)
	d.log(LogLevelInfo, "deleted %d envelope(s), %d failed", res.Deleted, len(res.Failed))
	return ipc.SuccessResponse(res)
}

// EditRetryParams carries the replacement text for one envelope.
type EditRetryParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (d *Daemon) handleQueueEditRetry(req *ipc.Request) *ipc.Response {
	var params EditRetryParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Path == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "path is required")
	}

	dst, err := d.queues.EditAndRetry(params.Path, []byte(params.Content))
	if err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "edited %s, requeued as %s", params.Path, dst)
	return ipc.SuccessResponse(map[string]string{"path": dst})
}

// PathParams names a single envelope file.
type PathParams struct {
	Path string `json:"path"`
}

func (d *Daemon) handleQueueRead(req *ipc.Request) *ipc.Response {
	var params PathParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Path == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "path is required")
	}

	content, err := d.queues.Read(params.Path)
	if err != nil {
		return errorResponse(err)
	}
	return ipc.SuccessResponse(map[string]string{
		"path":    params.Path,
		"content": content,
	})
}

func (d *Daemon) handleQueueDepths(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(d.queues.Depths())
}

func (d *Daemon) handleBreakerList(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(map[string]any{"breakers": d.breakers.Read()})
}

// ToolsParams names the breakers to force-close.
type ToolsParams struct {
	Tools []string `json:"tools"`
}

func (d *Daemon) handleBreakerForceClose(req *ipc.Request) *ipc.Response {
	var params ToolsParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if len(params.Tools) == 0 {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "tools are required")
	}

	closed, err := d.breakers.ForceClose(params.Tools)
	if err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "force-closed %d breaker(s)", closed)
	return ipc.SuccessResponse(map[string]int{"closed": closed})
}

// MetricsParams bounds the ledger read; zero means the configured tail.
type MetricsParams struct {
	Tail int `json:"tail,omitempty"`
}

func (d *Daemon) handleMetricsSummary(req *ipc.Request) *ipc.Response {
	var params MetricsParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Tail <= 0 {
		params.Tail = d.config.Metrics.LedgerTailLines
	}

	summary, err := d.metrics.Summarize(params.Tail)
	if err != nil {
		return errorResponse(err)
	}
	return ipc.SuccessResponse(summary)
}

func (d *Daemon) handleMetricsExport(req *ipc.Request) *ipc.Response {
	var params MetricsParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Tail <= 0 {
		params.Tail = d.config.Metrics.LedgerTailLines
	}

	var buf bytes.Buffer
	if err := d.metrics.ExportCSV(&buf, params.Tail); err != nil {
		return errorResponse(err)
	}
	return ipc.SuccessResponse(map[string]string{"csv": buf.String()})
}

func (d *Daemon) handleTemplatesList(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(map[string]any{"templates": d.catalog.List()})
}

func (d *Daemon) handleTemplatesGrouped(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(map[string]any{"groups": d.catalog.Grouped()})
}

// TemplateRefParams names a template by its identity pair.
type TemplateRefParams struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

func (d *Daemon) handleTemplatesGet(req *ipc.Request) *ipc.Response {
	var params TemplateRefParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Name == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "name is required")
	}
	if params.Category == "" {
		params.Category = model.DefaultCategory
	}

	tmpl, ok := d.catalog.Get(params.Name, params.Category)
	if !ok {
		return ipc.ErrorResponse(ipc.ErrCodeNotFound,
			fmt.Sprintf("template not found: %s/%s", params.Category, params.Name))
	}
	return ipc.SuccessResponse(tmpl)
}

// TemplateSaveParams wraps the template to upsert into the custom tier.
type TemplateSaveParams struct {
	Template model.Template `json:"template"`
}

func (d *Daemon) handleTemplatesSave(req *ipc.Request) *ipc.Response {
	var params TemplateSaveParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	if err := d.catalog.Save(params.Template); err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "template %q saved", params.Template.Name)
	return ipc.SuccessResponse(map[string]string{"status": "saved"})
}

func (d *Daemon) handleTemplatesDelete(req *ipc.Request) *ipc.Response {
	var params TemplateRefParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Name == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "name is required")
	}

	if err := d.catalog.Delete(params.Name, params.Category); err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "template %q deleted", params.Name)
	return ipc.SuccessResponse(map[string]string{"status": "deleted"})
}

func (d *Daemon) handleTemplatesLoadExternal(req *ipc.Request) *ipc.Response {
	var params PathParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Path == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "path is required")
	}

	loaded, err := d.catalog.LoadExternal(params.Path)
	if err != nil {
		return errorResponse(err)
	}

	d.log(LogLevelInfo, "loaded %d external template(s) from %s", loaded, params.Path)
	return ipc.SuccessResponse(map[string]int{"loaded": loaded})
}

// ScheduleAddParams creates one recurring schedule.
type ScheduleAddParams struct {
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	EveryMinutes int    `json:"every_minutes"`
}

func (d *Daemon) handleScheduleAdd(req *ipc.Request) *ipc.Response {
	var params ScheduleAddParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	sched, err := d.schedules.Add(params.Name, params.Category, params.EveryMinutes)
	if err != nil {
		return errorResponse(err)
	}

	d.scheduler.Sync()
	d.log(LogLevelInfo, "schedule %s added: %q every %dm", sched.ID, sched.Name, sched.EveryMinutes)
	return ipc.SuccessResponse(sched)
}

// ScheduleIDParams names a schedule by id.
type ScheduleIDParams struct {
	ID string `json:"id"`
}

func (d *Daemon) handleScheduleRemove(req *ipc.Request) *ipc.Response {
	var params ScheduleIDParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.ID == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "id is required")
	}

	if err := d.schedules.Remove(params.ID); err != nil {
		return errorResponse(err)
	}

	d.scheduler.Sync()
	d.log(LogLevelInfo, "schedule %s removed", params.ID)
	return ipc.SuccessResponse(map[string]string{"status": "removed"})
}

// ScheduleEnableParams toggles a schedule.
type ScheduleEnableParams struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

func (d *Daemon) handleScheduleEnable(req *ipc.Request) *ipc.Response {
	var params ScheduleEnableParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.ID == "" {
		return ipc.ErrorResponse(ipc.ErrCodeValidation, "id is required")
	}

	if err := d.schedules.Enable(params.ID, params.Enabled); err != nil {
		return errorResponse(err)
	}

	d.scheduler.Sync()
	verb := "disabled"
	if params.Enabled {
		verb = "enabled"
	}
	d.log(LogLevelInfo, "schedule %s %s", params.ID, verb)
	return ipc.SuccessResponse(map[string]string{"status": verb})
}

func (d *Daemon) handleScheduleList(req *ipc.Request) *ipc.Response {
	schedules, err := d.schedules.List()
	if err != nil {
		return errorResponse(err)
	}
	return ipc.SuccessResponse(map[string]any{"schedules": schedules})
}

func (d *Daemon) handleWorkerHeartbeat(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(d.worker.Heartbeat())
}

func (d *Daemon) handleWorkerRunning(req *ipc.Request) *ipc.Response {
	return ipc.SuccessResponse(map[string]any{"tasks": d.worker.RunningTasks()})
}

func (d *Daemon) handleWorkerStop(req *ipc.Request) *ipc.Response {
	if err := d.worker.RequestStop(); err != nil {
		return errorResponse(err)
	}
	d.log(LogLevelInfo, "worker stop requested")
	return ipc.SuccessResponse(map[string]string{"status": "stop_requested"})
}

func (d *Daemon) handleWorkerClearStop(req *ipc.Request) *ipc.Response {
	if err := d.worker.ClearStop(); err != nil {
		return errorResponse(err)
	}
	d.log(LogLevelInfo, "worker stop cleared")
	return ipc.SuccessResponse(map[string]string{"status": "stop_cleared"})
}

// TailSinceParams asks for buffered log lines after a sequence number; zero
// returns the whole buffer.
type TailSinceParams struct {
	Since int64 `json:"since,omitempty"`
}

func (d *Daemon) handleTailSince(req *ipc.Request) *ipc.Response {
	var params TailSinceParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	lines, lastSeq := d.tailSince(params.Since)
	return ipc.SuccessResponse(map[string]any{
		"lines":    lines,
		"last_seq": lastSeq,
	})
}
