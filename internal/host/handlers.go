package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"serpcompanion/internal/config"
	"serpcompanion/internal/deps"
	"serpcompanion/internal/events"
	"serpcompanion/internal/jobs"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

type handlers struct {
	cfg     *config.Config
	sup     *jobs.Supervisor
	emitter events.Emitter
	opener  Opener
	picker  FolderPicker
	probe   func(ctx context.Context) []deps.Status
	version string
	logger  *slog.Logger
}

func (h *handlers) register(d *Dispatcher) {
	d.Handle(protocol.TypePing, h.ping)
	d.HandleAsync(protocol.TypeInfo, h.info)
	d.Handle(protocol.TypeOpenLog, h.openLog)
	d.HandleAsync(protocol.TypePickFolder, h.pickFolder)
	d.Handle(protocol.TypeStart, h.start)
	d.Handle(protocol.TypeCancel, h.cancel)
}

func (h *handlers) ping(context.Context, *Call) (any, error) {
	return map[string]any{"status": "ok"}, nil
}

func (h *handlers) info(ctx context.Context, _ *Call) (any, error) {
	result := map[string]any{
		"version":        h.version,
		"go":             runtime.Version(),
		"platform":       runtime.GOOS + "/" + runtime.GOARCH,
		"python":         h.cfg.Downloader.Python,
		"main_py":        h.cfg.Downloader.Script,
		"main_py_exists": fileExists(h.cfg.Downloader.Script),
		"packaged_exe":   nil,
		"downloader":     nil,
		"root":           h.cfg.Paths.Root,
		"logDir":         h.cfg.Paths.LogDir,
		"toolsDir":       h.cfg.Paths.ToolsDir,
		"activeJob":      nil,
	}
	if fileExists(h.cfg.Downloader.PackagedExe) {
		result["packaged_exe"] = h.cfg.Downloader.PackagedExe
	}
	if dl, err := jobs.ResolveDownloader(h.cfg); err == nil {
		result["downloader"] = dl.Kind
	}
	for _, job := range h.sup.Jobs() {
		if job.State.Active() {
			result["activeJob"] = job.ID
		}
	}
	for _, status := range h.probe(ctx) {
		result[status.Key] = status.Version
	}
	return result, nil
}

type openLogPayload struct {
	Path  string `json:"path"`
	JobID string `json:"jobId"`
}

func (h *handlers) openLog(ctx context.Context, call *Call) (any, error) {
	var payload openLogPayload
	if err := call.Decode(&payload); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(payload.Path)
	if path == "" && strings.TrimSpace(payload.JobID) != "" {
		path = h.cfg.JobLogPath(strings.TrimSpace(payload.JobID), 1)
	}
	if path == "" {
		return nil, errors.New("missing_path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("not_found:%s", path)
	}
	if err := h.opener.Open(ctx, path); err != nil {
		return nil, fmt.Errorf("open_failed:%v", err)
	}
	return map[string]any{"opened": path}, nil
}

type pickFolderPayload struct {
	StartIn string `json:"startIn"`
}

func (h *handlers) pickFolder(ctx context.Context, call *Call) (any, error) {
	var payload pickFolderPayload
	if err := call.Decode(&payload); err != nil {
		return nil, err
	}
	path, ok, err := h.picker.PickFolder(ctx, strings.TrimSpace(payload.StartIn))
	if err != nil {
		return nil, fmt.Errorf("pick_failed:%v", err)
	}
	if !ok {
		return map[string]any{}, nil
	}
	return map[string]any{"path": path}, nil
}

func (h *handlers) start(ctx context.Context, call *Call) (any, error) {
	var opts jobs.StartOptions
	if err := call.Decode(&opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.CourseURL) == "" {
		return nil, &jobs.MissingFieldError{Code: "missing_course_url"}
	}

	var prepare jobs.Prepare
	if opts.CookiesTxt != "" {
		// Cookies are written only once admission succeeded, so a rejected
		// start never replaces the file a running job reads.
		prepare = func(o *jobs.StartOptions) {
			h.writeCookies(ctx, call, o)
		}
	}

	ticket, err := h.sup.StartWith(opts, prepare)
	if ticket != nil {
		call.AfterReply(ticket.Release)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"jobId": ticket.Job.ID}, nil
}

// writeCookies writes the request's cookies.txt and points the downloader at
// it. A failed write leaves the browser choice untouched.
func (h *handlers) writeCookies(ctx context.Context, call *Call, opts *jobs.StartOptions) {
	path := h.cfg.CookiesPath()
	size, err := saveCookies(path, opts.CookiesTxt)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "cookies not saved", "cookies_save_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "downloader falls back to its browser cookie mode"),
		)
		call.AfterReply(func() {
			h.emitter.Emit(protocol.EventCookiesSaveFailed, protocol.Fields{"error": err.Error()})
		})
		return
	}
	browser := "file"
	opts.Browser = &browser
	call.AfterReply(func() {
		h.emitter.Emit(protocol.EventCookiesSaved, protocol.Fields{"path": path, "bytes": size})
	})
}

type cancelPayload struct {
	JobID string `json:"jobId"`
}

func (h *handlers) cancel(_ context.Context, call *Call) (any, error) {
	var payload cancelPayload
	if err := call.Decode(&payload); err != nil {
		return nil, err
	}
	jobID := strings.TrimSpace(payload.JobID)
	if jobID == "" {
		return nil, jobs.ErrUnknownJob
	}
	ticket, err := h.sup.Cancel(jobID)
	if err != nil {
		return nil, err
	}
	call.AfterReply(ticket.Release)
	return map[string]any{"jobId": jobID}, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
