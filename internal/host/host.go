package host

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"serpcompanion/internal/config"
	"serpcompanion/internal/deps"
	"serpcompanion/internal/events"
	"serpcompanion/internal/frame"
	"serpcompanion/internal/jobs"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// Options supplies the host's collaborators. Zero values select the real
// implementations.
type Options struct {
	Version  string
	Launcher jobs.Launcher
	Recorder jobs.Recorder
	Opener   Opener
	Picker   FolderPicker
	Probe    func(ctx context.Context) []deps.Status
}

// Host owns the publisher, the supervisor and the dispatch loop for one
// browser connection.
type Host struct {
	cfg        *config.Config
	logger     *slog.Logger
	reader     *frame.Reader
	publisher  *events.Publisher
	supervisor *jobs.Supervisor
	dispatcher *Dispatcher
	version    string
}

// New wires a host reading requests from in and writing frames to out.
func New(cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger, opts Options) *Host {
	logger = logging.NewComponentLogger(logger, "host")
	pub := events.New(frame.NewWriter(out), events.Options{
		Capacity: cfg.Host.QueueCapacity,
		Poll:     cfg.WriterPoll(),
		Logger:   logger,
	})

	var supOpts []jobs.Option
	if opts.Launcher != nil {
		supOpts = append(supOpts, jobs.WithLauncher(opts.Launcher))
	}
	if opts.Recorder != nil {
		supOpts = append(supOpts, jobs.WithRecorder(opts.Recorder))
	}
	sup := jobs.NewSupervisor(cfg, pub, logger, supOpts...)

	if opts.Opener == nil {
		opts.Opener = systemOpener{}
	}
	if opts.Picker == nil {
		opts.Picker = dialogPicker{}
	}
	if opts.Probe == nil {
		opts.Probe = func(ctx context.Context) []deps.Status {
			return deps.CheckBinaries(ctx, deps.DownloaderRequirements(), deps.Options{
				SearchDirs: []string{cfg.Paths.ToolsDir},
				Timeout:    cfg.ProbeTimeout(),
			})
		}
	}

	dispatcher := NewDispatcher(pub, logger)
	(&handlers{
		cfg:     cfg,
		sup:     sup,
		emitter: pub,
		opener:  opts.Opener,
		picker:  opts.Picker,
		probe:   opts.Probe,
		version: opts.Version,
		logger:  logger,
	}).register(dispatcher)

	return &Host{
		cfg:        cfg,
		logger:     logger,
		reader:     frame.NewReader(in),
		publisher:  pub,
		supervisor: sup,
		dispatcher: dispatcher,
		version:    opts.Version,
	}
}

// Run serves requests until the input stream ends or ctx is canceled, then
// tears down jobs and flushes pending frames.
func (h *Host) Run(ctx context.Context) error {
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return h.publisher.Run(writerCtx)
	})
	group.Go(func() error {
		defer stopWriter()
		h.announce()
		h.serve(groupCtx)
		h.shutdown()
		return nil
	})
	return group.Wait()
}

func (h *Host) announce() {
	if removed := logging.PruneJobLogs(h.logger, h.cfg.Paths.LogDir, h.cfg.HostLogPath(), h.cfg.Logging.RetentionDays); removed > 0 {
		h.logger.Info("pruned old job logs", logging.Int("removed", removed))
	}
	h.publisher.Emit(protocol.EventHostReady, protocol.Fields{
		"root":    h.cfg.Paths.Root,
		"logDir":  h.cfg.Paths.LogDir,
		"version": h.version,
		"pid":     os.Getpid(),
	})
	if _, err := jobs.ResolveDownloader(h.cfg); err != nil {
		logging.WarnWithContext(h.logger, "downloader not found", "downloader_missing",
			logging.Error(err),
			logging.String(logging.FieldImpact, "start requests will fail"),
			logging.String(logging.FieldErrorHint, "set downloader.command or install the downloader under the root"),
		)
		h.publisher.Emit(protocol.EventHostDiagnostic, protocol.Fields{
			"error":  jobs.WireError(err),
			"detail": err.Error(),
		})
	}
	h.logger.Info("host ready",
		logging.String("root", h.cfg.Paths.Root),
		logging.String("version", h.version),
	)
}

// serve runs the read loop on its own goroutine so a canceled context can end
// the host while a read is still blocked.
func (h *Host) serve(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req protocol.Request
			if !h.reader.ReadFrame(&req) {
				if err := h.reader.Err(); err != nil {
					logging.WarnWithContext(h.logger, "input stream ended with an invalid frame", "frame_read_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "host is shutting down"),
					)
				}
				return
			}
			h.dispatcher.Dispatch(ctx, req)
		}
	}()

	select {
	case <-done:
		h.logger.Info("input stream closed")
	case <-ctx.Done():
		h.logger.Info("host interrupted", logging.String("reason", context.Cause(ctx).Error()))
	}
}

func (h *Host) shutdown() {
	waited := make(chan struct{})
	go func() {
		h.dispatcher.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(shutdownTimeout):
		h.logger.Warn("abandoning pending requests at shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.supervisor.Shutdown(ctx); err != nil {
		logging.WarnWithContext(h.logger, "jobs did not stop before shutdown deadline", "shutdown_timeout",
			logging.Error(err),
			logging.Duration("timeout", shutdownTimeout),
		)
	}
	if dropped := h.publisher.Dropped(); dropped > 0 {
		h.logger.Info("events dropped during session", logging.Int64("dropped", dropped))
	}
}
