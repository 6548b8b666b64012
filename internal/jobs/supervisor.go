package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"serpcompanion/internal/config"
	"serpcompanion/internal/events"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/logs"
	"serpcompanion/internal/protocol"
)

// Recorder persists finished jobs. Failures are logged, never surfaced.
type Recorder interface {
	RecordJob(ctx context.Context, job Snapshot, finishedAt time.Time) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher injects a custom process launcher (primarily for tests).
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithRecorder attaches a job history recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) {
		s.recorder = r
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Supervisor owns the job registry and every job bundle.
type Supervisor struct {
	cfg      *config.Config
	reg      *registry
	launcher Launcher
	events   events.Emitter
	recorder Recorder
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// closed is guarded by reg.mu and set once Shutdown begins.
	closed bool
}

// NewSupervisor constructs a supervisor publishing through emitter.
func NewSupervisor(cfg *config.Config, emitter events.Emitter, logger *slog.Logger, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:      cfg,
		reg:      newRegistry(),
		launcher: ExecLauncher{},
		events:   emitter,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		newID:    uuid.NewString,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ticket holds the side effects of an accepted request. Release must be
// called once the response has been queued.
type Ticket struct {
	Job     Snapshot
	release func()
	once    sync.Once
}

// Release publishes the deferred events and starts any background work.
func (t *Ticket) Release() {
	if t == nil || t.release == nil {
		return
	}
	t.once.Do(t.release)
}

// Prepare adjusts the options of an admitted start. It runs under the
// registry lock, after admission and before the argument vector is built,
// so it never observes a start that is going to be rejected.
type Prepare func(opts *StartOptions)

// Start admits and spawns a new job. A rejected start returns an
// *ActiveError together with a ticket that announces the running job.
func (s *Supervisor) Start(opts StartOptions) (*Ticket, error) {
	return s.StartWith(opts, nil)
}

// StartWith is Start with a prepare step for admitted jobs.
func (s *Supervisor) StartWith(opts StartOptions, prepare Prepare) (*Ticket, error) {
	courseURL := strings.TrimSpace(opts.CourseURL)
	if courseURL == "" {
		return nil, &MissingFieldError{Code: "missing_course_url"}
	}
	dl, err := ResolveDownloader(s.cfg)
	if err != nil {
		return nil, err
	}

	j := &job{
		id:            s.newID(),
		courseURL:     courseURL,
		startedAt:     s.now(),
		state:         StateStarting,
		attempt:       1,
		bearer:        strings.TrimSpace(opts.Bearer),
		preferCookies: opts.PreferCookies,
	}
	j.logPath = s.cfg.JobLogPath(j.id, j.attempt)

	s.reg.mu.Lock()
	if s.closed {
		s.reg.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if existing := s.reg.admitLocked(j); existing != nil {
		active := existing.snapshot()
		s.reg.mu.Unlock()
		ticket := &Ticket{Job: active, release: func() {
			s.emit(protocol.EventJobActive, protocol.Fields{
				"jobId":     active.ID,
				"startedAt": active.StartedAt.UnixMilli(),
				"args":      active.Argv,
			})
		}}
		return ticket, &ActiveError{Job: active}
	}
	if prepare != nil {
		prepare(&opts)
	}
	outDir, err := ResolveOutDir(opts.OutDir, s.cfg.Paths.DefaultOutDir)
	if err != nil {
		s.reg.evictLocked(j.id)
		s.reg.mu.Unlock()
		return nil, spawnError(err)
	}
	j.argv = BuildArgs(dl.Base, opts, outDir, ArgDefaults{
		Browser:  s.cfg.Downloader.DefaultBrowser,
		LogLevel: s.cfg.Downloader.DefaultLogLevel,
	})
	proc, err := s.spawnLocked(j)
	if err != nil {
		j.state = StateFailed
		s.reg.evictLocked(j.id)
		s.reg.mu.Unlock()
		s.logger.Warn("downloader spawn failed",
			logging.String(logging.FieldJobID, j.id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_spawn_failed"),
		)
		return nil, spawnError(err)
	}
	j.proc = proc
	j.state = StateRunning
	snap := j.snapshot()
	// The waiter is counted while the lock is held so Shutdown, which sets
	// closed under the same lock, always waits for it.
	released := make(chan struct{})
	s.wg.Add(1)
	go s.supervise(j, proc, snap.LogPath, released)
	s.reg.mu.Unlock()

	s.logger.Info("job started",
		logging.String(logging.FieldJobID, snap.ID),
		logging.Int("pid", proc.Pid()),
		logging.String("downloader", dl.Kind),
		logging.String("log_file", snap.LogPath),
	)

	return &Ticket{Job: snap, release: func() {
		s.emit(protocol.EventJobStarted, protocol.Fields{
			"jobId":     snap.ID,
			"args":      snap.Argv,
			"logFile":   snap.LogPath,
			"startedAt": snap.StartedAt.UnixMilli(),
		})
		close(released)
	}}, nil
}

// Cancel kills the named job. The job.canceled event is deferred to the
// returned ticket.
func (s *Supervisor) Cancel(jobID string) (*Ticket, error) {
	s.reg.mu.Lock()
	j, ok := s.reg.lookupLocked(jobID)
	if !ok || j.state.Terminal() {
		s.reg.mu.Unlock()
		return nil, ErrUnknownJob
	}
	j.state = StateCanceled
	proc := j.proc
	snap := j.snapshot()
	s.reg.evictLocked(jobID)
	s.reg.mu.Unlock()

	s.kill(snap.ID, proc)
	s.logger.Info("job canceled", logging.String(logging.FieldJobID, snap.ID))

	return &Ticket{Job: snap, release: func() {
		s.emit(protocol.EventJobCanceled, protocol.Fields{"jobId": snap.ID})
	}}, nil
}

// Jobs returns snapshots of the registered jobs.
func (s *Supervisor) Jobs() []Snapshot {
	return s.reg.snapshot()
}

// Shutdown stops followers and, when configured, kills active jobs. It
// waits for job bundles to unwind until ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.reg.mu.Lock()
	s.closed = true
	var victims []*job
	if s.cfg.Host.KillJobsOnExit {
		for id, j := range s.reg.jobs {
			j.state = StateCanceled
			victims = append(victims, j)
			s.reg.evictLocked(id)
		}
	}
	s.reg.mu.Unlock()
	for _, j := range victims {
		s.kill(j.id, j.proc)
	}
	s.cancel()

	if !s.cfg.Host.KillJobsOnExit {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) spawnLocked(j *job) (Process, error) {
	if err := os.MkdirAll(s.cfg.Paths.LogDir, 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(j.logPath)

	dir := s.cfg.Paths.Root
	if !dirExists(dir) {
		dir = ""
	}
	env := childEnv{
		toolsDir:  s.cfg.Paths.ToolsDir,
		logDir:    s.cfg.Paths.LogDir,
		logFile:   j.logPath,
		bearerEnv: s.cfg.Downloader.BearerEnv,
		bearer:    j.bearer,
	}
	return s.launcher.Launch(LaunchSpec{
		Program: j.argv[0],
		Args:    j.argv[1:],
		Dir:     dir,
		Env:     env.build(os.Environ()),
	})
}

// supervise is the waiter for one job. It owns the follower of each attempt
// and decides the terminal state, or the single bearer retry. Nothing is
// streamed until the ticket is released or the supervisor shuts down.
func (s *Supervisor) supervise(j *job, proc Process, logPath string, released <-chan struct{}) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(s.logger, "job waiter panicked", "job_waiter_panic",
				logging.String(logging.FieldJobID, j.id),
				logging.Any("panic", r),
			)
		}
	}()

	select {
	case <-released:
	case <-s.ctx.Done():
	}

	for {
		exitCode, waitErr := s.waitAttempt(j, proc, logPath)

		s.reg.mu.Lock()
		if j.state == StateCanceled {
			snap := j.snapshot()
			s.reg.mu.Unlock()
			s.record(snap)
			return
		}
		j.exitCode = exitCode

		if exitCode == 0 && waitErr == nil {
			j.state = StateCompleted
			s.reg.evictLocked(j.id)
			snap := j.snapshot()
			s.reg.mu.Unlock()
			s.logger.Info("job completed", logging.String(logging.FieldJobID, j.id))
			s.emit(protocol.EventJobCompleted, protocol.Fields{"jobId": j.id, "code": exitCode})
			s.record(snap)
			return
		}

		if s.retryEligibleLocked(j) {
			next, err := s.retryLocked(j)
			snap := j.snapshot()
			if err != nil {
				s.reg.mu.Unlock()
				s.logger.Warn("bearer retry spawn failed",
					logging.String(logging.FieldJobID, j.id),
					logging.Error(err),
					logging.String(logging.FieldEventType, "job_retry_spawn_failed"),
				)
				s.emit(protocol.EventJobFailed, protocol.Fields{
					"jobId": j.id,
					"code":  exitCode,
					"error": spawnError(err).Error(),
				})
				s.record(snap)
				return
			}
			s.reg.mu.Unlock()
			s.logger.Info("job retrying with bearer token",
				logging.String(logging.FieldJobID, j.id),
				logging.Int("exit_code", exitCode),
				logging.Int(logging.FieldAttempt, snap.Attempt),
			)
			s.emit(protocol.EventJobRetryBearer, protocol.Fields{
				"jobId":   j.id,
				"code":    exitCode,
				"args":    snap.Argv,
				"logFile": snap.LogPath,
			})
			proc, logPath = next, snap.LogPath
			continue
		}

		j.state = StateFailed
		s.reg.evictLocked(j.id)
		snap := j.snapshot()
		s.reg.mu.Unlock()

		fields := protocol.Fields{"jobId": j.id, "code": exitCode}
		if waitErr != nil {
			fields["error"] = waitErr.Error()
		}
		s.logger.Info("job failed",
			logging.String(logging.FieldJobID, j.id),
			logging.Int("exit_code", exitCode),
		)
		s.emit(protocol.EventJobFailed, fields)
		s.record(snap)
		return
	}
}

// waitAttempt runs the follower for one attempt, waits for the process and
// returns once the follower has drained.
func (s *Supervisor) waitAttempt(j *job, proc Process, logPath string) (int, error) {
	exited := make(chan struct{})
	followed := make(chan struct{})
	go func() {
		defer close(followed)
		s.follow(j, logPath, exited)
	}()

	exitCode, err := proc.Wait()
	close(exited)
	<-followed
	return exitCode, err
}

// retryEligibleLocked is called after a nonzero exit. Only the first attempt
// of a job that preferred cookies and supplied a bearer token is retried.
func (s *Supervisor) retryEligibleLocked(j *job) bool {
	return j.attempt == 1 && j.bearer != "" && j.preferCookies
}

func (s *Supervisor) retryLocked(j *job) (Process, error) {
	j.state = StateRetrying
	j.retried = true
	j.attempt++
	j.argv = RetryArgs(j.argv, j.bearer)
	j.logPath = s.cfg.JobLogPath(j.id, j.attempt)

	proc, err := s.spawnLocked(j)
	if err != nil {
		j.state = StateFailed
		s.reg.evictLocked(j.id)
		return nil, err
	}
	j.proc = proc
	j.state = StateRunning
	return proc, nil
}

// follow streams one attempt's log file. j.id and j.bearer never change
// after creation and are read without the lock.
func (s *Supervisor) follow(j *job, logPath string, exited <-chan struct{}) {
	jobID, bearer := j.id, j.bearer
	opts := logs.FollowOptions{
		OpenAttempts: s.cfg.Tail.OpenAttempts,
		PollInterval: s.cfg.TailPollInterval(),
	}
	err := logs.Follow(s.ctx, logPath, exited, opts, func(line string) {
		if bearer != "" {
			line = strings.ReplaceAll(line, bearer, RedactedValue)
		}
		s.emit(protocol.EventJobLog, protocol.Fields{"jobId": jobID, "line": line})
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logging.WarnWithContext(s.logger, "log tail stopped", "job_log_tail_error",
		logging.String(logging.FieldJobID, jobID),
		logging.String("log_file", logPath),
		logging.Error(err),
		logging.String(logging.FieldImpact, "remaining downloader output is not streamed"),
	)
	s.emit(protocol.EventJobLog, protocol.Fields{"jobId": jobID, "line": "[host] log tail error: " + err.Error()})
}

func (s *Supervisor) kill(jobID string, proc Process) {
	if proc == nil {
		return
	}
	if err := proc.Kill(); err != nil {
		logging.WarnWithContext(s.logger, "job kill failed", "job_kill_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "downloader may still be running"),
		)
	}
}

func (s *Supervisor) emit(eventType string, fields protocol.Fields) {
	if s.events == nil {
		return
	}
	if !s.events.Emit(eventType, fields) {
		s.logger.Debug("event dropped", logging.String("event", eventType))
	}
}

func (s *Supervisor) record(snap Snapshot) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordJob(context.Background(), snap, s.now()); err != nil {
		logging.WarnWithContext(s.logger, "job history write failed", "history_write_failed",
			logging.String(logging.FieldJobID, snap.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job missing from history"),
		)
	}
}
