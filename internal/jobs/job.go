package jobs

import (
	"time"
)

// State is a job's lifecycle position.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether s ends the job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// Active reports whether s blocks admission of another job.
func (s State) Active() bool {
	return s == StateRunning || s == StateRetrying
}

// job is the supervisor's mutable record. Fields are guarded by the
// supervisor mutex.
type job struct {
	id        string
	courseURL string
	argv      []string
	startedAt time.Time
	state     State
	attempt   int
	logPath   string
	exitCode  int
	retried   bool

	bearer        string
	preferCookies bool

	proc Process
}

// Snapshot is an immutable copy of a job's reportable fields. Argv is
// already redacted.
type Snapshot struct {
	ID        string
	CourseURL string
	Argv      []string
	StartedAt time.Time
	State     State
	Attempt   int
	LogPath   string
	ExitCode  int
	Retried   bool
}

func (j *job) snapshot() Snapshot {
	return Snapshot{
		ID:        j.id,
		CourseURL: j.courseURL,
		Argv:      Redact(j.argv),
		StartedAt: j.startedAt,
		State:     j.state,
		Attempt:   j.attempt,
		LogPath:   j.logPath,
		ExitCode:  j.exitCode,
		Retried:   j.retried,
	}
}
