package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrJobActive rejects a start while another job is running.
	ErrJobActive = errors.New("job_active")
	// ErrUnknownJob is returned when cancel names no active job.
	ErrUnknownJob = errors.New("unknown_job")
	// ErrSpawn marks a child process that could not be created.
	ErrSpawn = errors.New("spawn_failed")
	// ErrInvalidRequest marks a start request missing required fields.
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrDownloaderMissing is returned when no downloader entry point exists.
	ErrDownloaderMissing = errors.New("main_py_not_found")
	// ErrShuttingDown rejects starts that arrive after Shutdown began.
	ErrShuttingDown = errors.New("host_shutting_down")
)

// ActiveError carries the id of the job that blocked admission.
type ActiveError struct {
	Job Snapshot
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("%s:%s", ErrJobActive.Error(), e.Job.ID)
}

func (e *ActiveError) Unwrap() error { return ErrJobActive }

// WireError renders err as the error string sent to the extension.
func WireError(err error) string {
	if err == nil {
		return ""
	}
	var active *ActiveError
	switch {
	case errors.As(err, &active):
		return active.Error()
	case errors.Is(err, ErrUnknownJob):
		return ErrUnknownJob.Error()
	case errors.Is(err, ErrDownloaderMissing):
		return ErrDownloaderMissing.Error()
	case errors.Is(err, ErrSpawn):
		return err.Error()
	case errors.Is(err, ErrInvalidRequest):
		var field *MissingFieldError
		if errors.As(err, &field) {
			return field.Code
		}
		return ErrInvalidRequest.Error()
	default:
		return err.Error()
	}
}

// MissingFieldError names the absent payload field with its wire code.
type MissingFieldError struct {
	Code string
}

func (e *MissingFieldError) Error() string { return e.Code }

func (e *MissingFieldError) Unwrap() error { return ErrInvalidRequest }

func spawnError(err error) error {
	return fmt.Errorf("%w:%v", ErrSpawn, err)
}
