package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Defaults used when FollowOptions leaves a field zero.
const (
	DefaultOpenAttempts = 40
	DefaultPollInterval = 250 * time.Millisecond
)

// ErrLogNotCreated is returned when the log file never appeared.
var ErrLogNotCreated = errors.New("log file was not created")

// FollowOptions controls how a log file is followed.
type FollowOptions struct {
	// Offset is the byte position reading starts from.
	Offset int64
	// OpenAttempts bounds how many times a missing file is retried.
	OpenAttempts int
	// PollInterval is the wait between open attempts and between reads at EOF.
	PollInterval time.Duration
}

func (o FollowOptions) withDefaults() FollowOptions {
	if o.OpenAttempts <= 0 {
		o.OpenAttempts = DefaultOpenAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Follow reads path line by line and hands each complete line to emit. At end
// of file it stops once exited is closed, after one final drain; otherwise it
// sleeps and reads again. A nil exited channel follows until ctx is done.
// A partial trailing line is emitted only during the final drain.
func Follow(ctx context.Context, path string, exited <-chan struct{}, opts FollowOptions, emit func(line string)) error {
	opts = opts.withDefaults()

	file, err := openWithRetry(ctx, path, exited, opts)
	if err != nil {
		return err
	}
	defer file.Close()

	if opts.Offset > 0 {
		if _, err := file.Seek(opts.Offset, io.SeekStart); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
	}

	reader := bufio.NewReader(file)
	var partial strings.Builder
	draining := false

	for {
		chunk, err := reader.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			emit(trimLine(partial.String()))
			partial.Reset()
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read log file: %w", err)
		}
		if draining {
			if partial.Len() > 0 {
				emit(trimLine(partial.String()))
			}
			return nil
		}
		select {
		case <-exited:
			draining = true
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

func openWithRetry(ctx context.Context, path string, exited <-chan struct{}, opts FollowOptions) (*os.File, error) {
	var lastErr error
	for attempt := 0; attempt < opts.OpenAttempts; attempt++ {
		file, err := os.Open(path)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
		// The process may exit before it ever writes; one more look is
		// enough once it is gone.
		select {
		case <-exited:
			if file, err := os.Open(path); err == nil {
				return file, nil
			}
			return nil, fmt.Errorf("%w: %s (process exited)", ErrLogNotCreated, path)
		default:
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrLogNotCreated, opts.OpenAttempts, lastErr)
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
