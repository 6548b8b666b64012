package events

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 500

// DefaultPoll bounds how long the writer waits for a message before it
// re-checks for shutdown and reports drops.
const DefaultPoll = time.Second

// ErrClosed is returned by Reply once the writer loop has exited.
var ErrClosed = errors.New("event publisher closed")

// FrameWriter is the codec sink the writer loop drains into.
type FrameWriter interface {
	WriteFrame(v any) error
}

// Emitter is the narrow publishing surface handed to other components.
type Emitter interface {
	Emit(eventType string, fields protocol.Fields) bool
}

// Publisher serializes responses and events onto one output stream.
type Publisher struct {
	queue   chan any
	out     FrameWriter
	poll    time.Duration
	logger  *slog.Logger
	done    chan struct{}
	dropped atomic.Int64
	written atomic.Int64
}

// Options configures a Publisher.
type Options struct {
	Capacity int
	Poll     time.Duration
	Logger   *slog.Logger
}

// New constructs a publisher that writes through out.
func New(out FrameWriter, opts Options) *Publisher {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	return &Publisher{
		queue:  make(chan any, opts.Capacity),
		out:    out,
		poll:   opts.Poll,
		logger: logging.NewComponentLogger(opts.Logger, "events"),
		done:   make(chan struct{}),
	}
}

// Publish enqueues evt without blocking. It reports false when the queue was
// full and the event was dropped.
func (p *Publisher) Publish(evt protocol.Event) bool {
	select {
	case <-p.done:
		p.dropped.Add(1)
		return false
	default:
	}
	select {
	case p.queue <- evt:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Emit builds and publishes an event.
func (p *Publisher) Emit(eventType string, fields protocol.Fields) bool {
	return p.Publish(protocol.NewEvent(eventType, fields))
}

// Reply enqueues a response, waiting for queue space until ctx is done.
func (p *Publisher) Reply(ctx context.Context, resp protocol.Response) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- resp:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Written returns the number of frames handed to the codec successfully.
func (p *Publisher) Written() int64 {
	return p.written.Load()
}

// Run drains the queue until ctx is canceled, then flushes whatever is still
// queued and returns. Write failures are logged and the loop continues.
func (p *Publisher) Run(ctx context.Context) error {
	defer close(p.done)

	timer := time.NewTimer(p.poll)
	defer timer.Stop()
	var reported int64

	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		case <-timer.C:
			reported = p.reportDrops(reported)
			timer.Reset(p.poll)
		case <-ctx.Done():
			p.drain()
			p.reportDrops(reported)
			return nil
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		default:
			return
		}
	}
}

func (p *Publisher) write(msg any) {
	if err := p.out.WriteFrame(msg); err != nil {
		logging.WarnWithContext(p.logger, "frame write failed; message discarded", "frame_write_failed",
			logging.Error(err),
			logging.String("message", describe(msg)),
			logging.String(logging.FieldImpact, "the extension will not see this message"),
		)
		return
	}
	p.written.Add(1)
}

func (p *Publisher) reportDrops(previous int64) int64 {
	current := p.dropped.Load()
	if current > previous {
		logging.WarnWithContext(p.logger, "event queue full; events dropped", "event_queue_overflow",
			logging.Int64("dropped", current-previous),
			logging.Int64("dropped_total", current),
			logging.String(logging.FieldErrorHint, "the extension is not reading fast enough"),
			logging.String(logging.FieldImpact, "some job log lines were not delivered"),
		)
	}
	return current
}

func describe(msg any) string {
	switch m := msg.(type) {
	case protocol.Event:
		return m.Type
	case protocol.Response:
		return "response:" + m.ID
	default:
		return "unknown"
	}
}
