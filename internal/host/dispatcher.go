package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"serpcompanion/internal/jobs"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

// Replier queues responses for the writer.
type Replier interface {
	Reply(ctx context.Context, resp protocol.Response) error
}

type route struct {
	fn    HandlerFunc
	async bool
}

// Dispatcher maps request types to handlers.
type Dispatcher struct {
	routes  map[string]route
	replier Replier
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher constructs an empty dispatcher replying through replier.
func NewDispatcher(replier Replier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		routes:  make(map[string]route),
		replier: replier,
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Handle registers fn for reqType. It runs on the dispatch goroutine and must
// not block.
func (d *Dispatcher) Handle(reqType string, fn HandlerFunc) {
	d.routes[reqType] = route{fn: fn}
}

// HandleAsync registers fn for requests that wait on the user or on external
// tools. Each call runs on its own goroutine; its response is still
// correlated by request id.
func (d *Dispatcher) HandleAsync(reqType string, fn HandlerFunc) {
	d.routes[reqType] = route{fn: fn, async: true}
}

// Dispatch handles one request and queues exactly one response for it.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) {
	canonical := protocol.CanonicalType(req.Type)
	r, ok := d.routes[canonical]
	if !ok {
		d.logger.Debug("unknown request type",
			logging.String(logging.FieldRequestID, req.ID),
			logging.String(logging.FieldRequestType, req.Type),
		)
		d.reply(ctx, protocol.Failure(req.ID, "unknown_type:"+req.Type))
		return
	}
	call := &Call{Request: req, Type: canonical}
	ctx = logging.WithRequest(ctx, req.ID, canonical)
	if !r.async {
		d.serve(ctx, r.fn, call)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.serve(ctx, r.fn, call)
	}()
}

// Wait blocks until asynchronous handlers have replied.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) serve(ctx context.Context, fn HandlerFunc, call *Call) {
	result, err := d.invoke(ctx, fn, call)
	var resp protocol.Response
	if err != nil {
		resp = protocol.Failure(call.Request.ID, jobs.WireError(err))
		logging.WithContext(ctx, d.logger).Debug("request failed", logging.Error(err))
	} else {
		resp = protocol.Success(call.Request.ID, result)
	}
	// Deferred actions also own background work such as job supervision, so
	// they run even when the response could not be queued.
	d.reply(ctx, resp)
	for _, fn := range call.after {
		d.runAfter(ctx, fn)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, fn HandlerFunc, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, d.logger), "handler panicked", "handler_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			result = nil
			err = fmt.Errorf("internal_error:%v", r)
		}
	}()
	return fn(ctx, call)
}

func (d *Dispatcher) runAfter(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, d.logger), "after-reply action panicked", "after_reply_panic",
				logging.Any("panic", r),
			)
		}
	}()
	fn()
}

func (d *Dispatcher) reply(ctx context.Context, resp protocol.Response) {
	if d.replier == nil {
		return
	}
	if err := d.replier.Reply(ctx, resp); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		d.logger.Log(ctx, level, "response not queued",
			logging.String(logging.FieldRequestID, resp.ID),
			logging.Error(err),
		)
	}
}
