package host

import (
	"context"
	"fmt"

	"serpcompanion/internal/protocol"
)

// Call is one inbound request as seen by a handler.
type Call struct {
	Request protocol.Request
	Type    string

	after []func()
}

// Decode unmarshals the request payload into v.
func (c *Call) Decode(v any) error {
	if err := c.Request.DecodePayload(v); err != nil {
		return fmt.Errorf("invalid_payload:%v", err)
	}
	return nil
}

// AfterReply registers fn to run once the response has been queued. Actions
// run in registration order, on the dispatch goroutine.
func (c *Call) AfterReply(fn func()) {
	if fn != nil {
		c.after = append(c.after, fn)
	}
}

// HandlerFunc produces the result of one request. A non-nil error becomes an
// {ok:false} response.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)
