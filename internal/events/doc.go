// Package events owns the outbound half of the native messaging stream.
//
// Events and responses share one bounded FIFO drained by a single writer
// goroutine, so frames never interleave and a response always precedes the
// side-effect events its handler scheduled after replying. Events are
// best-effort and dropped when the queue is full; responses wait for room.
package events
