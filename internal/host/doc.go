// Package host runs the native messaging host: it reads request frames from
// the browser, dispatches them to handlers, and routes every response and
// event through a single publisher so frames never interleave.
//
// Handlers may defer side effects with Call.AfterReply. Deferred actions run
// only after the response has been queued, which keeps a start's job.started
// event behind the response that announced the job id.
package host
