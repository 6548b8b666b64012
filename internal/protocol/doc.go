// Package protocol defines the messages exchanged with the browser extension:
// requests, id-correlated responses, and asynchronous events, plus the
// canonical request and event type names.
package protocol
