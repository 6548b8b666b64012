// Package frame implements the browser native-messaging wire format: a 4-byte
// little-endian length prefix followed by a UTF-8 JSON document.
//
// The reader never surfaces decode failures to callers. A truncated header,
// an oversized length, or a body that is not exactly one JSON value is
// reported the same way as a clean end of stream so the host winds down
// instead of crashing. The writer assembles each frame into one buffer and
// flushes it in a single write; it is not safe for concurrent use and is owned
// by the event publisher's writer goroutine.
package frame
