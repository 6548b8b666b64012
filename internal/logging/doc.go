// Package logging assembles the structured slog loggers used by the companion
// host and its CLI.
//
// Standard output carries the native messaging protocol, so every logger
// built here writes to standard error and, when configured, to the host log
// file under the log directory. The package also owns the console/JSON
// handler formatting, the standard attribute keys, and pruning of old job
// logs.
package logging
