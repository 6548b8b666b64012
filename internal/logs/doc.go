// Package logs reads downloader log files.
//
// Follow converts a growing job log into a stream of complete lines while
// the downloader runs, tolerating the window between process start and file
// creation. LastLines backs the CLI's one-shot log view.
package logs
