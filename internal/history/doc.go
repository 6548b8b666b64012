// Package history keeps a SQLite journal of finished download jobs.
//
// The journal is write-behind audit data: the live job registry is never
// rebuilt from it, and write failures never reach the extension.
package history
