// Package jobs supervises downloader child processes.
//
// The Supervisor owns a lock-guarded registry that admits at most one active
// job. Each job runs as a bundle: the child process, a follower streaming its
// log file, and a waiter that decides the terminal state (or the single
// bearer retry) when the process exits. Cancellation kills the whole process
// tree; it is not cooperative.
package jobs
