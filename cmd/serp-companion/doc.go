// Package main hosts the serp-companion entrypoint and command graph.
//
// Run without a subcommand, the binary is a browser native messaging host:
// the browser starts it with the calling extension's origin as an argument
// and speaks length-prefixed JSON over stdin and stdout. Subcommands cover
// one-time pairing, manifest installation, diagnostics, job log viewing, the
// job history journal and configuration scaffolding.
//
// Standard output belongs to the protocol whenever the host or the pairing
// server runs, so everything human-readable from those modes goes to stderr
// and the host log file.
package main
