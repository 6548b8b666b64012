// Package pairing registers the companion as a browser native messaging host.
//
// A Manifest names the executable and the extension origins allowed to launch
// it. Installer writes the manifest under a file lock and hands it to the
// platform Registrar: a registry key on Windows, per-browser manifest
// directories elsewhere. Server exposes the same install step over a
// loopback-only HTTP endpoint so the extension can pair itself once.
package pairing
