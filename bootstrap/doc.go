// Package bootstrap provides uniform startup and shutdown for parstream
// binaries: config defaults and validation, logger initialization, start and
// stop hooks, and signal-driven cancellation of the main task.
package bootstrap
