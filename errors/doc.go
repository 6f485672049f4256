// Package errors provides the structured error type shared by parstream
// packages. Every error carries a machine-readable code so callers can
// branch on the failure class (bad configuration, contract violation,
// admission rejection) without matching on message text.
package errors
