// Package version reports the build version of parstream binaries.
//
// Version and commit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/parstream/version.Version=1.0.0" ./cmd/parstream
//
// Without ldflags the commit and dirty flag come from the embedded VCS
// build settings when available.
package version
