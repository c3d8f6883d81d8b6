// Package pkg provides shared utilities for the bootloader USB engine.
//
// This package contains common functionality used across the control
// endpoint engine, the DFU backend, and the tooling, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for control transfer protocol errors
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with engine-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEngine, "device configured", "config", 1)
//
// # Errors
//
// Common protocol errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrStall) {
//	    // Handle endpoint stall
//	}
package pkg
