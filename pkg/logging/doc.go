/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package logging provides structured logging utilities shared by all
// atlas components.
//
// It wraps the standard library slog package with project defaults:
// JSON output to stderr, environment-based level configuration
// (LOG_LEVEL), automatic module/version context injection, and source
// location tracking for debug logs.
//
// Setting the default logger (recommended):
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("atlasd", version)
//	    slog.Info("server starting", "port", 8080)
//	}
package logging
