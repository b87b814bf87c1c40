// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// Loggers are slog loggers tagged with a "module" attribute. Output goes to
// stdout when it is connected to a terminal, pipe, socket or file, and to the
// systemd journal when journald is reachable. Both are used when both are
// available.
//
// # Usage
//
// Initialize once at startup, and again whenever the configuration changes:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"procs":   "debug",
//			"helpers": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("procs")
//	logger.Info("Process started", "name", name, "pid", pid)
//
// Loggers may be fetched before Initialize. They start at info level and pick
// up configured levels when Initialize runs.
//
// # Viewing Logs
//
//	journalctl -t streamproc
//	journalctl -t streamproc MODULE=procs -p warning
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	procs = "debug"
//	api = "warn"
package logging
