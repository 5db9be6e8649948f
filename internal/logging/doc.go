// Package logging provides structured logging with per-module log levels.
//
// Loggers are plain *slog.Logger values tagged with a "module" attribute.
// Output goes to stdout (text or json), to the systemd journal when it is
// reachable, and always to an in-memory ring buffer that backs the
// /api/logs endpoint.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"ezviz":  "debug",
//			"poller": "warn",
//		},
//	})
//
// and fetch a logger per module:
//
//	logger := logging.GetLogger("camera").With("serial", serial)
//	logger.Info("Camera added")
//
// Loggers handed out before Initialize are retargeted when it runs, so
// package-level loggers are safe.
//
// Journal entries are tagged with SYSLOG_IDENTIFIER=ezvizbridge:
//
//	journalctl -t ezvizbridge MODULE=ezviz
package logging
