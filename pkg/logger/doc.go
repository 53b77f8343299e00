// Package logger provides the structured logging interface used across collectordl.
//
// It wraps zerolog with a small interface supporting:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Colored console output on stderr
// - Optional file output alongside the console
// - A global logger instance for packages that are not handed one
//
// Basic Usage:
//
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File:  "/var/log/collectordl.log",
//	}
//	err := logger.Initialize(cfg)
//
//	logger.Info("Run started")
//	logger.WithField("collection_id", 12345).Info("Collection fetched")
//	logger.WithError(err).Error("Failed to create output directory")
//
// Components receive a Logger and tag it:
//
//	log := logger.GetLogger().WithField("component", "downloader")
//	log.InfoWithFields("Download completed", map[string]interface{}{
//	    "beatmapset_id": 123456,
//	    "bytes":         1024000,
//	})
//
// Tests use NewNopLogger, or NewTestLogger to capture and assert on messages.
package logger
