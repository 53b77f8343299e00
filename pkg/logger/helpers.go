package logger

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerWithCaller adds caller information to the logger
func LoggerWithCaller(skip int) Logger {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return GetLogger()
	}

	parts := strings.Split(file, "/")
	filename := parts[len(parts)-1]

	return GetLogger().WithField("caller", fmt.Sprintf("%s:%d", filename, line))
}

// LogRequest logs a mirror or catalog HTTP exchange
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode == 429:
		l.DebugWithFields("HTTP request rate limited", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	}
}

// LogDownload logs the terminal outcome of one beatmapset
func LogDownload(l Logger, id int, filename string, bytes int64, err error) {
	fields := map[string]interface{}{
		"beatmapset_id": id,
	}
	if filename != "" {
		fields["file"] = filename
	}
	if bytes > 0 {
		fields["bytes"] = bytes
	}

	if err != nil {
		l.WithError(err).ErrorWithFields("Download failed", fields)
		return
	}
	l.InfoWithFields("Download completed", fields)
}

// LogRateLimit logs a rate limit signal and the resulting cooldown
func LogRateLimit(l Logger, id int, cooldown time.Duration, triggered bool) {
	fields := map[string]interface{}{
		"beatmapset_id": id,
		"cooldown":      cooldown,
		"action":        "rate_limited",
	}
	if triggered {
		l.WarnWithFields("Rate limit reached, pausing queue", fields)
		return
	}
	l.DebugWithFields("Rate limited while already paused", fields)
}

// LogRunSummary logs the final counts of a run
func LogRunSummary(l Logger, runID string, total, downloaded, skipped, failed int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"run_id":     runID,
		"total":      total,
		"downloaded": downloaded,
		"skipped":    skipped,
		"failed":     failed,
		"duration":   elapsed,
	}
	if failed > 0 {
		l.WarnWithFields("Run finished with failures", fields)
		return
	}
	l.InfoWithFields("Run finished", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// MustGetLogger gets the logger or panics if it fails
func MustGetLogger() Logger {
	logger := GetLogger()
	if logger == nil {
		panic("logger not initialized")
	}
	return logger
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
