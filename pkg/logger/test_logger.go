package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one captured log call
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Err     error
}

// TestLogger records log calls for assertions. Loggers derived from it with
// WithField, WithFields or WithError write into the same record.
type TestLogger struct {
	sink   *entrySink
	fields map[string]interface{}
	err    error
}

type entrySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTestLogger creates an empty recording logger
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &entrySink{}}
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields)
}

// FatalWithFields records the call without exiting
func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.record("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.derive(map[string]interface{}{key: value}, l.err)
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(fields, l.err)
}

func (l *TestLogger) WithError(err error) Logger {
	return l.derive(nil, err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (l *TestLogger) derive(fields map[string]interface{}, err error) *TestLogger {
	return &TestLogger{sink: l.sink, fields: merge(l.fields, fields), err: err}
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.entries = append(l.sink.entries, Entry{
		Level:   level,
		Message: msg,
		Fields:  merge(l.fields, fields),
		Err:     l.err,
	})
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Entries returns a copy of everything recorded so far
func (l *TestLogger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]Entry(nil), l.sink.entries...)
}

func (l *TestLogger) filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ByLevel returns the entries logged at level
func (l *TestLogger) ByLevel(level string) []Entry {
	return l.filter(func(e Entry) bool { return e.Level == level })
}

// Count returns how many times msg was logged at level
func (l *TestLogger) Count(level, msg string) int {
	return len(l.filter(func(e Entry) bool { return e.Level == level && e.Message == msg }))
}

// HasMessage reports whether msg was logged at any level
func (l *TestLogger) HasMessage(msg string) bool {
	return len(l.filter(func(e Entry) bool { return e.Message == msg })) > 0
}

// ForTarget returns the entries tagged with beatmapset_id id
func (l *TestLogger) ForTarget(id int) []Entry {
	return l.filter(func(e Entry) bool { return e.Fields["beatmapset_id"] == id })
}

// ForRun returns the entries tagged with run_id runID
func (l *TestLogger) ForRun(runID string) []Entry {
	return l.filter(func(e Entry) bool { return e.Fields["run_id"] == runID })
}

// String renders the record one entry per line, for failure messages
func (l *TestLogger) String() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "[%s] %s", e.Level, e.Message)
		if len(e.Fields) > 0 {
			fmt.Fprintf(&b, " fields=%v", e.Fields)
		}
		if e.Err != nil {
			fmt.Fprintf(&b, " error=%v", e.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
