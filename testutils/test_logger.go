package testutils

import (
	"crypto/tls"
	"io"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/wirecap/wirecap/pkg/logging"
)

// NewTestLogger creates a new logger for testing that discards output.
func NewTestLogger() logging.Logger {
	logger, err := logging.New("debug", "console", zapcore.AddSync(io.Discard))
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// LogEntry is one call captured by RecordingLogger.
type LogEntry struct {
	Level         string
	Msg           string
	KeysAndValues []interface{}
}

// RecordingLogger keeps every log call in memory so tests can assert on
// what was logged without setting up mock expectations.
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []interface{}
}

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (l *RecordingLogger) record(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]interface{}{}, l.fields...), kv...)
	*l.entries = append(*l.entries, LogEntry{Level: level, Msg: msg, KeysAndValues: all})
}

func (l *RecordingLogger) Debug(msg string, kv ...interface{}) { l.record("debug", msg, kv) }
func (l *RecordingLogger) Info(msg string, kv ...interface{})  { l.record("info", msg, kv) }
func (l *RecordingLogger) Warn(msg string, kv ...interface{})  { l.record("warn", msg, kv) }
func (l *RecordingLogger) Error(msg string, kv ...interface{}) { l.record("error", msg, kv) }

// With shares the entry log with the parent.
func (l *RecordingLogger) With(kv ...interface{}) logging.Logger {
	return &RecordingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]interface{}{}, l.fields...), kv...),
	}
}

// Entries returns a copy of everything logged so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), (*l.entries)...)
}

// EntriesAt returns the entries logged at level.
func (l *RecordingLogger) EntriesAt(level string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // test client trusts the interception CA
}
