package mocklogger

import (
	"sync"

	"github.com/coderxlab/featurestream/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
}

type entries struct {
	mu   sync.Mutex
	list []LogEntry
}

// MockLogger records every entry. Loggers derived through With share the
// same entry list so assertions see logs from all components.
type MockLogger struct {
	store *entries
	args  []any
}

func New() *MockLogger {
	return &MockLogger{store: &entries{}}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.list = append(
		m.store.list, LogEntry{
			Level:   level,
			Message: msg,
			KV:      kv,
		},
	)
}

// Entries returns a snapshot of recorded entries.
func (m *MockLogger) Entries() []LogEntry {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	out := make([]LogEntry, len(m.store.list))
	copy(out, m.store.list)
	return out
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	args := make([]any, 0, len(m.args)+len(kv))
	args = append(args, m.args...)
	args = append(args, kv...)
	return &MockLogger{
		store: m.store,
		args:  args,
	}
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}
