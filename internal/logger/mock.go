package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLogger records log entries in memory for assertions in tests.
type MockLogger struct {
	mu      *sync.Mutex
	entries *[]MockEntry
	level   *Level
	fields  []Field
}

// MockEntry stores a single log emission.
type MockEntry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field returns the value of the named field and whether it was present.
func (e MockEntry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// NewMockLogger creates a MockLogger with the lowest log level.
func NewMockLogger() *MockLogger {
	level := LevelDebug
	return &MockLogger{
		mu:      &sync.Mutex{},
		entries: &[]MockEntry{},
		level:   &level,
	}
}

// Debug satisfies the Logger interface.
func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(context.Background(), LevelDebug, fmt.Sprintf(format, args...), nil)
}

// Info satisfies the Logger interface.
func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(context.Background(), LevelInfo, fmt.Sprintf(format, args...), nil)
}

// Warn satisfies the Logger interface.
func (m *MockLogger) Warn(format string, args ...interface{}) {
	m.record(context.Background(), LevelWarn, fmt.Sprintf(format, args...), nil)
}

// Error satisfies the Logger interface.
func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(context.Background(), LevelError, fmt.Sprintf(format, args...), nil)
}

// DebugContext satisfies the Logger interface.
func (m *MockLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelDebug, msg, fields)
}

// InfoContext satisfies the Logger interface.
func (m *MockLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelInfo, msg, fields)
}

// WarnContext satisfies the Logger interface.
func (m *MockLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelWarn, msg, fields)
}

// ErrorContext satisfies the Logger interface.
func (m *MockLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelError, msg, fields)
}

// With returns a child that shares the parent's entry buffer.
func (m *MockLogger) With(fields ...Field) Logger {
	return &MockLogger{
		mu:      m.mu,
		entries: m.entries,
		level:   m.level,
		fields:  append(append([]Field{}, m.fields...), fields...),
	}
}

// SetLevel adjusts the minimum log level stored.
func (m *MockLogger) SetLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.level = level
}

// GetLevel returns the minimum level stored.
func (m *MockLogger) GetLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.level
}

func (m *MockLogger) record(ctx context.Context, level Level, msg string, fields []Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level < *m.level {
		return
	}

	all := append([]Field{}, m.fields...)
	all = append(all, traceFieldsFromContext(ctx)...)
	all = append(all, fields...)
	*m.entries = append(*m.entries, MockEntry{
		Level:   level,
		Message: msg,
		Fields:  all,
	})
}

// GetEntries returns a copy of all stored entries.
func (m *MockLogger) GetEntries() []MockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockEntry(nil), (*m.entries)...)
}

// HasEntry reports whether an entry with the provided level contains the substring.
func (m *MockLogger) HasEntry(level Level, substring string) bool {
	for _, entry := range m.GetEntries() {
		if entry.Level == level && strings.Contains(entry.Message, substring) {
			return true
		}
	}
	return false
}

// CountEntries counts entries recorded with the supplied level.
func (m *MockLogger) CountEntries(level Level) int {
	count := 0
	for _, entry := range m.GetEntries() {
		if entry.Level == level {
			count++
		}
	}
	return count
}

// Reset clears all stored entries.
func (m *MockLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.entries = nil
}

var _ Logger = (*MockLogger)(nil)
