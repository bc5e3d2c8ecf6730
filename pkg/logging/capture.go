package logging

import (
	"sync"
)

// CaptureLogger records entries in memory so tests can assert on them
type CaptureLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []Field
	level   Level
}

// NewCaptureLogger creates an empty capturing logger at DebugLevel
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{
		mu:      &sync.Mutex{},
		entries: &[]LogEntry{},
		level:   DebugLevel,
	}
}

func (c *CaptureLogger) record(level Level, msg string, fields []Field) {
	if level < c.level {
		return
	}
	entry := LogEntry{Level: level.String(), Message: msg, Fields: map[string]any{}}
	for _, f := range c.fields {
		entry.Fields[f.Key] = f.Value
	}
	for _, f := range fields {
		entry.Fields[f.Key] = f.Value
	}

	c.mu.Lock()
	*c.entries = append(*c.entries, entry)
	c.mu.Unlock()
}

func (c *CaptureLogger) Debug(msg string, fields ...Field) { c.record(DebugLevel, msg, fields) }
func (c *CaptureLogger) Info(msg string, fields ...Field)  { c.record(InfoLevel, msg, fields) }
func (c *CaptureLogger) Warn(msg string, fields ...Field)  { c.record(WarnLevel, msg, fields) }
func (c *CaptureLogger) Error(msg string, fields ...Field) { c.record(ErrorLevel, msg, fields) }

// With returns a child that appends to the same entry list
func (c *CaptureLogger) With(fields ...Field) Logger {
	merged := append(append([]Field{}, c.fields...), fields...)
	return &CaptureLogger{mu: c.mu, entries: c.entries, fields: merged, level: c.level}
}

func (c *CaptureLogger) SetLevel(level Level) { c.level = level }
func (c *CaptureLogger) GetLevel() Level      { return c.level }

// Entries returns a copy of everything recorded so far
func (c *CaptureLogger) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(*c.entries))
	copy(out, *c.entries)
	return out
}

// Has reports whether an entry with the given level and message was recorded
func (c *CaptureLogger) Has(level Level, msg string) bool {
	for _, e := range c.Entries() {
		if e.Level == level.String() && e.Message == msg {
			return true
		}
	}
	return false
}
