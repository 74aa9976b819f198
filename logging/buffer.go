package logging

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultBufferSize = 500

// Entry is one log line retained in the ring buffer.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed size ring of recent log entries. It implements
// zerolog.LevelWriter so it can sit next to the regular output.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewBuffer returns a buffer holding at most size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Write decodes one zerolog JSON event.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (b *Buffer) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		// Not JSON, keep the text.
		raw = map[string]any{zerolog.MessageFieldName: strings.TrimSpace(string(p))}
	}

	e := Entry{Time: time.Now(), Level: level.String()}
	if s, ok := raw[zerolog.LevelFieldName].(string); ok {
		e.Level = s
	}
	if s, ok := raw[zerolog.MessageFieldName].(string); ok {
		e.Message = s
	}
	if s, ok := raw["component"].(string); ok {
		e.Component = s
	}
	if s, ok := raw[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			e.Time = t
		}
	}
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName,
		zerolog.TimestampFieldName, "component", "service"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Fields = raw
	}

	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
	return len(p), nil
}

// Query selects entries for the admin log view.
type Query struct {
	// MinLevel drops entries below this level, empty keeps all.
	MinLevel string
	// Text is a case-insensitive substring matched against message and component.
	Text string
	// Limit caps the number of returned entries, newest first. Zero means no cap.
	Limit int
}

// Entries returns matching entries, newest first.
func (b *Buffer) Entries(q Query) []Entry {
	minLevel := zerolog.TraceLevel
	if q.MinLevel != "" {
		if l, err := zerolog.ParseLevel(q.MinLevel); err == nil {
			minLevel = l
		}
	}
	text := strings.ToLower(q.Text)

	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.next
	if b.full {
		count = len(b.entries)
	}
	result := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		idx := (b.next - 1 - i + len(b.entries)) % len(b.entries)
		e := b.entries[idx]
		if l, err := zerolog.ParseLevel(e.Level); err == nil && l < minLevel {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Message), text) &&
			!strings.Contains(strings.ToLower(e.Component), text) {
			continue
		}
		result = append(result, e)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result
}

// Clear drops all retained entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.next = 0
	b.full = false
}
