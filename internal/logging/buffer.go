package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogEntry is a single log line kept in the ring buffer.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// String renders the entry as a single display line.
func (e LogEntry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(e.Level))
	sb.WriteString("] [")
	sb.WriteString(e.Module)
	sb.WriteString("] ")
	sb.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attributes[k])
	}

	return sb.String()
}

// RingBuffer is a fixed-size, thread-safe circular buffer of log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write appends an entry, overwriting the oldest one when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// ReadAll returns the buffered entries oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	result := make([]LogEntry, 0, rb.count)
	if rb.count < len(rb.entries) {
		return append(result, rb.entries[:rb.count]...)
	}
	result = append(result, rb.entries[rb.head:]...)
	return append(result, rb.entries[:rb.head]...)
}

// Tail returns up to n of the most recent entries, oldest first.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	all := rb.ReadAll()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
