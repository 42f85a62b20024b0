// Package logbuf keeps the bounded in-memory window of categorized game log
// entries shown in the UI and scanned by the statistics fallback parser.
package logbuf

import (
	"sync"
	"time"
)

// MaxEntries is the capacity of the ring; the oldest entry is evicted first.
const MaxEntries = 1000

// Entry is a single categorized log line.
type Entry struct {
	// Category is the game subsystem that produced the line (farm, friend,
	// warehouse, system, ...).
	Category string `json:"category"`
	// Message is the human-readable log text.
	Message string `json:"message"`
	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Buffer is a fixed-capacity, oldest-evicted-first log window. An optional
// OnAppend hook observes every entry after it is stored; the hook runs
// outside the buffer lock so it may call back into the buffer.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry

	// onAppend, when set, is invoked once per appended entry.
	onAppend func(Entry)
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{entries: make([]Entry, 0, 64)}
}

// SetOnAppend installs the append hook. Must be called before concurrent use.
func (b *Buffer) SetOnAppend(fn func(Entry)) {
	b.onAppend = fn
}

// Append stores an entry stamped with the current time, evicting the oldest
// entry once the window holds [MaxEntries] lines.
func (b *Buffer) Append(category, message string) Entry {
	e := Entry{
		Category:  category,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	b.mu.Lock()
	b.entries = append(b.entries, e)
	if len(b.entries) > MaxEntries {
		b.entries = b.entries[1:]
	}
	b.mu.Unlock()

	if b.onAppend != nil {
		b.onAppend(e)
	}
	return e
}

// Entries returns a copy of the window in chronological order.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear discards all stored entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
}
