package station

import (
	"fmt"
	"sync"
	"time"
)

// DefaultLogCapacity is the number of entries kept per station.
const DefaultLogCapacity = 50

// LogBuffer is a fixed-capacity FIFO of timestamped station log lines.
// It backs the per-station log endpoint of the control plane; appends
// never block and never grow beyond the configured capacity.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []string
}

// NewLogBuffer returns a buffer holding at most max entries. A non-positive
// max falls back to DefaultLogCapacity.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultLogCapacity
	}
	return &LogBuffer{
		max:     max,
		entries: make([]string, 0, max),
	}
}

// Append records msg prefixed with the current wall-clock time. The oldest
// entry is dropped once the buffer is full.
func (b *LogBuffer) Append(msg string) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.max {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, line)
}

// Appendf formats and records a log line.
func (b *LogBuffer) Appendf(format string, args ...interface{}) {
	b.Append(fmt.Sprintf(format, args...))
}

// Entries returns a copy of the buffered lines, oldest first.
func (b *LogBuffer) Entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len reports how many lines are currently buffered.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
