package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

const debugLogCapacity = 500

// DebugLog is a bounded ring buffer of orchestration trace entries. Each
// orchestrator instance owns its own log; it is never shared across
// workspaces.
type DebugLog struct {
	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

// NewDebugLog constructs a ring with the fixed 500-entry capacity.
func NewDebugLog() *DebugLog {
	return &DebugLog{entries: make([]string, debugLogCapacity)}
}

// Add appends a formatted entry, overwriting the oldest once full.
func (d *DebugLog) Add(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := fmt.Sprintf("%s %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	d.entries[d.next] = entry
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

// Entries returns the retained entries, oldest first.
func (d *DebugLog) Entries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		return append([]string(nil), d.entries[:d.next]...)
	}
	out := make([]string, 0, len(d.entries))
	out = append(out, d.entries[d.next:]...)
	out = append(out, d.entries[:d.next]...)
	return out
}

// Len reports how many entries are retained.
func (d *DebugLog) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return len(d.entries)
	}
	return d.next
}
