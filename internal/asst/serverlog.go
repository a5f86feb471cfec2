package asst

import (
	"sync"

	"github.com/mithrel/asst/pkg/api"
)

// ServerLog is the append-only, unbounded sequence of entries the server pushed during
// the session, in arrival order.
type ServerLog struct {
	mu      sync.RWMutex
	entries []api.LogEntry
}

func (l *ServerLog) Append(e api.LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (l *ServerLog) Entries() []api.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]api.LogEntry(nil), l.entries...)
}

func (l *ServerLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
