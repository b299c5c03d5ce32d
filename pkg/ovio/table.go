package ovio

import (
	"fmt"
	"sync"
)

// Table is the connection table: a capacity-bounded registry of
// Connections addressed by a stable ID, owning every Connection
// exclusively. An OS fd is replaced here by a monotonically increasing
// ID since Go's net package does not portably expose raw fds for
// TLS-capable listeners.
type Table struct {
	mu       sync.RWMutex
	capacity int
	nextID   uint64
	entries  map[uint64]*Connection
}

// NewTable creates a Table sized to capacity entries, analogous to
// sizing for a process's max supported runtime file descriptors.
func NewTable(capacity int) *Table {
	return &Table{
		capacity: capacity,
		entries:  make(map[uint64]*Connection, 64),
	}
}

// Add installs c in the table under a freshly allocated ID, returning
// that ID. Fails if the table is at capacity.
func (t *Table) Add(c *Connection) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		return 0, fmt.Errorf("connection table at capacity (%d)", t.capacity)
	}

	t.nextID++
	id := t.nextID
	c.ID = id
	t.entries[id] = c
	return id, nil
}

// Remove drops id from the table. A no-op if id is not present.
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Get returns the connection for id, or (nil, false) if absent.
func (t *Table) Get(id uint64) (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.entries[id]
	return c, ok
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns every live connection at the time of the call. Used by
// the idle-timeout sweep and by close cascades; never holds the table
// lock while invoking callbacks.
func (t *Table) Snapshot() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Connection, 0, len(t.entries))
	for _, c := range t.entries {
		out = append(out, c)
	}
	return out
}
