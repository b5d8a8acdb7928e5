package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a point-in-time view of one table row.
type Entry struct {
	Index   int // 1-based, valid only until the next removal
	ID      uuid.UUID
	IP      string
	Port    int
	Inbound bool
	Since   time.Time
}

// Table is the insertion-ordered set of live links. Entries are only ever
// appended or removed, never changed in place. No two entries share a Key.
type Table struct {
	mu    sync.Mutex
	links []*Link
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

// Insert appends l unless a link with the same Key is already present.
func (t *Table) Insert(l *Link) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := l.Key()
	for _, cur := range t.links {
		if cur.Key() == key {
			return fmt.Errorf("%w: %s", ErrDuplicateConnection, key)
		}
	}
	t.links = append(t.links, l)
	return nil
}

// Remove deletes l and reports whether this call removed it. Removing a
// link that is already gone is a no-op.
func (t *Table) Remove(l *Link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cur := range t.links {
		if cur == l {
			t.links = append(t.links[:i:i], t.links[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether a link to ip:port is present.
func (t *Table) Contains(ip string, port int) bool {
	key := Key(ip, port)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cur := range t.links {
		if cur.Key() == key {
			return true
		}
	}
	return false
}

// Len returns the number of links.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links)
}

// List returns a snapshot of the table in insertion order.
func (t *Table) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.links))
	for i, l := range t.links {
		out[i] = Entry{
			Index:   i + 1,
			ID:      l.ID,
			IP:      l.IP,
			Port:    l.Port,
			Inbound: l.Inbound,
			Since:   l.Since,
		}
	}
	return out
}

// Get returns the link at the 1-based index.
func (t *Table) Get(index int) (*Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 1 || index > len(t.links) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidIndex, index, len(t.links))
	}
	return t.links[index-1], nil
}

// Terminate closes the link at index and removes it. If the link's receive
// loop removed it first, the loop owns the teardown and Terminate reports
// ErrInvalidIndex.
func (t *Table) Terminate(index int) (*Link, error) {
	l, err := t.Get(index)
	if err != nil {
		return nil, err
	}
	l.Close() //nolint:errcheck
	if !t.Remove(l) {
		return nil, fmt.Errorf("%w: %d already closed", ErrInvalidIndex, index)
	}
	return l, nil
}

// Send writes msg to the link at index. A link whose write fails is closed
// and removed; the returned error wraps ErrSocketIO.
func (t *Table) Send(index int, msg []byte) (*Link, error) {
	l, err := t.Get(index)
	if err != nil {
		return nil, err
	}
	if err := l.Write(msg); err != nil {
		t.drop(l)
		return l, err
	}
	return l, nil
}

// Broadcast writes msg to every link except exclude, which may be nil.
// Targets are snapshotted under the lock and written without it, so one
// stalled peer does not block table access. Links whose write fails are
// closed and removed; they are returned in failed.
func (t *Table) Broadcast(msg []byte, exclude *Link) (sent int, failed []*Link) {
	for _, l := range t.snapshot() {
		if l == exclude {
			continue
		}
		if err := l.Write(msg); err != nil {
			t.drop(l)
			failed = append(failed, l)
			continue
		}
		sent++
	}
	return sent, failed
}

// CloseAll closes every link and returns them. Links stay in the table
// until their receive loops remove them.
func (t *Table) CloseAll() []*Link {
	links := t.snapshot()
	for _, l := range links {
		l.Close() //nolint:errcheck
	}
	return links
}

func (t *Table) snapshot() []*Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Link, len(t.links))
	copy(out, t.links)
	return out
}

func (t *Table) drop(l *Link) {
	l.Close() //nolint:errcheck
	t.Remove(l)
}
