// Package correlation tracks outstanding request ids that are awaiting a
// reply. Each entry owns a deadline timer; whichever of reply, deadline, or
// shutdown reaches the entry first removes it and fires its callback exactly
// once.
package correlation

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrTimeout is delivered to a callback whose reply did not arrive before the
// deadline.
var ErrTimeout = errors.New("courier: reply timed out")

// ErrClosed is delivered to every pending callback when the owning client is
// closed before the reply arrives.
var ErrClosed = errors.New("courier: client closed before reply")

// Callback receives the outcome of a correlated send: either a reply
// (nil error, sender and payload set) or a terminal error with no payload.
type Callback func(err error, sender string, payload []byte)

type entry struct {
	id        uint64
	callback  Callback
	timer     *time.Timer
	createdAt time.Time
}

// Table is the set of pending correlated sends for one client. It is safe for
// concurrent use; exactly-once callback delivery is enforced by removing the
// entry under the lock before invoking anything.
type Table struct {
	mu      sync.Mutex
	entries map[uint64]*entry
	logger  *slog.Logger
}

// NewTable returns an empty table. A nil logger falls back to slog.Default.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries: make(map[uint64]*entry),
		logger:  logger.With("component", "correlation"),
	}
}

// Register adds a pending entry and starts its deadline timer. The id must
// not already be live; per-client monotonic ids make reuse impossible while
// the client is alive.
func (t *Table) Register(id uint64, cb Callback, timeout time.Duration) {
	e := &entry{
		id:        id,
		callback:  cb,
		createdAt: time.Now(),
	}
	e.timer = time.AfterFunc(timeout, func() {
		t.expire(id)
	})

	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
}

// Resolve completes the entry for id with a reply. It reports whether an
// entry existed; a false return means the id already timed out, was already
// resolved, or was never registered, and the caller should drop the reply.
func (t *Table) Resolve(id uint64, sender string, payload []byte) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.timer.Stop()
	e.callback(nil, sender, payload)
	return true
}

// Remove cancels the entry for id without invoking its callback. It is used
// when the publish that the entry was registered for fails, so no timer is
// left behind for a message that never went out.
func (t *Table) Remove(id uint64) bool {
	e := t.remove(id)
	if e == nil {
		return false
	}
	e.timer.Stop()
	return true
}

// ExpireAll drains the table, cancelling every timer and delivering err to
// every pending callback. The table is empty and still usable afterwards;
// rejecting new registrations after shutdown is the client's job.
func (t *Table) ExpireAll(err error) {
	t.mu.Lock()
	drained := make([]*entry, 0, len(t.entries))
	for id, e := range t.entries {
		drained = append(drained, e)
		delete(t.entries, id)
	}
	t.mu.Unlock()

	for _, e := range drained {
		e.timer.Stop()
		e.callback(err, "", nil)
	}
}

// Len reports the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// expire fires when an entry's deadline elapses. If the entry was resolved or
// removed in the meantime, the removal below finds nothing and the timeout is
// a no-op.
func (t *Table) expire(id uint64) {
	e := t.remove(id)
	if e == nil {
		return
	}
	t.logger.Debug("pending reply timed out",
		"correlation_id", id,
		"waited", time.Since(e.createdAt))
	e.callback(ErrTimeout, "", nil)
}

func (t *Table) remove(id uint64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	return e
}
