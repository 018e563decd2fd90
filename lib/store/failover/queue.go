package failover

import (
	"sync"
	"time"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// pendingWrite is one write accepted while the database was unreachable.
// Both Put and Update queue a mutator: a queued Put is a mutator that
// ignores the current record and returns the stored payload, so every
// queued write can be replayed through the optimistic update coordinator
// during reconciliation.
//
// A queued Put additionally carries the record version it was issued
// against (exact = true). Replaying it unconditionally would make it win
// every CAS retry and overwrite records other daemons wrote while their
// connectivity was fine, so a superseded Put is reported as a conflict
// instead. Queued Updates re-run their mutator against the live record
// and need no such guard.
type pendingWrite struct {
	collection string
	key        string
	mutate     store.Mutator
	queuedAt   time.Time

	exact       bool
	baseVersion int64
}

// writeQueue is the FIFO of pending writes. Entries are drained in the
// order they were accepted; an entry that cannot be applied because
// connectivity was lost again is put back at the front so the order is
// preserved across interrupted drains.
type writeQueue struct {
	mu    sync.Mutex
	items []*pendingWrite
}

func newWriteQueue() *writeQueue {
	return &writeQueue{}
}

// Push appends a write at the tail of the queue.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *writeQueue) Push(w *pendingWrite) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, w)
}

// PopFront removes and returns the oldest queued write.
func (q *writeQueue) PopFront() (*pendingWrite, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	w := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return w, true
}

// PushFront puts an undrained write back at the head of the queue.
func (q *writeQueue) PushFront(w *pendingWrite) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*pendingWrite{w}, q.items...)
}

// Len returns the number of queued writes.
func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
