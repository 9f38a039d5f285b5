package chain

import (
	"sync"
	"time"
)

// Mempool is a bounded, time-expiring staging area for pending
// MessageTransactions. All operations mutate under a single lock; there is
// no finer-grained locking inside the mempool (spec.md §4.4 contention
// policy) so that Add/Remove/CleanExpired observe a consistent view of both
// the transaction map and the arrival-time map.
type Mempool struct {
	mu             sync.Mutex
	maxSize        int
	messageTimeout time.Duration

	pending   map[string]*MessageTransaction
	arrivedAt map[string]time.Time // monotonic-clock arrival, for TTL
}

// NewMempool creates an empty mempool with the given capacity and TTL.
func NewMempool(maxSize int, messageTimeout time.Duration) *Mempool {
	return &Mempool{
		maxSize:        maxSize,
		messageTimeout: messageTimeout,
		pending:        make(map[string]*MessageTransaction),
		arrivedAt:      make(map[string]time.Time),
	}
}

// Add mints a fresh transaction for message and inserts it. If the pool
// strictly exceeds max_size, expired entries are cleaned first; if it is
// still over capacity afterward, Add fails with ErrMempoolFull.
//
// The strict `>` (rather than `>=`) comparison against max_size is kept
// verbatim from the reference implementation: spec.md flags this as an
// open question ("whether this is intentional is unclear") and explicitly
// asks implementers not to guess a fix, so the pool can transiently hold
// max_size+1 entries, exactly as specified.
func (m *Mempool) Add(message string) (*MessageTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) > m.maxSize {
		m.cleanExpiredLocked()
		if len(m.pending) > m.maxSize {
			return nil, ErrMempoolFull
		}
	}

	tx := NewMessageTransaction(message)
	m.pending[tx.ID] = tx
	m.arrivedAt[tx.ID] = time.Now()
	return tx, nil
}

// Pending returns up to limit pending transactions. Iteration order is
// unspecified (backed by a Go map) — callers must not depend on FIFO order.
func (m *Mempool) Pending(limit int) []*MessageTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.pending) {
		limit = len(m.pending)
	}
	result := make([]*MessageTransaction, 0, limit)
	for _, tx := range m.pending {
		if len(result) >= limit {
			break
		}
		result = append(result, tx)
	}
	return result
}

// Remove deletes the given ids from both maps. Missing ids are ignored.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.pending, id)
		delete(m.arrivedAt, id)
	}
}

// CleanExpired removes every transaction whose arrival is older than the
// configured message_timeout. Idempotent: a second call with no new
// arrivals removes nothing further.
func (m *Mempool) CleanExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanExpiredLocked()
}

func (m *Mempool) cleanExpiredLocked() {
	now := time.Now()
	for id, arrived := range m.arrivedAt {
		if now.Sub(arrived) > m.messageTimeout {
			delete(m.pending, id)
			delete(m.arrivedAt, id)
		}
	}
}

// PendingCount returns the current number of pending transactions.
func (m *Mempool) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
