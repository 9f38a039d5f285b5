package chain

import "sync"

// Info is a lock-light snapshot of the chain tip: length and last hash.
// The mining coordinator reads it instead of taking the full chain lock, so
// tip reads never contend with request handlers appending blocks
// (spec.md §4.3 ChainInfo, §5 "small async mutex used by the miner").
type Info struct {
	mu       sync.RWMutex
	length   uint64
	lastHash string
}

// NewInfo creates an Info snapshot for a chain of the given length and tip
// hash.
func NewInfo(length uint64, lastHash string) *Info {
	return &Info{length: length, lastHash: lastHash}
}

// Snapshot returns the current (length, last_hash) pair.
func (i *Info) Snapshot() (uint64, string) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.length, i.lastHash
}

// Update overwrites the cached tip. Called by the chain after every append.
func (i *Info) Update(length uint64, lastHash string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.length = length
	i.lastHash = lastHash
}
