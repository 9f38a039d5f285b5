package chain

import "errors"

// Sentinel errors surfaced across the chain, mempool and message-queue
// operations. Handlers in package server map these to HTTP status codes;
// background tasks log and continue.
var (
	// ErrInvalidBlock is returned when a block fails validate-before-append.
	ErrInvalidBlock = errors.New("invalid block")
	// ErrStaleTip is returned when a candidate's index no longer matches the
	// chain tip (someone else's block won the race).
	ErrStaleTip = errors.New("chain tip advanced since candidate was produced")
	// ErrMempoolFull is returned by Mempool.Add when the pool is at capacity
	// even after evicting expired entries.
	ErrMempoolFull = errors.New("mempool full")
	// ErrNotFound marks a lookup that found nothing. No function in this
	// package returns it.
	ErrNotFound = errors.New("not found")
)
