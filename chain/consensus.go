package chain

import "encoding/json"

// Consensus is a pluggable agreement rule, expressed as a capability object
// rather than a concrete type so the chain never depends on which rule is
// in use (spec.md design note: "polymorphism over consensus"). The proof it
// produces is carried opaquely as json.RawMessage on Block.
//
// Prove may be arbitrarily expensive (a hash-prefix search, in the default
// rule) and MUST be safe to call from a goroutine that is not servicing
// requests or holding the chain lock — see package mining.
//
// ValidateBlock MUST be pure, cheap and deterministic: index continuity,
// previous-hash linkage, hash correctness and the consensus-specific proof
// predicate.
type Consensus interface {
	// Name identifies the rule, e.g. "pow". Used in log output; the on-disk
	// chain file stores only Params.
	Name() string
	// Prove computes a proof for a block at nextIndex extending prevHash.
	Prove(nextIndex uint64, timestamp int64, data, prevHash string) (json.RawMessage, error)
	// ValidateBlock reports whether block is an admissible successor to prev.
	ValidateBlock(prev, block *Block) bool
	// Params returns the rule's parameters in a form suitable for
	// round-tripping through the on-disk chain file (spec.md §6:
	// `consensus: {difficulty: usize}` for proof-of-work).
	Params() json.RawMessage
}
