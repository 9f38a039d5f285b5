// Package consensus provides the pluggable agreement rules implementing
// chain.Consensus. The default and only rule currently implemented is
// ProofOfWork: a leading-zero hash-prefix search.
package consensus

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/hash"
)

// ProofOfWork requires a block's hash to begin with Difficulty '0'
// characters. Prove searches nonces starting at zero until it finds one
// that satisfies the target; ValidateBlock re-checks only the resulting
// hash's prefix against the *local* node's own difficulty, never the
// difficulty the producing node may have used — two nodes running
// different difficulties can both accept each other's blocks as long as
// each one's own prefix requirement is met (spec.md §4.2).
type ProofOfWork struct {
	Difficulty int
}

// NewProofOfWork constructs a ProofOfWork rule requiring difficulty
// leading zero characters in every block hash.
func NewProofOfWork(difficulty int) *ProofOfWork {
	return &ProofOfWork{Difficulty: difficulty}
}

var _ chain.Consensus = (*ProofOfWork)(nil)

// Name implements chain.Consensus.
func (p *ProofOfWork) Name() string { return "pow" }

// Prove searches nonces in increasing order starting at 0 until the
// resulting block hash has Difficulty leading zeros. The proof is carried
// on the wire as a bare JSON number (spec.md §6: "proof for PoW is a JSON
// number"), matching the reference implementation's Proof = u64. It is
// unbounded and may run for a long time at high difficulty; callers must
// run it off any goroutine that serves requests or holds the chain lock
// (package mining does this).
func (p *ProofOfWork) Prove(nextIndex uint64, timestamp int64, data, prevHash string) (json.RawMessage, error) {
	target := strings.Repeat("0", p.Difficulty)
	var nonce uint64
	for {
		raw, err := json.Marshal(nonce)
		if err != nil {
			return nil, fmt.Errorf("marshal proof: %w", err)
		}
		h, err := hash.Block(nextIndex, timestamp, data, prevHash, json.RawMessage(raw))
		if err != nil {
			return nil, fmt.Errorf("compute candidate hash: %w", err)
		}
		if strings.HasPrefix(h, target) {
			return json.RawMessage(raw), nil
		}
		nonce++
	}
}

// ValidateBlock checks that block is index-continuous with prev, correctly
// links to prev's hash, recomputes to its own stored hash, and that the
// stored hash satisfies this node's own difficulty target. It does not
// trust block.Hash as given: hash linkage is re-derived from the block's
// own fields.
func (p *ProofOfWork) ValidateBlock(prev, block *chain.Block) bool {
	if block.Index != prev.Index+1 {
		return false
	}
	if block.PreviousHash != prev.Hash {
		return false
	}
	recomputed, err := block.RecomputeHash()
	if err != nil || recomputed != block.Hash {
		return false
	}
	target := strings.Repeat("0", p.Difficulty)
	return strings.HasPrefix(block.Hash, target)
}

// Params returns {"difficulty": N}, the form persisted in the on-disk
// chain file's consensus field (spec.md §6).
func (p *ProofOfWork) Params() json.RawMessage {
	raw, _ := json.Marshal(struct {
		Difficulty int `json:"difficulty"`
	}{Difficulty: p.Difficulty})
	return raw
}

// LoadDifficulty extracts the difficulty parameter from a persisted
// consensus-params blob, for use when restoring a ProofOfWork rule from an
// on-disk chain file.
func LoadDifficulty(params json.RawMessage) (int, error) {
	var v struct {
		Difficulty int `json:"difficulty"`
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return 0, fmt.Errorf("decode consensus params: %w", err)
	}
	return v.Difficulty, nil
}
