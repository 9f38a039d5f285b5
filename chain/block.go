package chain

import (
	"encoding/json"

	"github.com/msgchain/msgchain/hash"
)

// GenesisData is the fixed payload of the block at index 0.
const GenesisData = "Fiat Lux"

// GenesisPrevHash is the previous_hash of the genesis block.
const GenesisPrevHash = "0"

// Block is a single entry in the ledger. It is immutable once constructed:
// nothing in this package mutates a Block's fields after NewBlock returns.
// Proof is kept opaque (raw JSON) so the chain package never needs to know
// which consensus rule produced it — see the Consensus interface in
// consensus.go.
type Block struct {
	Index        uint64          `json:"index"`
	Timestamp    int64           `json:"timestamp"`
	Data         string          `json:"data"`
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
	Proof        json.RawMessage `json:"proof"`
}

// NewBlock computes the canonical hash for the given fields and returns an
// immutable Block. It does not itself run any consensus rule — callers pass
// in a proof already produced by Consensus.Prove.
func NewBlock(index uint64, timestamp int64, data, previousHash string, proof json.RawMessage) (*Block, error) {
	h, err := hash.Block(index, timestamp, data, previousHash, proof)
	if err != nil {
		return nil, err
	}
	return &Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
		Hash:         h,
		Proof:        proof,
	}, nil
}

// RecomputeHash returns the hash this block *should* have given its current
// fields, independent of the Hash field actually stored. Used by invariant
// checks and consensus validators to detect tampering.
func (b *Block) RecomputeHash() (string, error) {
	return hash.Block(b.Index, b.Timestamp, b.Data, b.PreviousHash, b.Proof)
}

// Equal reports structural equality, matching spec.md's "Equality is
// structural" data-model note.
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.Index == other.Index &&
		b.Timestamp == other.Timestamp &&
		b.Data == other.Data &&
		b.PreviousHash == other.PreviousHash &&
		b.Hash == other.Hash &&
		string(b.Proof) == string(other.Proof)
}
