// Package chain implements the block graph, its validation invariants, the
// pending-transaction mempool, and the single-writer message queue in front
// of it — the chain state machine and mempool subsystems of spec.md §4.1-4.5.
package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Chain is the in-memory, lock-guarded ledger: an ordered sequence of
// Blocks starting at the canonical genesis, the set of known peer
// addresses, and the consensus rule in force. Blocks are appended only at
// the tip and never mutated or removed once constructed (spec.md §3
// Lifecycle).
//
// The full chain is guarded by a single mutex, by design (spec.md §9
// "locking granularity"): hold intervals are kept to snapshotting or
// single-block appends, never outbound I/O or proof work.
type Chain struct {
	mu        sync.RWMutex
	blocks    []*Block
	nodes     map[string]struct{}
	consensus Consensus
	selfAddr  string

	mempool *Mempool
	info    *Info
}

// New constructs a Chain containing only the canonical genesis block,
// computed by calling consensus against the fixed genesis inputs
// (index=0, data="Fiat Lux", previous_hash="0").
func New(consensus Consensus, mempool *Mempool, selfAddr string) (*Chain, error) {
	genesis, err := buildGenesis(consensus)
	if err != nil {
		return nil, fmt.Errorf("build genesis: %w", err)
	}
	c := &Chain{
		blocks:    []*Block{genesis},
		nodes:     make(map[string]struct{}),
		consensus: consensus,
		selfAddr:  selfAddr,
		mempool:   mempool,
		info:      NewInfo(genesis.Index+1, genesis.Hash),
	}
	return c, nil
}

func buildGenesis(consensus Consensus) (*Block, error) {
	proof, err := consensus.Prove(0, 0, GenesisData, GenesisPrevHash)
	if err != nil {
		return nil, err
	}
	return NewBlock(0, 0, GenesisData, GenesisPrevHash, proof)
}

// Info returns the chain-tip cache the miner reads without taking the full
// chain lock.
func (c *Chain) Info() *Info { return c.info }

// Mempool returns the mempool backing this chain.
func (c *Chain) Mempool() *Mempool { return c.mempool }

// Consensus returns the consensus rule in force.
func (c *Chain) Consensus() Consensus { return c.consensus }

// Len returns the number of blocks currently in the chain, including
// genesis.
func (c *Chain) Len() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

// Tip returns the current tip block. The chain always has at least the
// genesis block, so Tip never returns nil.
func (c *Chain) Tip() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the full block slice, safe for the caller to
// retain and range over without holding any lock.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Nodes returns the current peer set as a slice, unordered.
func (c *Chain) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.nodes))
	for n := range c.nodes {
		out = append(out, n)
	}
	return out
}

// AddNode idempotently inserts address into the peer set. No URL
// validation happens here — liveness is checked by the server at
// registration time (spec.md §4.3). The node's own advertised address is
// never added, preserving invariant 7 (origin-suppression): a node never
// gossips to itself.
func (c *Chain) AddNode(address string) {
	if address == "" || address == c.selfAddr {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[address] = struct{}{}
}

// AppendValidated validates block against the current tip under the chain
// lock and, if valid, appends it, refreshes the tip cache, and removes the
// block's own transactions from the mempool. It returns ErrInvalidBlock if
// validation fails.
//
// includedIDs lets callers that already parsed block.Data avoid
// re-unmarshaling it here; pass nil to have AppendValidated decode it itself
// (see decodeIncludedIDs).
func (c *Chain) AppendValidated(block *Block, includedIDs []string) error {
	c.mu.Lock()
	tip := c.blocks[len(c.blocks)-1]
	if !c.consensus.ValidateBlock(tip, block) {
		c.mu.Unlock()
		return ErrInvalidBlock
	}
	c.blocks = append(c.blocks, block)
	length := uint64(len(c.blocks))
	lastHash := block.Hash
	c.mu.Unlock()

	c.info.Update(length, lastHash)

	if includedIDs == nil {
		includedIDs = decodeIncludedIDs(block.Data)
	}
	if len(includedIDs) > 0 {
		c.mempool.Remove(includedIDs)
	}
	return nil
}

// AppendAtIndex is the race arbiter used by the mining block consumer
// (spec.md §4.6/§4.8): it appends candidate only if the chain's current
// length equals wantIndex (i.e. nothing else has been appended since the
// candidate was produced). If the chain has advanced, it still removes
// includedIDs from the mempool, returns ErrStaleTip, and the caller must
// discard the candidate and trigger a sync.
func (c *Chain) AppendAtIndex(candidate *Block, wantIndex uint64, includedIDs []string) error {
	c.mu.Lock()
	if uint64(len(c.blocks)) != wantIndex {
		c.mu.Unlock()
		if len(includedIDs) > 0 {
			c.mempool.Remove(includedIDs)
		}
		return ErrStaleTip
	}
	tip := c.blocks[len(c.blocks)-1]
	if !c.consensus.ValidateBlock(tip, candidate) {
		c.mu.Unlock()
		return ErrInvalidBlock
	}
	c.blocks = append(c.blocks, candidate)
	length := uint64(len(c.blocks))
	lastHash := candidate.Hash
	c.mu.Unlock()

	c.info.Update(length, lastHash)
	if len(includedIDs) > 0 {
		c.mempool.Remove(includedIDs)
	}
	return nil
}

// Replace atomically swaps the entire block slice for a longer, already
// validated chain (used by the sync task after ValidateChain(candidate)
// confirms every link). Callers must validate before calling Replace.
func (c *Chain) Replace(blocks []*Block) {
	c.mu.Lock()
	c.blocks = blocks
	length := uint64(len(blocks))
	lastHash := blocks[len(blocks)-1].Hash
	c.mu.Unlock()
	c.info.Update(length, lastHash)
}

// IsValid walks the chain and re-checks invariants 1-5 of spec.md §3:
// genesis shape, index continuity, previous-hash linkage, hash
// correctness, and the consensus-specific validator. An empty chain (never
// produced in practice, since New always seeds a genesis block) returns
// true vacuously, matching original_source's `for i in 1..len` which never
// executes when len <= 1.
func (c *Chain) IsValid() bool {
	c.mu.RLock()
	blocks := make([]*Block, len(c.blocks))
	copy(blocks, c.blocks)
	consensus := c.consensus
	c.mu.RUnlock()
	return ValidateBlocks(blocks, consensus)
}

// ValidateBlocks re-checks invariants 1-5 over an arbitrary block slice
// (not necessarily this chain's own), used both by IsValid and by the sync
// task to validate a candidate chain pulled from a peer before adopting it.
func ValidateBlocks(blocks []*Block, consensus Consensus) bool {
	if len(blocks) == 0 {
		return true
	}
	genesis := blocks[0]
	if genesis.Index != 0 || genesis.Data != GenesisData || genesis.PreviousHash != GenesisPrevHash {
		return false
	}
	for i := 1; i < len(blocks); i++ {
		prev, curr := blocks[i-1], blocks[i]
		if curr.Index != prev.Index+1 {
			return false
		}
		if curr.PreviousHash != prev.Hash {
			return false
		}
		recomputed, err := curr.RecomputeHash()
		if err != nil || curr.Hash != recomputed {
			return false
		}
		if !consensus.ValidateBlock(prev, curr) {
			return false
		}
	}
	return true
}

// --- persistence ---

// fileFormat mirrors spec.md §6's on-disk chain file:
// {chain: Block[], nodes: string[], consensus: {difficulty: usize}}.
// The mempool is never persisted.
type fileFormat struct {
	Chain     []*Block        `json:"chain"`
	Nodes     []string        `json:"nodes"`
	Consensus json.RawMessage `json:"consensus"`
}

// Save serializes the chain (blocks, nodes, consensus parameters) to path
// as JSON. A write failure is a PersistenceIO error per spec.md §7: the
// caller logs it and the next periodic persistence tick retries.
func (c *Chain) Save(path string) error {
	c.mu.RLock()
	blocks := make([]*Block, len(c.blocks))
	copy(blocks, c.blocks)
	nodes := make([]string, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	params := c.consensus.Params()
	c.mu.RUnlock()

	data, err := json.MarshalIndent(fileFormat{Chain: blocks, Nodes: nodes, Consensus: params}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	// Write to a temp file and rename so a crash mid-write cannot leave a
	// half-written chain file in place; a crash between these two syscalls
	// still loses durability, which spec.md §7 explicitly accepts ("a
	// crash mid-write corrupts the file; recovery is a fresh chain").
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp chain file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename chain file: %w", err)
	}
	return nil
}

// Load deserializes a chain previously written by Save. The mempool and
// Info cache are freshly constructed around the loaded blocks/nodes; the
// caller supplies consensus since Go cannot deserialize an interface value
// from its JSON params alone without the caller picking the concrete type
// first (bootstrap does this from the --consensus flag).
func Load(path string, consensus Consensus, mempool *Mempool, selfAddr string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("decode chain file: %w", err)
	}
	if len(ff.Chain) == 0 {
		return nil, fmt.Errorf("decode chain file: empty chain")
	}
	c := &Chain{
		blocks:    ff.Chain,
		nodes:     make(map[string]struct{}, len(ff.Nodes)),
		consensus: consensus,
		selfAddr:  selfAddr,
		mempool:   mempool,
	}
	for _, n := range ff.Nodes {
		if n != selfAddr {
			c.nodes[n] = struct{}{}
		}
	}
	tip := c.blocks[len(c.blocks)-1]
	c.info = NewInfo(uint64(len(c.blocks)), tip.Hash)
	return c, nil
}

// LoadOrCreate returns a chain loaded from path if and only if the file
// exists and deserializes cleanly; otherwise it mints a fresh chain with a
// new genesis block. A DecodeError on an existing-but-corrupt file is
// treated as "no chain on disk" per spec.md §7, but — per that section's
// recommendation that implementers "prefer a loud log" — the caller
// (bootstrap) is expected to log the decode error rather than swallow it
// silently; LoadOrCreate itself just returns the fresh chain plus the
// original error for the caller to inspect.
func LoadOrCreate(path string, consensus Consensus, mempool *Mempool, selfAddr string) (c *Chain, freshlyCreated bool, loadErr error) {
	if _, err := os.Stat(path); err == nil {
		loaded, err := Load(path, consensus, mempool, selfAddr)
		if err == nil {
			return loaded, false, nil
		}
		loadErr = err
	}
	fresh, err := New(consensus, mempool, selfAddr)
	if err != nil {
		return nil, true, err
	}
	return fresh, true, loadErr
}

func decodeIncludedIDs(data string) []string {
	var txs []*MessageTransaction
	if err := json.Unmarshal([]byte(data), &txs); err != nil {
		return nil
	}
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return ids
}

// EncodeTransactions serializes a transaction batch as the block data field
// (spec.md §4.6 step 5: "Serialize the transaction list as the block data
// (JSON array)").
func EncodeTransactions(txs []*MessageTransaction) (string, error) {
	data, err := json.Marshal(txs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
