// Package mining implements the command-driven mining coordinator: a single
// goroutine that accumulates pending transactions, runs proof-of-work off
// the request-serving path, and hands finished blocks to the server over a
// bounded channel (spec.md §4.6).
package mining

import (
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/metrics"
)

// Command is sent on the coordinator's command channel.
type Command int

const (
	// StartMining makes each cycle pause for the accumulation time before
	// snapshotting the mempool, so transactions batch up.
	StartMining Command = iota
	// StopMining drops the accumulation pause. The coordinator keeps
	// mining whatever is pending, without the pause.
	StopMining
	// Shutdown stops the coordinator's run loop for good.
	Shutdown
)

// Candidate is a mined block paired with the ids of the mempool
// transactions it includes, so the consumer can purge them on acceptance.
type Candidate struct {
	Block       *chain.Block
	IncludedIDs []string
	WantIndex   uint64 // chain length the candidate was mined against
}

const (
	maxMessagesPerBlock = 10
	idleSleep           = 500 * time.Millisecond
	commandChannelCap   = 32
	candidateChannelCap = 32
)

// Coordinator owns the mining loop. It is driven entirely by Commands sent
// on Commands() and by the state of the chain's mempool and Info cache; it
// never takes the chain's own lock.
type Coordinator struct {
	commands  chan Command
	candidate chan Candidate

	mempool        *chain.Mempool
	info           *chain.Info
	consensus      chain.Consensus
	accumulationMs time.Duration
	log            *zap.Logger
	metrics        *metrics.Metrics

	isMining bool
}

// New constructs a Coordinator. accumulation is the pause taken between
// accumulation cycles while mining is active (spec.md's accumulation_time_ms,
// exposed as the --accumulation-ms flag). m may be nil, in which case proof
// search is not instrumented (used by tests that don't need metrics wiring).
func New(mempool *chain.Mempool, info *chain.Info, consensus chain.Consensus, accumulation time.Duration, log *zap.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		commands:       make(chan Command, commandChannelCap),
		candidate:      make(chan Candidate, candidateChannelCap),
		mempool:        mempool,
		info:           info,
		consensus:      consensus,
		accumulationMs: accumulation,
		log:            log.Named("mining"),
		metrics:        m,
	}
}

// Commands returns the channel used to send Start/Stop/Shutdown commands.
func (c *Coordinator) Commands() chan<- Command { return c.commands }

// Candidates returns the channel the server consumes mined blocks from.
func (c *Coordinator) Candidates() <-chan Candidate { return c.candidate }

// Run drives the coordinator loop until a Shutdown command is received or
// ctx-style cancellation is signaled by closing the commands channel. It is
// meant to run on its own goroutine for the process lifetime.
func (c *Coordinator) Run() {
	for {
		drained, shutdown := c.drainCommands()
		if shutdown {
			c.log.Info("mining coordinator shutting down")
			close(c.candidate)
			return
		}
		_ = drained

		if c.isMining {
			time.Sleep(c.accumulationMs)
		}

		messages := c.mempool.Pending(maxMessagesPerBlock)
		if len(messages) == 0 {
			time.Sleep(idleSleep)
			continue
		}

		candidate, ok := c.mineBlock(messages)
		if !ok {
			time.Sleep(idleSleep)
			continue
		}

		select {
		case c.candidate <- candidate:
			c.log.Info("minted block", zap.Uint64("index", candidate.Block.Index))
		default:
			c.log.Warn("block candidate channel full, dropping mined block", zap.Uint64("index", candidate.Block.Index))
		}
	}
}

// drainCommands applies every command currently queued without blocking,
// matching the reference loop's try_recv-until-empty shape. It reports
// whether a Shutdown command was seen or the commands channel was closed.
func (c *Coordinator) drainCommands() (drained int, shutdown bool) {
	for {
		select {
		case cmd, ok := <-c.commands:
			if !ok {
				return drained, true
			}
			drained++
			switch cmd {
			case StartMining:
				c.log.Info("start mining")
				c.isMining = true
			case StopMining:
				c.log.Info("stop mining")
				c.isMining = false
			case Shutdown:
				return drained, true
			}
		default:
			return drained, false
		}
	}
}

// mineBlock serializes messages as the block data, reads the current chain
// tip from the lock-light Info cache, and runs proof-of-work on this
// goroutine — never on a request-serving or chain-lock-holding one.
func (c *Coordinator) mineBlock(messages []*chain.MessageTransaction) (Candidate, bool) {
	if len(messages) == 0 {
		return Candidate{}, false
	}

	length, prevHash := c.info.Snapshot()
	data, err := chain.EncodeTransactions(messages)
	if err != nil {
		c.log.Error("encode block data", zap.Error(err))
		return Candidate{}, false
	}
	timestamp := time.Now().Unix()

	searchStart := time.Now()
	proof, err := c.consensus.Prove(length, timestamp, data, prevHash)
	if c.metrics != nil {
		c.metrics.ProofSearchSecs.Observe(time.Since(searchStart).Seconds())
	}
	if err != nil {
		c.log.Error("prove block", zap.Error(err))
		return Candidate{}, false
	}

	block, err := chain.NewBlock(length, timestamp, data, prevHash, proof)
	if err != nil {
		c.log.Error("construct mined block", zap.Error(err))
		return Candidate{}, false
	}

	ids := make([]string, 0, len(messages))
	for _, tx := range messages {
		ids = append(ids, tx.ID)
	}

	return Candidate{Block: block, IncludedIDs: ids, WantIndex: length}, true
}
