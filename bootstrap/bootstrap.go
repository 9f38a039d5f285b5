// Package bootstrap wires a node's components together: consensus
// selection, chain-file load-or-create, seed peer registration, and
// construction of the mempool and message queue. The mining coordinator
// and server are constructed by the caller (cmd/node).
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/consensus"
)

// Config holds the resolved CLI flags needed to bring up a node.
type Config struct {
	Port           int
	ChainFile      string
	ConsensusName  string
	Difficulty     int
	MempoolMax     int
	MempoolTTLSecs int
	AccumulationMs int
	SeedPeers      []string
	SelfAddr       string
}

// ErrUnimplementedConsensus is returned when --consensus pos is requested.
// Proof-of-stake is named in the CLI surface but out of scope for this
// node (spec.md §6: "pos SHALL abort with 'not implemented'").
var ErrUnimplementedConsensus = errors.New("bootstrap: consensus \"pos\" is not implemented")

// ResolveConsensus builds the chain.Consensus implementation named by
// cfg.ConsensusName.
func ResolveConsensus(cfg Config) (chain.Consensus, error) {
	switch cfg.ConsensusName {
	case "", "pow":
		return consensus.NewProofOfWork(cfg.Difficulty), nil
	case "pos":
		return nil, ErrUnimplementedConsensus
	default:
		return nil, fmt.Errorf("bootstrap: unknown consensus %q", cfg.ConsensusName)
	}
}

// Node bundles the constructed components a caller (cmd/node) needs to
// start serving.
type Node struct {
	Chain     *chain.Chain
	Mempool   *chain.Mempool
	Queue     *chain.Queue
	Consensus chain.Consensus
}

// Build resolves consensus, loads or creates the chain file, and
// constructs the mempool and message queue around it. It does not start
// any goroutines or the HTTP server — callers (cmd/node) do that.
func Build(cfg Config, log *zap.Logger) (*Node, error) {
	cons, err := ResolveConsensus(cfg)
	if err != nil {
		return nil, err
	}

	mempool := chain.NewMempool(cfg.MempoolMax, time.Duration(cfg.MempoolTTLSecs)*time.Second)
	c, freshlyCreated, loadErr := chain.LoadOrCreate(cfg.ChainFile, cons, mempool, cfg.SelfAddr)
	if loadErr != nil {
		log.Warn("chain file present but failed to decode, starting fresh genesis",
			zap.String("path", cfg.ChainFile), zap.Error(loadErr))
	}
	if freshlyCreated {
		log.Info("starting fresh chain", zap.String("consensus", cons.Name()))
	} else {
		log.Info("loaded chain from disk", zap.String("path", cfg.ChainFile), zap.Uint64("length", c.Len()))
	}

	for _, peer := range cfg.SeedPeers {
		c.AddNode(peer)
	}

	queue := chain.NewQueue(mempool)

	return &Node{Chain: c, Mempool: mempool, Queue: queue, Consensus: cons}, nil
}
