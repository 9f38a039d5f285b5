// Command node starts a msgchain node: an HTTP-gossiped proof-of-work
// chain of free-form message transactions.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msgchain/msgchain/bootstrap"
	"github.com/msgchain/msgchain/metrics"
	"github.com/msgchain/msgchain/mining"
	"github.com/msgchain/msgchain/p2p"
	"github.com/msgchain/msgchain/server"
)

func main() {
	var (
		port           int
		chainFile      string
		consensusName  string
		difficulty     int
		accumulationMs int
		seeds          []string
		dev            bool
	)

	root := &cobra.Command{
		Use:   "node",
		Short: "Run a msgchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOpts{
				port:           port,
				chainFile:      chainFile,
				consensusName:  consensusName,
				difficulty:     difficulty,
				accumulationMs: accumulationMs,
				seeds:          seeds,
				dev:            dev,
			})
		},
	}

	flags := root.Flags()
	flags.IntVar(&port, "port", 0, "port to listen on (required)")
	flags.StringVar(&chainFile, "chain-file", "", "path to the on-disk chain file (default chain_{port}.json)")
	flags.StringVar(&consensusName, "consensus", "pow", "consensus rule: pow|pos")
	flags.IntVar(&difficulty, "difficulty", 4, "proof-of-work difficulty (leading zero count)")
	flags.IntVar(&accumulationMs, "accumulation-ms", 1000, "mining accumulation pause in milliseconds")
	flags.StringArrayVar(&seeds, "seed", nil, "seed peer base URL (repeatable)")
	flags.BoolVar(&dev, "dev", false, "run with development-mode logging")
	_ = root.MarkFlagRequired("port")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type runOpts struct {
	port           int
	chainFile      string
	consensusName  string
	difficulty     int
	accumulationMs int
	seeds          []string
	dev            bool
}

func run(opts runOpts) error {
	log, err := newLogger(opts.dev)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	chainFile := opts.chainFile
	if chainFile == "" {
		chainFile = fmt.Sprintf("chain_%d.json", opts.port)
	}
	selfAddr := fmt.Sprintf("http://localhost:%d", opts.port)

	cfg := bootstrap.Config{
		Port:           opts.port,
		ChainFile:      chainFile,
		ConsensusName:  opts.consensusName,
		Difficulty:     opts.difficulty,
		MempoolMax:     1000,
		MempoolTTLSecs: 300,
		AccumulationMs: opts.accumulationMs,
		SeedPeers:      opts.seeds,
		SelfAddr:       selfAddr,
	}

	node, err := bootstrap.Build(cfg, log)
	if err != nil {
		if err == bootstrap.ErrUnimplementedConsensus {
			return err
		}
		return fmt.Errorf("bootstrap: %w", err)
	}

	m := metrics.New()
	client := p2p.New(log, selfAddr)
	coord := mining.New(node.Mempool, node.Chain.Info(), node.Consensus, time.Duration(cfg.AccumulationMs)*time.Millisecond, log, m)
	srv := server.New(node.Chain, node.Queue, coord, client, m, log, fmt.Sprintf(":%d", opts.port), selfAddr, chainFile)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("node listening", zap.Int("port", opts.port), zap.String("chain_file", chainFile))

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		node.Queue.Run(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.RunBlockConsumer()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.RunSyncLoop(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.RunPersistenceLoop(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	close(done)
	coord.Commands() <- mining.Shutdown
	wg.Wait()

	if err := node.Chain.Save(chainFile); err != nil {
		log.Error("final persistence failed", zap.Error(err))
	}
	if err := srv.Stop(); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
