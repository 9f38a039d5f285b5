// Package server implements the node server: the HTTP surface of spec.md
// §6, plus the three background tasks that drive chain replication — the
// mined-block consumer, the periodic peer-chain sync, and periodic
// persistence. Grounded in the teacher's rpc.Server lifecycle (timeout
// configuration, Start/Stop, background Serve goroutine) adapted from a
// JSON-RPC dispatcher to gorilla/mux REST routing.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/metrics"
	"github.com/msgchain/msgchain/mining"
	"github.com/msgchain/msgchain/p2p"
)

const (
	syncInterval    = 10 * time.Second
	persistInterval = 30 * time.Second
)

// Server hosts the node's HTTP API and owns the background replication
// tasks. selfAddr is this node's own advertised base URL, passed as the
// origin when broadcasting blocks this node produced; inbound blocks are
// re-broadcast with the sender's X-Node-Address header as the origin.
type Server struct {
	chain     *chain.Chain
	queue     *chain.Queue
	coord     *mining.Coordinator
	client    *p2p.Client
	metrics   *metrics.Metrics
	log       *zap.Logger
	selfAddr  string
	chainFile string

	srv *http.Server
	ln  net.Listener
}

// New constructs a Server. Start begins serving HTTP; the background tasks
// run only once RunBlockConsumer, RunSyncLoop and RunPersistenceLoop are
// started by the caller.
func New(c *chain.Chain, q *chain.Queue, coord *mining.Coordinator, client *p2p.Client, m *metrics.Metrics, log *zap.Logger, addr, selfAddr, chainFile string) *Server {
	s := &Server{
		chain:     c,
		queue:     q,
		coord:     coord,
		client:    client,
		metrics:   m,
		log:       log.Named("server"),
		selfAddr:  selfAddr,
		chainFile: chainFile,
	}

	router := mux.NewRouter()
	router.HandleFunc("/alive", s.handleAlive).Methods(http.MethodGet)
	router.HandleFunc("/chain", s.handleGetChain).Methods(http.MethodGet)
	router.HandleFunc("/block", s.handlePostBlock).Methods(http.MethodPost)
	router.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	router.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/pending", s.handlePending).Methods(http.MethodGet)
	router.HandleFunc("/nodes", s.handleGetNodes).Methods(http.MethodGet)
	router.HandleFunc("/nodes/register", s.handleRegisterNode).Methods(http.MethodPost)
	router.HandleFunc("/mining/start", s.handleMiningStart).Methods(http.MethodPost)
	router.HandleFunc("/mining/end", s.handleMiningEnd).Methods(http.MethodPost)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the listener synchronously so callers learn immediately of a
// bind failure, then serves requests on a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("server stopped serving", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// RunBlockConsumer receives mined candidates from the mining coordinator
// and applies the race-arbitration rule of spec.md §4.8/§5: the candidate
// is appended only if the chain has not advanced past the index it was
// mined against. A losing candidate is discarded and a sync is triggered.
// Runs until the candidates channel is closed.
func (s *Server) RunBlockConsumer() {
	for cand := range s.coord.Candidates() {
		err := s.chain.AppendAtIndex(cand.Block, cand.WantIndex, cand.IncludedIDs)
		switch {
		case err == nil:
			s.metrics.BlocksMined.Inc()
			s.metrics.ChainHeight.Set(float64(s.chain.Len()))
			s.metrics.MempoolSize.Set(float64(s.chain.Mempool().PendingCount()))
			s.log.Info("appended mined block", zap.Uint64("index", cand.Block.Index))
			nodes := s.chain.Nodes()
			s.client.BroadcastBlock(context.Background(), nodes, cand.Block, s.selfAddr)
			s.metrics.GossipBroadcasts.Inc()
		case err == chain.ErrStaleTip:
			s.log.Info("discarding stale mined candidate, chain advanced", zap.Uint64("wantIndex", cand.WantIndex))
			go s.syncOnce()
		default:
			s.log.Warn("mined candidate rejected", zap.Error(err))
		}
	}
}

// RunSyncLoop pulls every peer's chain every syncInterval and adopts the
// strictly longest one that passes validation (spec.md §4.8 sync task).
func (s *Server) RunSyncLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.syncOnce()
		case <-stop:
			return
		}
	}
}

func (s *Server) syncOnce() {
	nodes := s.chain.Nodes()
	localLen := s.chain.Len()
	best := localLen
	var bestBlocks []*chain.Block

	for _, peer := range nodes {
		blocks, err := s.client.PullChain(context.Background(), peer)
		if err != nil {
			s.log.Warn("sync pull failed", zap.String("peer", peer), zap.Error(err))
			continue
		}
		if uint64(len(blocks)) <= best {
			continue
		}
		if !chain.ValidateBlocks(blocks, s.chain.Consensus()) {
			s.log.Warn("sync candidate chain failed validation", zap.String("peer", peer))
			continue
		}
		best = uint64(len(blocks))
		bestBlocks = blocks
	}

	if bestBlocks != nil {
		s.chain.Replace(bestBlocks)
		s.metrics.ChainHeight.Set(float64(len(bestBlocks)))
		s.log.Info("adopted longer chain via sync", zap.Uint64("length", best))
	}
}

// RunPersistenceLoop saves the chain to s.chainFile every persistInterval.
// A write failure is logged; the next tick retries (spec.md §7
// PersistenceIO policy).
func (s *Server) RunPersistenceLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.chain.Save(s.chainFile); err != nil {
				s.log.Error("periodic persistence failed", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}
