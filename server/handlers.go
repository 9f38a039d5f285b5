package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/mining"
)

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	writeJSONString(w, http.StatusOK, "Node alive")
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Blocks())
}

// handlePostBlock decodes an inbound block, validates it against the
// current tip under the chain lock, and on success removes its
// transactions from the mempool, appends, refreshes ChainInfo, then
// asynchronously re-broadcasts to every peer except the sender (spec.md
// §4.8). On failure it rejects with 400.
func (s *Server) handlePostBlock(w http.ResponseWriter, r *http.Request) {
	var block chain.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		http.Error(w, "invalid block body", http.StatusBadRequest)
		return
	}

	if err := s.chain.AppendValidated(&block, nil); err != nil {
		s.metrics.BlocksRejected.Inc()
		s.log.Info("rejected inbound block", zap.Uint64("index", block.Index), zap.Error(err))
		http.Error(w, "invalid block", http.StatusBadRequest)
		return
	}

	s.metrics.BlocksReceived.Inc()
	s.metrics.ChainHeight.Set(float64(s.chain.Len()))
	s.metrics.MempoolSize.Set(float64(s.chain.Mempool().PendingCount()))

	origin := r.Header.Get("X-Node-Address")
	nodes := s.chain.Nodes()
	go func() {
		s.client.BroadcastBlock(context.Background(), nodes, &block, origin)
		s.metrics.GossipBroadcasts.Inc()
	}()

	writeJSONString(w, http.StatusOK, "block added")
}

// handleGenerate mines a block synchronously from the current mempool
// contents, bypassing the mining coordinator. 400 if the mempool is empty.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	messages := s.chain.Mempool().Pending(10)
	if len(messages) == 0 {
		http.Error(w, "mempool empty", http.StatusBadRequest)
		return
	}

	length, prevHash := s.chain.Info().Snapshot()
	data, err := chain.EncodeTransactions(messages)
	if err != nil {
		http.Error(w, "encode block data", http.StatusInternalServerError)
		return
	}
	timestamp := time.Now().Unix()
	proof, err := s.chain.Consensus().Prove(length, timestamp, data, prevHash)
	if err != nil {
		http.Error(w, "prove block", http.StatusInternalServerError)
		return
	}
	block, err := chain.NewBlock(length, timestamp, data, prevHash, proof)
	if err != nil {
		http.Error(w, "construct block", http.StatusInternalServerError)
		return
	}

	ids := make([]string, 0, len(messages))
	for _, tx := range messages {
		ids = append(ids, tx.ID)
	}
	if err := s.chain.AppendAtIndex(block, length, ids); err != nil {
		http.Error(w, "append generated block", http.StatusInternalServerError)
		return
	}

	s.metrics.BlocksMined.Inc()
	s.metrics.ChainHeight.Set(float64(s.chain.Len()))
	s.metrics.MempoolSize.Set(float64(s.chain.Mempool().PendingCount()))
	nodes := s.chain.Nodes()
	go s.client.BroadcastBlock(context.Background(), nodes, block, s.selfAddr)

	writeJSON(w, http.StatusOK, block)
}

// handleSubmit enqueues a message via the message queue, then signals
// StartMining (spec.md §6 POST /submit).
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid submit body", http.StatusBadRequest)
		return
	}

	if err := s.queue.Submit(body.Message); err != nil {
		http.Error(w, "queue failed", http.StatusInternalServerError)
		return
	}
	s.metrics.MempoolSize.Set(float64(s.chain.Mempool().PendingCount()))

	select {
	case s.coord.Commands() <- mining.StartMining:
	default:
		s.log.Warn("mining command channel full, StartMining not sent")
	}

	writeJSONString(w, http.StatusOK, "Message queued successfully")
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		PendingTransactions int `json:"pending_transactions"`
	}{PendingTransactions: s.chain.Mempool().PendingCount()})
}

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Nodes []string `json:"nodes"`
	}{Nodes: s.chain.Nodes()})
}

// handleRegisterNode checks that the new address is reachable before
// registering it, then asynchronously broadcasts the registration to the
// existing peer set (spec.md §4.8).
func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid registration body", http.StatusBadRequest)
		return
	}

	if !s.client.CheckAlive(r.Context(), body.Address) {
		http.Error(w, "peer unreachable", http.StatusBadRequest)
		return
	}

	existing := s.chain.Nodes()
	s.chain.AddNode(body.Address)
	go s.client.BroadcastNodeRegistration(context.Background(), existing, body.Address)

	writeJSONString(w, http.StatusOK, "Node "+body.Address+" registered")
}

func (s *Server) handleMiningStart(w http.ResponseWriter, r *http.Request) {
	s.coord.Commands() <- mining.StartMining
	writeJSONString(w, http.StatusOK, "Mining Started")
}

func (s *Server) handleMiningEnd(w http.ResponseWriter, r *http.Request) {
	s.coord.Commands() <- mining.StopMining
	writeJSONString(w, http.StatusOK, "Stopped Mining")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONString(w http.ResponseWriter, status int, s string) {
	writeJSON(w, status, s)
}
