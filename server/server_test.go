package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/consensus"
	"github.com/msgchain/msgchain/metrics"
	"github.com/msgchain/msgchain/mining"
	"github.com/msgchain/msgchain/p2p"
)

func newTestServer(t *testing.T) (*Server, *chain.Chain) {
	t.Helper()
	mempool := chain.NewMempool(100, time.Minute)
	pow := consensus.NewProofOfWork(1)
	c, err := chain.New(pow, mempool, "http://localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	queue := chain.NewQueue(mempool)
	go queue.Run(make(chan struct{}))

	m := metrics.New()
	coord := mining.New(mempool, c.Info(), pow, 10*time.Millisecond, zap.NewNop(), m)
	client := p2p.New(zap.NewNop(), "http://localhost:0")

	srv := New(c, queue, coord, client, m, zap.NewNop(), ":0", "http://localhost:0", t.TempDir()+"/chain.json")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, c
}

func get(t *testing.T, srv *Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get("http://" + srv.Addr().String() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func post(t *testing.T, srv *Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post("http://"+srv.Addr().String()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestAliveEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := get(t, srv, "/alive")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d want 200", resp.StatusCode)
	}
}

func TestChainEndpointReturnsGenesis(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := get(t, srv, "/chain")
	defer resp.Body.Close()

	var blocks []*chain.Block
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Index != 0 {
		t.Errorf("expected only genesis, got %+v", blocks)
	}
}

func TestSubmitThenPendingThenGenerate(t *testing.T) {
	srv, c := newTestServer(t)

	resp := post(t, srv, "/submit", map[string]string{"message": "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status: got %d want 200", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for c.Mempool().PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Mempool().PendingCount() != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", c.Mempool().PendingCount())
	}

	genResp := post(t, srv, "/generate", nil)
	defer genResp.Body.Close()
	if genResp.StatusCode != http.StatusOK {
		t.Fatalf("generate status: got %d want 200", genResp.StatusCode)
	}
	var block chain.Block
	if err := json.NewDecoder(genResp.Body).Decode(&block); err != nil {
		t.Fatalf("decode generated block: %v", err)
	}
	if block.Index != 1 {
		t.Errorf("generated block index: got %d want 1", block.Index)
	}
	if c.Mempool().PendingCount() != 0 {
		t.Error("generated block should purge its transactions from the mempool")
	}
}

func TestGenerateFailsOnEmptyMempool(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv, "/generate", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d want 400", resp.StatusCode)
	}
}

func TestPostBlockRejectsInvalid(t *testing.T) {
	srv, c := newTestServer(t)
	bad := *c.Tip()
	bad.Data = "tampered"

	resp := post(t, srv, "/block", bad)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d want 400", resp.StatusCode)
	}
}

func TestNodesRegisterRejectsUnreachablePeer(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv, "/nodes/register", map[string]string{"address": "http://127.0.0.1:1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d want 400", resp.StatusCode)
	}
}

func TestMiningStartEndCommands(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv, "/mining/start", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("mining/start status: got %d want 200", resp.StatusCode)
	}
	resp2 := post(t, srv, "/mining/end", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("mining/end status: got %d want 200", resp2.StatusCode)
	}
}
