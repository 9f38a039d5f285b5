package mining

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
	"github.com/msgchain/msgchain/consensus"
)

func TestCoordinatorMinesPendingMessages(t *testing.T) {
	mempool := chain.NewMempool(100, time.Minute)
	info := chain.NewInfo(1, "genesis-hash")
	pow := consensus.NewProofOfWork(1)

	coord := New(mempool, info, pow, 10*time.Millisecond, zap.NewNop(), nil)
	go coord.Run()
	defer func() { coord.Commands() <- Shutdown }()

	if _, err := mempool.Add("hello"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case cand := <-coord.Candidates():
		if cand.Block.Index != 1 {
			t.Errorf("candidate index: got %d want 1", cand.Block.Index)
		}
		if len(cand.IncludedIDs) != 1 {
			t.Errorf("included ids: got %d want 1", len(cand.IncludedIDs))
		}
		if cand.Block.PreviousHash != "genesis-hash" {
			t.Errorf("previous_hash: got %q want %q", cand.Block.PreviousHash, "genesis-hash")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a mined candidate")
	}
}

func TestCoordinatorStartStopCommands(t *testing.T) {
	mempool := chain.NewMempool(100, time.Minute)
	info := chain.NewInfo(1, "genesis-hash")
	pow := consensus.NewProofOfWork(1)

	coord := New(mempool, info, pow, 10*time.Millisecond, zap.NewNop(), nil)
	go coord.Run()

	coord.Commands() <- StartMining
	coord.Commands() <- StopMining
	coord.Commands() <- Shutdown

	// No assertion beyond "does not deadlock": the coordinator must drain
	// all three commands and return promptly from Run on Shutdown.
	time.Sleep(50 * time.Millisecond)
}
