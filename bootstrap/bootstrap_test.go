package bootstrap

import (
	"testing"

	"go.uber.org/zap"
)

func TestResolveConsensusPow(t *testing.T) {
	cons, err := ResolveConsensus(Config{ConsensusName: "pow", Difficulty: 3})
	if err != nil {
		t.Fatalf("ResolveConsensus: %v", err)
	}
	if cons.Name() != "pow" {
		t.Errorf("name: got %q want %q", cons.Name(), "pow")
	}
}

func TestResolveConsensusDefaultsToPow(t *testing.T) {
	cons, err := ResolveConsensus(Config{Difficulty: 2})
	if err != nil {
		t.Fatalf("ResolveConsensus: %v", err)
	}
	if cons.Name() != "pow" {
		t.Error("empty consensus name should default to pow")
	}
}

func TestResolveConsensusPosNotImplemented(t *testing.T) {
	_, err := ResolveConsensus(Config{ConsensusName: "pos"})
	if err != ErrUnimplementedConsensus {
		t.Errorf("pos consensus: got %v want ErrUnimplementedConsensus", err)
	}
}

func TestBuildCreatesFreshChainWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ChainFile:      dir + "/chain.json",
		ConsensusName:  "pow",
		Difficulty:     1,
		MempoolMax:     10,
		MempoolTTLSecs: 60,
		SelfAddr:       "http://self",
	}
	node, err := Build(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if node.Chain.Len() != 1 {
		t.Errorf("fresh chain length: got %d want 1", node.Chain.Len())
	}
}

func TestBuildRegistersSeedPeers(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ChainFile:      dir + "/chain.json",
		ConsensusName:  "pow",
		Difficulty:     1,
		MempoolMax:     10,
		MempoolTTLSecs: 60,
		SeedPeers:      []string{"http://seed-one", "http://seed-two"},
		SelfAddr:       "http://self",
	}
	node, err := Build(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nodes := node.Chain.Nodes()
	if len(nodes) != 2 {
		t.Errorf("expected 2 seed peers registered, got %d", len(nodes))
	}
}
