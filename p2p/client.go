// Package p2p implements the replication client: the outbound half of the
// gossip protocol used to broadcast blocks, pull peer chains, register new
// nodes, and check liveness (spec.md §6). It is a thin REST client over a
// single shared *http.Client, grounded in the reference client's four
// operations (broadcast_block, sync_chain, broadcast_node_registration,
// check_node_alive) but adapted to spec.md's HTTP wire contract instead of
// the teacher's length-prefixed TCP framing.
package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/msgchain/msgchain/chain"
)

// Client is the outbound replication client shared by the mining block
// consumer and the periodic sync task.
type Client struct {
	http     *http.Client
	log      *zap.Logger
	selfAddr string
}

// New constructs a Client with sane request timeouts, matching the
// teacher's server-side timeout idiom applied to the outbound side.
// selfAddr is stamped on outbound block broadcasts as X-Node-Address so the
// receiving peer can suppress re-broadcasting back to us.
func New(log *zap.Logger, selfAddr string) *Client {
	return &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log.Named("p2p"),
		selfAddr: selfAddr,
	}
}

// BroadcastBlock POSTs block to every peer in nodes except origin (if
// non-empty), preserving invariant 7's origin-suppression. Every request
// carries X-Node-Address: selfAddr, so the receiving peer can suppress
// broadcasting the block back to us in turn. Failures to individual peers
// are logged and do not stop the broadcast to the rest.
func (c *Client) BroadcastBlock(ctx context.Context, nodes []string, block *chain.Block, origin string) {
	body, err := json.Marshal(block)
	if err != nil {
		c.log.Error("marshal block for broadcast", zap.Error(err))
		return
	}
	for _, node := range nodes {
		if origin != "" && node == origin {
			continue
		}
		if err := c.postJSONFrom(ctx, node+"/block", body); err != nil {
			c.log.Warn("broadcast block failed", zap.String("peer", node), zap.Error(err))
			continue
		}
		c.log.Debug("block broadcast succeeded", zap.String("peer", node))
	}
}

// PullChain fetches the full block list from peer's /chain endpoint.
func (c *Client) PullChain(ctx context.Context, peer string) ([]*chain.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/chain", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get chain from %s: %w", peer, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get chain from %s: status %d", peer, resp.StatusCode)
	}
	var blocks []*chain.Block
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		return nil, fmt.Errorf("decode chain from %s: %w", peer, err)
	}
	return blocks, nil
}

// BroadcastNodeRegistration POSTs newAddr to every peer in nodes except
// newAddr itself, and returns the addresses of peers that acknowledged
// with a successful response.
func (c *Client) BroadcastNodeRegistration(ctx context.Context, nodes []string, newAddr string) []string {
	body, err := json.Marshal(struct {
		Address string `json:"address"`
	}{Address: newAddr})
	if err != nil {
		c.log.Error("marshal node registration", zap.Error(err))
		return nil
	}

	var acked []string
	for _, node := range nodes {
		if node == newAddr {
			continue
		}
		if err := c.postJSON(ctx, node+"/nodes/register", body); err != nil {
			c.log.Warn("node registration broadcast failed", zap.String("peer", node), zap.Error(err))
			continue
		}
		acked = append(acked, node)
	}
	return acked
}

// CheckAlive reports whether address's /alive endpoint responds with a 2xx
// status. Any transport error or non-2xx status is treated as not alive.
func (c *Client) CheckAlive(ctx context.Context, address string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+"/alive", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) postJSON(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// postJSONFrom is postJSON plus an X-Node-Address header identifying this
// node as the sender, used for block broadcasts so the receiver can
// suppress re-broadcasting back to us.
func (c *Client) postJSONFrom(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Node-Address", c.selfAddr)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
