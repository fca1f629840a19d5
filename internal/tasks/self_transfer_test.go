package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tempospam/engine/internal/clientpool"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/nonce"
	"github.com/tempospam/engine/internal/scheduler"
	"github.com/tempospam/engine/internal/submit"
)

func TestSelfTransfer_SubmitsAndCommitsNonce(t *testing.T) {
	srv := newFakeChainServer(t)
	defer srv.Close()

	w := testWallet(t)
	mgr := nonce.NewManager(&fakeFetcher{nonce: 3}, config.NonceConfig{ShardCount: 1, AdaptiveBackoff: false})
	pipeline := submit.NewPipeline(config.RetryConfig{MaxRetries: 0}, submit.NewCircuitBreaker("t", submit.DefaultCircuitBreakerConfig()), mgr, nil)

	task := &SelfTransfer{Pipeline: pipeline}
	cfg := config.Default()
	tc := &scheduler.TaskContext{
		Context:  context.Background(),
		Resource: clientpool.Resource{Wallet: w, Client: dialFake(t, srv)},
		Config:   cfg,
		NonceMgr: mgr,
	}

	result := task.Run(tc)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Message)
	}
	if len(srv.raws) != 1 {
		t.Fatalf("server saw %d submissions, want 1", len(srv.raws))
	}

	var tx types.Transaction
	if err := tx.UnmarshalBinary(common.FromHex("0x" + srv.raws[0])); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if tx.Nonce() != 3 {
		t.Fatalf("submitted nonce = %d, want 3", tx.Nonce())
	}
	if to := tx.To(); to == nil || *to != w.Address {
		t.Fatalf("submitted recipient = %v, want self (%v)", to, w.Address)
	}

	next, err := mgr.Reserve(context.Background(), w.Address)
	if err != nil {
		t.Fatalf("Reserve() after commit error = %v", err)
	}
	if next.Nonce != 4 {
		t.Fatalf("next reserved nonce = %d, want 4", next.Nonce)
	}
}

// TestSelfTransfer_RebuildsAndRetriesAfterNonceTooLow exercises scenario S4:
// the first submission is rejected as "nonce too low", and the pipeline
// must reset the cache, re-reserve against the chain's now-advanced
// pending count, rebuild and re-sign the transaction, and resubmit within
// the retry budget.
func TestSelfTransfer_RebuildsAndRetriesAfterNonceTooLow(t *testing.T) {
	srv := newFakeChainServer(t)
	srv.sendFail = "nonce too low"
	srv.sendFailTimes = 1
	defer srv.Close()

	w := testWallet(t)
	mgr := nonce.NewManager(&fakeFetcher{seq: []uint64{50, 51}}, config.NonceConfig{ShardCount: 1, AdaptiveBackoff: false})
	retryCfg := config.RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
		JitterMin:       1,
		JitterMax:       1,
	}
	pipeline := submit.NewPipeline(retryCfg, submit.NewCircuitBreaker("t", submit.DefaultCircuitBreakerConfig()), mgr, nil)

	task := &SelfTransfer{Pipeline: pipeline}
	cfg := config.Default()
	tc := &scheduler.TaskContext{
		Context:  context.Background(),
		Resource: clientpool.Resource{Wallet: w, Client: dialFake(t, srv)},
		Config:   cfg,
		NonceMgr: mgr,
	}

	result := task.Run(tc)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Message)
	}
	if len(srv.raws) != 2 {
		t.Fatalf("server saw %d submissions, want 2 (one rejected, one rebuilt)", len(srv.raws))
	}

	var first, second types.Transaction
	if err := first.UnmarshalBinary(common.FromHex("0x" + srv.raws[0])); err != nil {
		t.Fatalf("UnmarshalBinary(first) error = %v", err)
	}
	if err := second.UnmarshalBinary(common.FromHex("0x" + srv.raws[1])); err != nil {
		t.Fatalf("UnmarshalBinary(second) error = %v", err)
	}
	if first.Nonce() != 50 {
		t.Fatalf("first submitted nonce = %d, want 50", first.Nonce())
	}
	if second.Nonce() != 51 {
		t.Fatalf("second (rebuilt) submitted nonce = %d, want 51", second.Nonce())
	}

	next, err := mgr.Reserve(context.Background(), w.Address)
	if err != nil {
		t.Fatalf("Reserve() after commit error = %v", err)
	}
	if next.Nonce != 52 {
		t.Fatalf("next reserved nonce = %d, want 52 (committed past the rebuilt submission)", next.Nonce)
	}
}
