package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tempospam/engine/internal/clientpool"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/store"
	"github.com/tempospam/engine/internal/wallet"
)

type countingTask struct {
	name   string
	runs   atomic.Int32
	txHash common.Hash
}

func (c *countingTask) Name() string { return c.name }

func (c *countingTask) Run(tc *TaskContext) TaskResult {
	n := c.runs.Add(1)
	if n%2 == 0 {
		return TaskResult{Success: false, Message: "simulated failure"}
	}
	hash := c.txHash
	return TaskResult{Success: true, Message: "ok", TxHash: &hash}
}

func testResources(n int) []clientpool.Resource {
	resources := make([]clientpool.Resource, n)
	for i := range resources {
		resources[i] = clientpool.Resource{Wallet: &wallet.Wallet{Index: i, Address: common.BigToAddress(common.Big1)}}
	}
	return resources
}

func TestScheduler_RunsTasksAndJournalsResults(t *testing.T) {
	db, err := store.Open(t.TempDir() + "/scheduler.db")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer db.Close()

	pool := clientpool.New(testResources(2), time.Minute, 0)
	task := &countingTask{name: "counting", txHash: common.HexToHash("0xbeef")}

	cfg := config.Default()
	cfg.WorkerCount = 2
	cfg.Worker.StartupJitter = 0
	cfg.Worker.TaskTimeout = time.Second
	cfg.Worker.TaskIntervalMin = time.Millisecond
	cfg.Worker.TaskIntervalMax = 2 * time.Millisecond

	sched := New(pool, []Task{task}, cfg, nil, db)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := sched.Run(ctx); err != nil && err != context.DeadlineExceeded {
		t.Fatalf("Run() error = %v", err)
	}

	total, err := store.CountResults(context.Background(), db, "counting")
	if err != nil {
		t.Fatalf("CountResults() error = %v", err)
	}
	if total == 0 {
		t.Fatal("expected at least one journaled result")
	}
	if int(task.runs.Load()) != total {
		t.Fatalf("journaled %d results, want %d (one per Run())", total, task.runs.Load())
	}
}
