package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/tempospam/engine/internal/clientpool"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/nonce"
	"github.com/tempospam/engine/internal/store"
)

// Scheduler runs WorkerCount worker goroutines, each looping: acquire a
// lease, pick a random task, run it under a deadline, log the outcome,
// sleep a random interval, release the lease.
type Scheduler struct {
	pool     *clientpool.Pool
	tasks    []Task
	cfg      config.Config
	nonceMgr *nonce.Manager
	db       *sql.DB
	log      log.Logger
}

// New builds a Scheduler over pool, dispatching among tasks.
func New(pool *clientpool.Pool, tasks []Task, cfg config.Config, nonceMgr *nonce.Manager, db *sql.DB) *Scheduler {
	return &Scheduler{
		pool:     pool,
		tasks:    tasks,
		cfg:      cfg,
		nonceMgr: nonceMgr,
		db:       db,
		log:      log.New("component", "scheduler"),
	}
}

// Run starts cfg.WorkerCount workers and blocks until ctx is canceled or a
// worker returns a non-context error.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return errors.New("scheduler: no tasks registered")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		id := i
		g.Go(func() error {
			return s.runWorker(ctx, id)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runWorker(ctx context.Context, id int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	jitter := time.Duration(rng.Int63n(int64(s.cfg.Worker.StartupJitter) + 1))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lease, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}

		task := s.tasks[rng.Intn(len(s.tasks))]
		start := time.Now()
		result := s.runOne(ctx, id, task, lease)
		s.logResult(id, task, result, time.Since(start))
		s.recordResult(ctx, task, result)

		interval := randDuration(rng, s.cfg.Worker.TaskIntervalMin, s.cfg.Worker.TaskIntervalMax)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			lease.Close()
			return ctx.Err()
		}
		lease.Close()
	}
}

func (s *Scheduler) runOne(ctx context.Context, workerID int, task Task, lease *clientpool.Lease) (result TaskResult) {
	deadline := s.cfg.Worker.TaskTimeout
	taskCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tc := &TaskContext{
		Context:  taskCtx,
		Resource: lease.Resource,
		Config:   s.cfg,
		NonceMgr: s.nonceMgr,
		DB:       s.db,
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", "worker", workerID, "task", task.Name(), "panic", r)
			result = TaskResult{Success: false, Message: "task panicked"}
		}
	}()

	return task.Run(tc)
}

func (s *Scheduler) logResult(workerID int, task Task, result TaskResult, elapsed time.Duration) {
	if result.Success {
		s.log.Info("task completed", "worker", workerID, "task", task.Name(), "duration", elapsed, "txHash", result.TxHash)
	} else {
		s.log.Warn("task failed", "worker", workerID, "task", task.Name(), "duration", elapsed, "message", result.Message)
	}
}

func (s *Scheduler) recordResult(ctx context.Context, task Task, result TaskResult) {
	if s.db == nil {
		return
	}
	var txHash string
	if result.TxHash != nil {
		txHash = result.TxHash.Hex()
	}
	if err := store.RecordResult(ctx, s.db, task.Name(), result.Success, result.Message, txHash); err != nil {
		s.log.Warn("failed to journal task result", "task", task.Name(), "err", err)
	}
}

func randDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
