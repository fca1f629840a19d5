// Package scheduler runs a fixed pool of worker goroutines, each
// repeatedly leasing a resource triple from clientpool, picking a random
// Task, and running it under a deadline — the Go analog of the original
// WorkerRunner::run_spammers loop over Box<dyn Task<TaskContext>>.
package scheduler

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tempospam/engine/internal/clientpool"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/nonce"
)

// TaskContext is everything a Task needs to run once: the leased resource
// triple, engine configuration, the nonce manager, and an optional
// database handle for an operational result log. Field-for-field this
// mirrors the original Rust TaskContext (provider/wallet/config/proxy/
// db/gas_manager).
type TaskContext struct {
	Context  context.Context
	Resource clientpool.Resource
	Config   config.Config
	NonceMgr *nonce.Manager
	DB       *sql.DB
}

// TaskResult is what a Task reports back after running once.
type TaskResult struct {
	Success bool
	Message string
	TxHash  *common.Hash
}

// Task is the narrow contract every piece of task business logic
// implements — the Go analog of the original `Box<dyn Task<TaskContext>>`
// dynamic dispatch.
type Task interface {
	Name() string
	Run(tc *TaskContext) TaskResult
}
