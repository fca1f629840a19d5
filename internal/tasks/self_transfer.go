// Package tasks ships two illustrative Task implementations that exercise
// the scheduler/nonce/submit/tempo stack end-to-end without implementing
// any real contract business logic — ERC-20 transfers, swaps, mints, and
// every other piece of business-logic task code remain out of scope per
// spec.md §1. These two exist only to give scheduler.Task a concrete,
// runnable tenant.
package tasks

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tempospam/engine/internal/scheduler"
	"github.com/tempospam/engine/internal/submit"
)

// SelfTransfer sends a zero-value, single-nonce transaction from a wallet
// to itself — the simplest possible exercise of the single-reservation
// path (reserve, sign, submit, commit), matching the S1 scenario in
// spec.md §8.
type SelfTransfer struct {
	Pipeline *submit.Pipeline
}

// Name implements scheduler.Task.
func (t *SelfTransfer) Name() string { return "self-transfer" }

// Run implements scheduler.Task.
func (t *SelfTransfer) Run(tc *scheduler.TaskContext) scheduler.TaskResult {
	res := tc.Resource
	client := res.Client
	wallet := res.Wallet
	addr := wallet.Address

	reservation, err := tc.NonceMgr.Reserve(tc.Context, addr)
	if err != nil {
		return scheduler.TaskResult{Success: false, Message: fmt.Sprintf("reserve nonce: %v", err)}
	}

	maxFee, priorityFee, err := client.SuggestFees(tc.Context,
		new(big.Int).SetUint64(tc.Config.Tempo.MaxPriorityFeePerGas),
		new(big.Int).SetUint64(tc.Config.Tempo.MaxFeePerGas),
	)
	if err != nil {
		reservation.Release()
		return scheduler.TaskResult{Success: false, Message: fmt.Sprintf("suggest fees: %v", err)}
	}

	// build re-signs the transfer at whatever nonce it is given, so the
	// submission pipeline can call it again with a freshly reserved nonce
	// after a NonceTooLow classification (spec.md §4.4/§4.5, scenario S4).
	build := func(nonce uint64) ([]byte, common.Hash, error) {
		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(tc.Config.ChainID),
			Nonce:     nonce,
			GasTipCap: priorityFee,
			GasFeeCap: maxFee,
			Gas:       21_000,
			To:        &addr,
			Value:     big.NewInt(0),
		})
		signed, err := types.SignTx(tx, types.NewLondonSigner(new(big.Int).SetUint64(tc.Config.ChainID)), wallet.PrivateKey())
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("sign: %w", err)
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("encode: %w", err)
		}
		return raw, signed.Hash(), nil
	}

	raw, hash, err := build(reservation.Nonce)
	if err != nil {
		reservation.Release()
		return scheduler.TaskResult{Success: false, Message: err.Error()}
	}

	final, finalHash, _, err := t.Pipeline.Send(tc.Context, client, addr, reservation, hash, raw, build)
	if err != nil {
		final.Release()
		return scheduler.TaskResult{Success: false, Message: fmt.Sprintf("submit: %v", err)}
	}

	if err := final.MarkSubmitted(); err != nil {
		return scheduler.TaskResult{Success: false, Message: fmt.Sprintf("mark submitted: %v", err)}
	}
	tc.NonceMgr.Commit(addr, final.Nonce)

	return scheduler.TaskResult{Success: true, Message: "self-transfer submitted", TxHash: &finalHash}
}
