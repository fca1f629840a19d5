package tasks

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/tempospam/engine/internal/scheduler"
	"github.com/tempospam/engine/internal/submit"
	"github.com/tempospam/engine/internal/tempo"
)

// TempoBatchMint builds a Tempo 0x76 envelope carrying CallCount identical
// calls to a target contract — standing in for the deploy-fund-distribute
// and batch-mint pipelines spec.md §4.6 describes, without any real ABI
// encoding (those remain out of scope). It exercises ReserveBatch rather
// than Reserve since the whole call list lands in a single transaction at
// a single nonce, matching how risechain's task registry uses batch
// reservations for its own multi-call tasks.
type TempoBatchMint struct {
	Pipeline  *submit.Pipeline
	Target    common.Address
	CallCount int
}

// Name implements scheduler.Task.
func (t *TempoBatchMint) Name() string { return "tempo-batch-mint" }

// Run implements scheduler.Task.
func (t *TempoBatchMint) Run(tc *scheduler.TaskContext) scheduler.TaskResult {
	res := tc.Resource
	wallet := res.Wallet
	client := res.Client
	addr := wallet.Address

	count := t.CallCount
	if count <= 0 {
		count = 1
	}

	// A Tempo envelope is one on-chain transaction at one nonce even
	// though it batches many calls, so only a single-slot reservation is
	// needed here; ReserveBatch (rather than Reserve) is used anyway to
	// keep every task funneled through the one contiguous-allocation path
	// spec.md §4.4 calls for.
	reservations, err := tc.NonceMgr.ReserveBatch(tc.Context, addr, 1)
	if err != nil {
		return scheduler.TaskResult{Success: false, Message: fmt.Sprintf("reserve batch: %v", err)}
	}
	reservation := reservations[0]

	// build re-signs the envelope at whatever nonce it is given, so the
	// submission pipeline can call it again with a freshly reserved nonce
	// after a NonceTooLow classification (spec.md §4.4/§4.5, scenario S4).
	build := func(nonce uint64) ([]byte, common.Hash, error) {
		tx := tempo.New()
		tx.ChainID = tc.Config.Tempo.ChainID
		tx.MaxPriorityFeePerGas = tc.Config.Tempo.MaxPriorityFeePerGas
		tx.MaxFeePerGas = tc.Config.Tempo.MaxFeePerGas
		tx.GasLimit = tc.Config.Tempo.GasLimit
		tx.Nonce = nonce
		tx.FeeToken = nil
		if tc.Config.Tempo.FeeToken != "" {
			feeToken := common.HexToAddress(tc.Config.Tempo.FeeToken)
			tx.FeeToken = &feeToken
		}
		tx.Calls = make([]tempo.Call, count)
		for i := range tx.Calls {
			tx.Calls[i] = tempo.NewCall(t.Target, nil).WithValue(new(uint256.Int))
		}

		if err := tx.Validate(); err != nil {
			return nil, common.Hash{}, fmt.Errorf("validate: %w", err)
		}
		if err := tx.Sign(wallet.PrivateKey()); err != nil {
			return nil, common.Hash{}, fmt.Errorf("sign: %w", err)
		}
		raw, err := tx.Encode()
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("encode: %w", err)
		}
		hash, err := tx.SigningHash()
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("signing hash: %w", err)
		}
		return raw, hash, nil
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

	return scheduler.TaskResult{Success: true, Message: fmt.Sprintf("tempo batch mint (%d calls) submitted", count), TxHash: &finalHash}
}
