package svm

import (
	"bytes"
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// The methods below mirror the rpc.Client calls the client, keeper and
// indexer packages depend on, so the ledger can stand in for a cluster.

func (b *Bank) GetAccountInfo(_ context.Context, key solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[key]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: b.slot}},
		Value:      rpcAccount(acc),
	}, nil
}

func (b *Bank) GetProgramAccountsWithOpts(_ context.Context, programID solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out rpc.GetProgramAccountsResult
	for key, acc := range b.accounts {
		if !acc.Owner.Equals(programID) || !matchFilters(acc.Data, opts) {
			continue
		}
		out = append(out, &rpc.KeyedAccount{Pubkey: key, Account: rpcAccount(acc)})
	}
	return out, nil
}

func matchFilters(data []byte, opts *rpc.GetProgramAccountsOpts) bool {
	if opts == nil {
		return true
	}
	for _, f := range opts.Filters {
		if f.DataSize != 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if f.Memcmp != nil {
			end := f.Memcmp.Offset + uint64(len(f.Memcmp.Bytes))
			if end > uint64(len(data)) || !bytes.Equal(data[f.Memcmp.Offset:end], f.Memcmp.Bytes) {
				return false
			}
		}
	}
	return true
}

func rpcAccount(acc Account) *rpc.Account {
	return &rpc.Account{
		Lamports:   acc.Lamports,
		Owner:      acc.Owner,
		Data:       rpc.DataBytesOrJSONFromBytes(append([]byte(nil), acc.Data...)),
		Executable: acc.Executable,
		Space:      uint64(len(acc.Data)),
	}
}

func (b *Bank) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &rpc.GetLatestBlockhashResult{
		RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: b.slot}},
		Value:      &rpc.LatestBlockhashResult{Blockhash: b.blockhash, LastValidBlockHeight: b.slot + recentBlockhashes},
	}, nil
}

func (b *Bank) GetSlot(_ context.Context, _ rpc.CommitmentType) (uint64, error) {
	return b.Slot(), nil
}

// GetBlockTime reports the current ledger clock for every slot.
func (b *Bank) GetBlockTime(_ context.Context, _ uint64) (*solana.UnixTimeSeconds, error) {
	now := solana.UnixTimeSeconds(b.UnixTime())
	return &now, nil
}

// SendTransactionWithOpts processes tx immediately. A failing transaction
// is still recorded so that its status can be queried, matching a
// cluster that skipped preflight.
func (b *Bank) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if !opts.SkipPreflight {
		if _, err := b.Simulate(tx); err != nil {
			return solana.Signature{}, err
		}
	}
	res, err := b.ProcessTransaction(tx)
	if res == nil {
		return solana.Signature{}, err
	}
	return res.Signature, nil
}

func (b *Bank) SimulateTransaction(_ context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	res, err := b.Simulate(tx)
	out := &rpc.SimulateTransactionResponse{
		RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: b.Slot()}},
		Value:      &rpc.SimulateTransactionResult{},
	}
	if res != nil {
		out.Value.Logs = res.Logs
	}
	if err != nil {
		out.Value.Err = err.Error()
	}
	return out, nil
}

func (b *Bank) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{
		RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: b.slot}},
		Value:      make([]*rpc.SignatureStatusesResult, len(sigs)),
	}
	for i, sig := range sigs {
		status, ok := b.processed[sig]
		if !ok {
			continue
		}
		result := &rpc.SignatureStatusesResult{Slot: status.slot, ConfirmationStatus: rpc.ConfirmationStatusFinalized}
		if status.err != nil {
			result.Err = status.err.Error()
		}
		out.Value[i] = result
	}
	return out, nil
}
