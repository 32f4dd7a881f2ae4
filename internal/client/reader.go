package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/wager/backend/internal/wager"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountGetter is the read side of an RPC node.
type AccountGetter interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, publicKey solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// RPC is the subset of *rpc.Client the client, keeper and indexer use.
type RPC interface {
	AccountGetter
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBlockTime(ctx context.Context, block uint64) (*solana.UnixTimeSeconds, error)
}

var _ RPC = (*rpc.Client)(nil)

// FetchAccount returns the raw account, mapping a missing account to
// ErrAccountNotFound.
func FetchAccount(ctx context.Context, c AccountGetter, key solana.PublicKey) (*rpc.Account, error) {
	res, err := c.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	return res.Value, nil
}

func fetchRecord[T any](ctx context.Context, c AccountGetter, programID, key solana.PublicKey, decode func([]byte) (*T, error)) (*T, error) {
	acc, err := FetchAccount(ctx, c, key)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrAccountNotFound, key, acc.Owner)
	}
	out, err := decode(acc.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func FetchRegistry(ctx context.Context, c AccountGetter, programID solana.PublicKey) (*wager.Registry, error) {
	key, _, err := wager.DeriveRegistryPDA(programID)
	if err != nil {
		return nil, err
	}
	return fetchRecord(ctx, c, programID, key, wager.DecodeRegistry)
}

func FetchWhitelist(ctx context.Context, c AccountGetter, programID, mint solana.PublicKey) (*wager.Whitelist, error) {
	key, _, err := wager.DeriveWhitelistPDA(programID, mint)
	if err != nil {
		return nil, err
	}
	return fetchRecord(ctx, c, programID, key, wager.DecodeWhitelist)
}

func FetchUser(ctx context.Context, c AccountGetter, programID, owner solana.PublicKey) (*wager.User, error) {
	key, _, err := wager.DeriveUserPDA(programID, owner)
	if err != nil {
		return nil, err
	}
	return fetchRecord(ctx, c, programID, key, wager.DecodeUser)
}

// FetchGame reads the wager opened by initiator.
func FetchGame(ctx context.Context, c AccountGetter, programID, initiator solana.PublicKey) (*wager.Game, error) {
	key, _, err := wager.DeriveGamePDA(programID, initiator)
	if err != nil {
		return nil, err
	}
	return fetchRecord(ctx, c, programID, key, wager.DecodeGame)
}

func FetchTypePrice(ctx context.Context, c AccountGetter, programID solana.PublicKey, tier uint64) (*wager.TypePrice, error) {
	key, _, err := wager.DeriveTypePricePDA(programID, tier)
	if err != nil {
		return nil, err
	}
	return fetchRecord(ctx, c, programID, key, wager.DecodeTypePrice)
}

// Keyed pairs a decoded record with the account it was read from.
type Keyed[T any] struct {
	Address solana.PublicKey
	Record  *T
}

// ListRecords returns every program account of the given record size that
// decodes cleanly. Records are told apart by size alone.
func ListRecords[T any](ctx context.Context, c AccountGetter, programID solana.PublicKey, commitment rpc.CommitmentType, size int, decode func([]byte) (*T, error)) ([]Keyed[T], error) {
	accounts, err := c.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Commitment: commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    []rpc.RPCFilter{{DataSize: uint64(size)}},
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts (size %d): %w", size, err)
	}
	out := make([]Keyed[T], 0, len(accounts))
	for _, keyed := range accounts {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		rec, err := decode(keyed.Account.Data.GetBinary())
		if err != nil {
			continue
		}
		out = append(out, Keyed[T]{Address: keyed.Pubkey, Record: rec})
	}
	return out, nil
}

func ListGames(ctx context.Context, c AccountGetter, programID solana.PublicKey, commitment rpc.CommitmentType) ([]Keyed[wager.Game], error) {
	return ListRecords(ctx, c, programID, commitment, wager.GameSize, wager.DecodeGame)
}

func ListUsers(ctx context.Context, c AccountGetter, programID solana.PublicKey, commitment rpc.CommitmentType) ([]Keyed[wager.User], error) {
	return ListRecords(ctx, c, programID, commitment, wager.UserSize, wager.DecodeUser)
}

func ListWhitelist(ctx context.Context, c AccountGetter, programID solana.PublicKey, commitment rpc.CommitmentType) ([]Keyed[wager.Whitelist], error) {
	return ListRecords(ctx, c, programID, commitment, wager.WhitelistSize, wager.DecodeWhitelist)
}

func ListTypePrices(ctx context.Context, c AccountGetter, programID solana.PublicKey, commitment rpc.CommitmentType) ([]Keyed[wager.TypePrice], error) {
	return ListRecords(ctx, c, programID, commitment, wager.TypePriceSize, wager.DecodeTypePrice)
}
