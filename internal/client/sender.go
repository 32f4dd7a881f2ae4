package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/wager/backend/internal/config"
)

const defaultConfirmPoll = 700 * time.Millisecond

var ErrSimulationFailed = errors.New("simulation failed")

// Sender signs instructions with one key, submits them and waits until the
// cluster confirms the transaction.
type Sender struct {
	rpc         RPC
	signer      solana.PrivateKey
	cfg         config.TxConfig
	logger      *slog.Logger
	confirmPoll time.Duration
}

func NewSender(client RPC, signer solana.PrivateKey, cfg config.TxConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		rpc:         client,
		signer:      signer,
		cfg:         cfg,
		logger:      logger,
		confirmPoll: defaultConfirmPoll,
	}
}

func (s *Sender) PublicKey() solana.PublicKey {
	return s.signer.PublicKey()
}

// budgetInstructions returns the compute-budget prefix configured for every
// transaction.
func (s *Sender) budgetInstructions() ([]solana.Instruction, error) {
	var out []solana.Instruction
	if s.cfg.ComputeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit: %w", err)
		}
		out = append(out, ix)
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price: %w", err)
		}
		out = append(out, ix)
	}
	return out, nil
}

func (s *Sender) build(ctx context.Context, instructions []solana.Instruction) (*solana.Transaction, error) {
	budget, err := s.budgetInstructions()
	if err != nil {
		return nil, err
	}
	recent, err := s.rpc.GetLatestBlockhash(ctx, s.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		append(budget, instructions...),
		recent.Value.Blockhash,
		solana.TransactionPayer(s.signer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.signer.PublicKey().Equals(key) {
			return &s.signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// Send submits the instructions in one transaction and blocks until it is
// confirmed, it fails, or cfg.Timeout elapses.
func (s *Sender) Send(ctx context.Context, instructions ...solana.Instruction) (solana.Signature, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	tx, err := s.build(ctx, instructions)
	if err != nil {
		return solana.Signature{}, err
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.cfg.Commitment,
	}
	if s.cfg.MaxRetries != nil {
		retries := *s.cfg.MaxRetries
		opts.MaxRetries = &retries
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	s.logger.Debug("transaction sent", "signature", sig)

	if err := s.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// Simulate runs the instructions without committing them and returns the
// program logs.
func (s *Sender) Simulate(ctx context.Context, instructions ...solana.Instruction) ([]string, error) {
	tx, err := s.build(ctx, instructions)
	if err != nil {
		return nil, err
	}
	res, err := s.rpc.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, fmt.Errorf("%w: empty response", ErrSimulationFailed)
	}
	if res.Value.Err != nil {
		return res.Value.Logs, fmt.Errorf("%w: %v\n%s", ErrSimulationFailed, res.Value.Err, strings.Join(res.Value.Logs, "\n"))
	}
	return res.Value.Logs, nil
}

func (s *Sender) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(s.confirmPoll)
	defer ticker.Stop()

	for {
		result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ClusterUnixTime reads the block time of the current slot, falling back to
// the local clock when the node cannot answer.
func ClusterUnixTime(ctx context.Context, c RPC, commitment rpc.CommitmentType, logger *slog.Logger) int64 {
	slot, err := c.GetSlot(ctx, commitment)
	if err != nil {
		logger.Warn("using local clock because getSlot failed", "err", err)
		return time.Now().Unix()
	}

	blockTime, err := c.GetBlockTime(ctx, slot)
	if err != nil || blockTime == nil {
		logger.Warn("using local clock because getBlockTime unavailable", "slot", slot, "err", err)
		return time.Now().Unix()
	}
	return int64(*blockTime)
}
