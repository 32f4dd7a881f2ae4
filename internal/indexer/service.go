package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/metrics"
	"github.com/coldbell/wager/backend/internal/wager"
)

// ChainReader is the part of an RPC node the indexer polls.
type ChainReader interface {
	client.AccountGetter
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

type Service struct {
	cfg    config.IndexerConfig
	rpc    ChainReader
	store  *Store
	logger *slog.Logger
}

// snapshot is every program record read during one sync.
type snapshot struct {
	slot       uint64
	registry   []client.Keyed[wager.Registry]
	tokens     []client.Keyed[wager.Whitelist]
	users      []client.Keyed[wager.User]
	games      []client.Keyed[wager.Game]
	typePrices []client.Keyed[wager.TypePrice]
}

func New(cfg config.IndexerConfig, logger *slog.Logger) (*Service, error) {
	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &Service{
		cfg:    cfg,
		rpc:    rpc.New(cfg.RPCURL),
		store:  store,
		logger: logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Commitment,
		"program", s.cfg.ProgramID,
	)

	if err := s.syncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

func (s *Service) syncOnce(ctx context.Context) error {
	started := time.Now()
	snap, err := s.collect(ctx)
	if err != nil {
		metrics.IndexerSyncErrors.WithLabelValues("rpc").Inc()
		return err
	}

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		return s.apply(ctx, tx, snap, time.Now().Unix())
	})
	if err != nil {
		metrics.IndexerSyncErrors.WithLabelValues("store").Inc()
		return err
	}
	metrics.IndexerSyncDuration.Observe(time.Since(started).Seconds())
	metrics.IndexerSyncedSlot.Set(float64(snap.slot))

	s.logger.Info(
		"sync complete",
		"slot", snap.slot,
		"games", len(snap.games),
		"users", len(snap.users),
		"tokens", len(snap.tokens),
		"type_prices", len(snap.typePrices),
	)
	return nil
}

// collect reads the slot first so the stored slot never runs ahead of the
// records.
func (s *Service) collect(ctx context.Context) (*snapshot, error) {
	snap := new(snapshot)
	err := s.withRPCRetry(ctx, "getSlot", func() error {
		slot, err := s.rpc.GetSlot(ctx, s.cfg.Commitment)
		snap.slot = slot
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}

	programID := s.cfg.ProgramID
	commitment := s.cfg.Commitment
	steps := []struct {
		kind string
		run  func() (int, error)
	}{
		{"registry", func() (n int, err error) {
			snap.registry, err = client.ListRecords(ctx, s.rpc, programID, commitment, wager.RegistrySize, wager.DecodeRegistry)
			return len(snap.registry), err
		}},
		{"tokens", func() (n int, err error) {
			snap.tokens, err = client.ListWhitelist(ctx, s.rpc, programID, commitment)
			return len(snap.tokens), err
		}},
		{"users", func() (n int, err error) {
			snap.users, err = client.ListUsers(ctx, s.rpc, programID, commitment)
			return len(snap.users), err
		}},
		{"games", func() (n int, err error) {
			snap.games, err = client.ListGames(ctx, s.rpc, programID, commitment)
			return len(snap.games), err
		}},
		{"type_prices", func() (n int, err error) {
			snap.typePrices, err = client.ListTypePrices(ctx, s.rpc, programID, commitment)
			return len(snap.typePrices), err
		}},
	}
	for _, step := range steps {
		var count int
		err := s.withRPCRetry(ctx, "getProgramAccounts "+step.kind, func() error {
			var err error
			count, err = step.run()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", step.kind, err)
		}
		metrics.IndexerRecords.WithLabelValues(step.kind).Set(float64(count))
	}
	return snap, nil
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, snap *snapshot, now int64) error {
	for _, item := range snap.registry {
		if err := s.store.UpsertRegistryTx(ctx, tx, registryRecord(item.Address, item.Record, snap.slot, now)); err != nil {
			return fmt.Errorf("upsert registry %s: %w", item.Address, err)
		}
	}
	for _, item := range snap.tokens {
		if err := s.store.UpsertTokenTx(ctx, tx, tokenRecord(item.Address, item.Record, snap.slot, now)); err != nil {
			return fmt.Errorf("upsert token %s: %w", item.Address, err)
		}
	}
	for _, item := range snap.users {
		if err := s.store.UpsertUserTx(ctx, tx, userRecord(item.Address, item.Record, snap.slot, now)); err != nil {
			return fmt.Errorf("upsert user %s: %w", item.Address, err)
		}
	}
	for _, item := range snap.games {
		if err := s.store.UpsertGameTx(ctx, tx, gameRecord(item.Address, item.Record, snap.slot, now)); err != nil {
			return fmt.Errorf("upsert game %s: %w", item.Address, err)
		}
	}
	for _, item := range snap.typePrices {
		if err := s.store.UpsertTypePriceTx(ctx, tx, typePriceRecord(item.Address, item.Record, snap.slot, now)); err != nil {
			return fmt.Errorf("upsert type price %s: %w", item.Address, err)
		}
	}
	return s.store.UpsertSyncStateTx(ctx, tx, snap.slot)
}

// withRPCRetry retries fn with exponential backoff between
// RPCRetryBaseDelay and RPCRetryMaxDelay.
func (s *Service) withRPCRetry(ctx context.Context, op string, fn func() error) error {
	delay := s.cfg.RPCRetryBaseDelay
	var err error
	for attempt := 0; attempt <= s.cfg.RPCMaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.cfg.RPCMaxRetries {
			break
		}
		s.logger.Warn("rpc call failed", "op", op, "attempt", attempt+1, "retry_in", delay.String(), "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay, s.cfg.RPCRetryBaseDelay, s.cfg.RPCRetryMaxDelay)
	}
	return err
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	if current < floor {
		return floor
	}
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
