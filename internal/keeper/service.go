package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/metrics"
	"github.com/coldbell/wager/backend/internal/wager"
)

var errNotManager = errors.New("keeper key is not the registry manager")

// Service force-closes wagers nobody joined within the configured age. It
// must run with the manager key.
type Service struct {
	cfg     config.KeeperConfig
	rpc     client.RPC
	builder *client.Builder
	sender  *client.Sender
	logger  *slog.Logger
	now     func(ctx context.Context) int64
}

type staleGame struct {
	address solana.PublicKey
	game    *wager.Game
	age     time.Duration
}

func New(cfg config.KeeperConfig, logger *slog.Logger) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}
	return NewWithRPC(cfg, rpc.New(cfg.RPCURL), signer, logger), nil
}

// NewWithRPC builds a keeper on top of an existing node connection.
func NewWithRPC(cfg config.KeeperConfig, node client.RPC, signer solana.PrivateKey, logger *slog.Logger) *Service {
	s := &Service{
		cfg:     cfg,
		rpc:     node,
		builder: client.NewBuilder(cfg.ProgramID, cfg.Admin),
		sender:  client.NewSender(node, signer, cfg.Tx, logger),
		logger:  logger,
	}
	s.now = func(ctx context.Context) int64 {
		return client.ClusterUnixTime(ctx, s.rpc, s.cfg.Tx.Commitment, s.logger)
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("keeper started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Tx.Commitment,
		"manager", s.sender.PublicKey(),
		"program", s.cfg.ProgramID,
		"max_open_age", s.cfg.MaxOpenAge.String(),
	)

	if err := s.checkManager(ctx); err != nil {
		return err
	}

	s.runTick(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("keeper stopped")
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Service) runTick(ctx context.Context) {
	if _, err := s.tick(ctx); err != nil {
		metrics.KeeperTicks.WithLabelValues("error").Inc()
		s.logger.Error("keeper tick failed", "err", err)
		return
	}
	metrics.KeeperTicks.WithLabelValues("ok").Inc()
}

// checkManager refuses to start when the registry names a different
// manager, since every forced close would fail.
func (s *Service) checkManager(ctx context.Context) error {
	registry, err := client.FetchRegistry(ctx, s.rpc, s.cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	if !registry.Manager.Equals(s.sender.PublicKey()) {
		return fmt.Errorf("%w: manager is %s", errNotManager, registry.Manager)
	}
	return nil
}

// tick closes up to MaxClosesPerTick stale wagers, oldest first, and
// returns how many closes succeeded.
func (s *Service) tick(ctx context.Context) (int, error) {
	games, err := client.ListGames(ctx, s.rpc, s.cfg.ProgramID, s.cfg.Tx.Commitment)
	if err != nil {
		return 0, err
	}

	now := s.now(ctx)
	stale, open := selectStale(games, now, s.cfg.MaxOpenAge)
	metrics.KeeperOpenGames.Set(float64(open))
	if len(stale) == 0 {
		return 0, nil
	}

	limit := min(s.cfg.MaxClosesPerTick, len(stale))
	closed, failed := 0, 0
	for _, candidate := range stale[:limit] {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		sig, err := s.forcedClose(ctx, candidate)
		if err != nil {
			failed++
			metrics.KeeperForcedCloses.WithLabelValues("failed").Inc()
			s.logger.Warn("forced close failed", "game", candidate.address, "gamer", candidate.game.Gamer1, "err", err)
			continue
		}
		closed++
		metrics.KeeperForcedCloses.WithLabelValues("closed").Inc()
		s.logger.Info("forced close sent",
			"game", candidate.address,
			"gamer", candidate.game.Gamer1,
			"age", candidate.age.String(),
			"signature", sig,
		)
	}

	s.logger.Info(
		"keeper tick complete",
		"open_games",
		open,
		"stale",
		len(stale),
		"attempted",
		limit,
		"closed",
		closed,
		"failed",
		failed,
	)
	return closed, nil
}

func (s *Service) forcedClose(ctx context.Context, candidate staleGame) (solana.Signature, error) {
	ix, err := s.builder.ForcedClose(s.sender.PublicKey(), candidate.game.Gamer1, candidate.game.Token1)
	if err != nil {
		return solana.Signature{}, err
	}
	return s.sender.Send(ctx, ix)
}

// selectStale returns the Open wagers at least maxAge old, oldest first,
// along with the number of Open wagers seen.
func selectStale(games []client.Keyed[wager.Game], now int64, maxAge time.Duration) ([]staleGame, int) {
	var (
		out  []staleGame
		open int
	)
	for _, keyed := range games {
		if keyed.Record.Status() != wager.StatusOpen {
			continue
		}
		open++
		age := time.Duration(now-int64(keyed.Record.LatestBet)) * time.Second
		if age < maxAge {
			continue
		}
		out = append(out, staleGame{address: keyed.Address, game: keyed.Record, age: age})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].game.LatestBet != out[j].game.LatestBet {
			return out[i].game.LatestBet < out[j].game.LatestBet
		}
		return out[i].address.String() < out[j].address.String()
	})
	return out, open
}
