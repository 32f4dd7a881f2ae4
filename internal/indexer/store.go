package indexer

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Store persists the indexed program state in Postgres. Writers go through
// WithTx so one sync lands atomically.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(dbDSN string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dbDSN)
	if err != nil {
		return nil, fmt.Errorf("parse db dsn: %w", err)
	}
	poolCfg.MaxConns = 16
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	// Without arguments pgx sends the script over the simple protocol, which
	// accepts several statements at once.
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

// upsert inserts one row and overwrites every non-key column when the key
// already exists.
func upsert(ctx context.Context, tx pgx.Tx, table, key string, columns []string, values ...any) error {
	if len(columns) != len(values) {
		return fmt.Errorf("upsert %s: %d columns, %d values", table, len(columns), len(values))
	}
	params := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, col := range columns {
		params[i] = "$" + strconv.Itoa(i+1)
		if col != key {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), strings.Join(params, ", "), key, strings.Join(updates, ", "),
	)
	_, err := tx.Exec(ctx, stmt, values...)
	return err
}

var (
	registryColumns  = []string{"pubkey", "referrer_fee", "admin_fee", "global_fee", "transaction_fee", "accept_bets", "close_delay", "manager", "slot", "updated_at"}
	tokenColumns     = []string{"pubkey", "mint", "feed", "is_stablecoin", "slot", "updated_at"}
	userColumns      = []string{"pubkey", "address", "referrer", "in_game", "support_bots", "is_bot", "turnover", "slot", "updated_at"}
	gameColumns      = []string{"pubkey", "gamer1", "gamer2", "token1", "token2", "amount1", "amount2", "latest_bet", "type_price", "status", "slot", "updated_at"}
	typePriceColumns = []string{"pubkey", "price", "slot", "updated_at"}
)

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx pgx.Tx, slot uint64) error {
	return upsert(ctx, tx, "sync_state", "id", []string{"id", "last_slot", "updated_at"}, 1, int64(slot), time.Now().Unix())
}

func (s *Store) UpsertRegistryTx(ctx context.Context, tx pgx.Tx, r RegistryRecord) error {
	return upsert(ctx, tx, "registry", "pubkey", registryColumns,
		r.Pubkey, r.ReferrerFee, r.AdminFee, r.GlobalFee, r.TransactionFee,
		r.AcceptBets, r.CloseDelay, r.Manager, int64(r.Slot), r.UpdatedAt)
}

func (s *Store) UpsertTokenTx(ctx context.Context, tx pgx.Tx, t TokenRecord) error {
	return upsert(ctx, tx, "tokens", "pubkey", tokenColumns,
		t.Pubkey, t.Mint, t.Feed, t.IsStablecoin, int64(t.Slot), t.UpdatedAt)
}

func (s *Store) UpsertUserTx(ctx context.Context, tx pgx.Tx, u UserRecord) error {
	return upsert(ctx, tx, "users", "pubkey", userColumns,
		u.Pubkey, u.Address, u.Referrer, u.InGame, u.SupportBots, u.IsBot,
		u.Turnover, int64(u.Slot), u.UpdatedAt)
}

func (s *Store) UpsertTypePriceTx(ctx context.Context, tx pgx.Tx, p TypePriceRecord) error {
	return upsert(ctx, tx, "type_prices", "pubkey", typePriceColumns,
		p.Pubkey, p.Price, int64(p.Slot), p.UpdatedAt)
}

// UpsertGameTx stores the wager and appends a game_history row whenever its
// status differs from the stored one.
func (s *Store) UpsertGameTx(ctx context.Context, tx pgx.Tx, g GameRecord) error {
	var prev *string
	var stored string
	err := tx.QueryRow(ctx, `SELECT status FROM games WHERE pubkey = $1 FOR UPDATE`, g.Pubkey).Scan(&stored)
	switch {
	case err == nil:
		prev = &stored
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("read game status: %w", err)
	}

	err = upsert(ctx, tx, "games", "pubkey", gameColumns,
		g.Pubkey, g.Gamer1, g.Gamer2, g.Token1, g.Token2, g.Amount1, g.Amount2,
		g.LatestBet, g.TypePrice, g.Status, int64(g.Slot), g.UpdatedAt)
	if err != nil {
		return err
	}

	h, changed := gameEvent(prev, g)
	if !changed {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO game_history (game_pubkey, event_type, prev_status, next_status, gamer1, gamer2, amount1, amount2, slot, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		h.GamePubkey, h.EventType, h.PrevStatus, h.NextStatus, h.Gamer1, h.Gamer2,
		h.Amount1, h.Amount2, int64(h.Slot), h.RecordedAt)
	return err
}
