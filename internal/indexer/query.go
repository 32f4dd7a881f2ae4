package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var ErrNotFound = errors.New("not found")

type GameFilter struct {
	Status string
	Player string
	Limit  int
	Offset int
}

type SyncState struct {
	LastSlot  uint64 `json:"last_slot"`
	UpdatedAt int64  `json:"updated_at"`
}

// selectList renders columns for a SELECT, reading NUMERIC columns back as
// text so uint64 amounts survive unchanged.
func selectList(columns []string, numeric ...string) string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col
		for _, n := range numeric {
			if col == n {
				out[i] = col + "::text"
			}
		}
	}
	return strings.Join(out, ", ")
}

var (
	registrySelect = selectList(registryColumns, "referrer_fee", "admin_fee", "global_fee", "transaction_fee", "close_delay")
	tokenSelect    = selectList(tokenColumns)
	userSelect     = selectList(userColumns, "turnover")
	gameSelect     = selectList(gameColumns, "amount1", "amount2", "type_price")
	historySelect  = "id, game_pubkey, event_type, prev_status, next_status, gamer1, gamer2, amount1::text, amount2::text, slot, recorded_at"
)

func scanRegistry(row pgx.CollectableRow) (RegistryRecord, error) {
	var r RegistryRecord
	err := row.Scan(&r.Pubkey, &r.ReferrerFee, &r.AdminFee, &r.GlobalFee, &r.TransactionFee,
		&r.AcceptBets, &r.CloseDelay, &r.Manager, &r.Slot, &r.UpdatedAt)
	return r, err
}

func scanToken(row pgx.CollectableRow) (TokenRecord, error) {
	var t TokenRecord
	err := row.Scan(&t.Pubkey, &t.Mint, &t.Feed, &t.IsStablecoin, &t.Slot, &t.UpdatedAt)
	return t, err
}

func scanUser(row pgx.CollectableRow) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.Pubkey, &u.Address, &u.Referrer, &u.InGame, &u.SupportBots, &u.IsBot,
		&u.Turnover, &u.Slot, &u.UpdatedAt)
	return u, err
}

func scanGame(row pgx.CollectableRow) (GameRecord, error) {
	var g GameRecord
	err := row.Scan(&g.Pubkey, &g.Gamer1, &g.Gamer2, &g.Token1, &g.Token2, &g.Amount1, &g.Amount2,
		&g.LatestBet, &g.TypePrice, &g.Status, &g.Slot, &g.UpdatedAt)
	return g, err
}

func scanHistory(row pgx.CollectableRow) (GameHistoryRecord, error) {
	var h GameHistoryRecord
	err := row.Scan(&h.ID, &h.GamePubkey, &h.EventType, &h.PrevStatus, &h.NextStatus,
		&h.Gamer1, &h.Gamer2, &h.Amount1, &h.Amount2, &h.Slot, &h.RecordedAt)
	return h, err
}

// queryAll runs a query and collects every row with scan.
func queryAll[T any](ctx context.Context, s *Store, scan pgx.RowToFunc[T], sql string, args ...any) ([]T, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scan)
}

// queryOne collects exactly one row. A missing row is reported as ErrNotFound
// wrapped with what.
func queryOne[T any](ctx context.Context, s *Store, what string, scan pgx.RowToFunc[T], sql string, args ...any) (T, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	item, err := pgx.CollectOneRow(rows, scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return item, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return item, err
}

func (s *Store) GetSyncState(ctx context.Context) (SyncState, error) {
	return queryOne(ctx, s, "sync state", func(row pgx.CollectableRow) (SyncState, error) {
		var st SyncState
		err := row.Scan(&st.LastSlot, &st.UpdatedAt)
		return st, err
	}, `SELECT last_slot, updated_at FROM sync_state WHERE id = 1`)
}

// GetRegistry returns the most recently synced registry.
func (s *Store) GetRegistry(ctx context.Context) (RegistryRecord, error) {
	return queryOne(ctx, s, "registry", scanRegistry,
		`SELECT `+registrySelect+` FROM registry ORDER BY slot DESC LIMIT 1`)
}

func (s *Store) ListTokens(ctx context.Context) ([]TokenRecord, error) {
	return queryAll(ctx, s, scanToken, `SELECT `+tokenSelect+` FROM tokens ORDER BY mint`)
}

// where accumulates AND-ed predicates. Each format takes the argument's
// placeholder number as its single verb.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// ListGames pages wagers newest first. Player matches either side.
func (s *Store) ListGames(ctx context.Context, filter GameFilter) ([]GameRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)

	var w where
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.Player != "" {
		w.add("(gamer1 = $%[1]d OR gamer2 = $%[1]d)", filter.Player)
	}
	n := len(w.args)
	sql := fmt.Sprintf(`SELECT %s FROM games%s ORDER BY latest_bet DESC, pubkey LIMIT $%d OFFSET $%d`,
		gameSelect, w.String(), n+1, n+2)

	items, err := queryAll(ctx, s, scanGame, sql, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func (s *Store) GetGame(ctx context.Context, pubkey string) (GameRecord, error) {
	return queryOne(ctx, s, "game "+pubkey, scanGame,
		`SELECT `+gameSelect+` FROM games WHERE pubkey = $1`, pubkey)
}

func (s *Store) ListGameHistory(ctx context.Context, pubkey string, limit int) ([]GameHistoryRecord, error) {
	limit, _ = normalizePagination(limit, 0)
	return queryAll(ctx, s, scanHistory,
		`SELECT `+historySelect+` FROM game_history WHERE game_pubkey = $1 ORDER BY id DESC LIMIT $2`, pubkey, limit)
}

// GetUser looks a profile up by its wallet address.
func (s *Store) GetUser(ctx context.Context, address string) (UserRecord, error) {
	return queryOne(ctx, s, "user "+address, scanUser,
		`SELECT `+userSelect+` FROM users WHERE address = $1`, address)
}

// Leaderboard ranks profiles by turnover. Profiles that never played are left
// out.
func (s *Store) Leaderboard(ctx context.Context, limit, offset int) ([]UserRecord, int, int, error) {
	limit, offset = normalizePagination(limit, offset)
	items, err := queryAll(ctx, s, scanUser,
		`SELECT `+userSelect+` FROM users WHERE turnover > 0 ORDER BY turnover DESC, address LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func normalizePagination(limit, offset int) (int, int) {
	limit = min(max(limit, 0), maxPageLimit)
	if limit == 0 {
		limit = defaultPageLimit
	}
	return limit, max(offset, 0)
}
