package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/indexer"
)

type fakeReader struct {
	games   []indexer.GameRecord
	users   []indexer.UserRecord
	history map[string][]indexer.GameHistoryRecord
	filter  indexer.GameFilter
	failing bool
}

func (f *fakeReader) GetSyncState(context.Context) (indexer.SyncState, error) {
	return indexer.SyncState{LastSlot: 77}, nil
}

func (f *fakeReader) GetRegistry(context.Context) (indexer.RegistryRecord, error) {
	return indexer.RegistryRecord{GlobalFee: "10", AcceptBets: true}, nil
}

func (f *fakeReader) ListTokens(context.Context) ([]indexer.TokenRecord, error) {
	return []indexer.TokenRecord{{Mint: "mint", IsStablecoin: true}}, nil
}

func (f *fakeReader) ListGames(_ context.Context, filter indexer.GameFilter) ([]indexer.GameRecord, int, int, error) {
	if f.failing {
		return nil, 0, 0, errors.New("db down")
	}
	f.filter = filter
	out := make([]indexer.GameRecord, 0)
	for _, g := range f.games {
		if filter.Status == "" || g.Status == filter.Status {
			out = append(out, g)
		}
	}
	return out, 50, filter.Offset, nil
}

func (f *fakeReader) GetGame(_ context.Context, pubkey string) (indexer.GameRecord, error) {
	for _, g := range f.games {
		if g.Pubkey == pubkey {
			return g, nil
		}
	}
	return indexer.GameRecord{}, indexer.ErrNotFound
}

func (f *fakeReader) ListGameHistory(_ context.Context, pubkey string, _ int) ([]indexer.GameHistoryRecord, error) {
	return f.history[pubkey], nil
}

func (f *fakeReader) GetUser(_ context.Context, address string) (indexer.UserRecord, error) {
	for _, u := range f.users {
		if u.Address == address {
			return u, nil
		}
	}
	return indexer.UserRecord{}, indexer.ErrNotFound
}

func (f *fakeReader) Leaderboard(context.Context, int, int) ([]indexer.UserRecord, int, int, error) {
	return f.users, 50, 0, nil
}

type fixture struct {
	reader  *fakeReader
	handler http.Handler
	open    string
	matched string
	user    string
}

func newFixture(t *testing.T, origins ...string) *fixture {
	t.Helper()
	open := solana.NewWallet().PublicKey().String()
	matched := solana.NewWallet().PublicKey().String()
	user := solana.NewWallet().PublicKey().String()
	reader := &fakeReader{
		games: []indexer.GameRecord{
			{Pubkey: open, Gamer1: user, Status: "open", Amount1: "100"},
			{Pubkey: matched, Gamer1: user, Status: "matched", Amount1: "100", Amount2: "50"},
		},
		users: []indexer.UserRecord{{Address: user, Turnover: "300"}},
		history: map[string][]indexer.GameHistoryRecord{
			matched: {
				{GamePubkey: matched, EventType: "matched", PrevStatus: "open", NextStatus: "matched"},
				{GamePubkey: matched, EventType: "opened", NextStatus: "open"},
			},
		},
	}
	cfg := config.APIServerConfig{
		AllowedOrigins:    origins,
		BroadcastInterval: 10 * time.Millisecond,
	}
	svc := NewWithReader(cfg, reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{reader: reader, handler: svc.Handler(), open: open, matched: matched, user: user}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var out healthResponse
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", &out))
	assert.True(t, out.OK)
	assert.Equal(t, uint64(77), out.LastSlot)
}

func TestListGamesFiltersByStatus(t *testing.T) {
	f := newFixture(t)

	var out listResponse[indexer.GameRecord]
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/games?status=OPEN&player="+f.user+"&offset=5", &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, f.open, out.Items[0].Pubkey)
	assert.Equal(t, 5, out.Offset)
	assert.Equal(t, "open", f.reader.filter.Status)
	assert.Equal(t, f.user, f.reader.filter.Player)

	var bad errorResponse
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/games?status=pending", &bad))
	assert.Contains(t, bad.Error, "status")
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/games?player=nope", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/games?limit=ten", nil))
}

func TestListGamesStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.reader.failing = true
	var out errorResponse
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/v1/games", &out))
	assert.Equal(t, "failed to list games", out.Error)
}

func TestGetGameWithHistory(t *testing.T) {
	f := newFixture(t)

	var out gameResponse
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/games/"+f.matched, &out))
	assert.Equal(t, "matched", out.Game.Status)
	require.Len(t, out.History, 2)
	assert.Equal(t, "matched", out.History[0].EventType)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/games/"+solana.NewWallet().PublicKey().String(), nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/games/not-a-key", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/games/", nil))
}

func TestUserAndLeaderboard(t *testing.T) {
	f := newFixture(t)

	var user indexer.UserRecord
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/users/"+f.user, &user))
	assert.Equal(t, "300", user.Turnover)

	var board listResponse[indexer.UserRecord]
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/leaderboard", &board))
	require.Len(t, board.Items, 1)
	assert.Equal(t, f.user, board.Items[0].Address)
}

func TestRegistryAndTokens(t *testing.T) {
	f := newFixture(t)

	var registry indexer.RegistryRecord
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/registry", &registry))
	assert.Equal(t, "10", registry.GlobalFee)

	var tokens listResponse[indexer.TokenRecord]
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/tokens", &tokens))
	require.Len(t, tokens.Items, 1)
	assert.True(t, tokens.Items[0].IsStablecoin)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/games", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSAllowedOrigins(t *testing.T) {
	f := newFixture(t, "https://app.example")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/healthz", nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wager_api_http_requests_total")
}

func TestValidChannel(t *testing.T) {
	assert.True(t, validChannel("games.open"))
	assert.True(t, validChannel("leaderboard"))
	assert.True(t, validChannel("game."+solana.NewWallet().PublicKey().String()))
	assert.False(t, validChannel("game.xyz"))
	assert.False(t, validChannel("market.price.SOL"))
}

func TestWebsocketPushesSubscribedChannels(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.handler)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "game." + f.open}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var envelope struct {
		Type    string             `json:"type"`
		Channel string             `json:"channel"`
		Data    indexer.GameRecord `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&envelope))
	assert.Equal(t, "event", envelope.Type)
	assert.Equal(t, "game."+f.open, envelope.Channel)
	assert.Equal(t, f.open, envelope.Data.Pubkey)
	assert.Equal(t, "open", envelope.Data.Status)
}

func TestSubscriptionSet(t *testing.T) {
	subs := newSubscriptionSet()
	subs.Add("leaderboard")
	subs.Add("games.open")
	subs.Add("leaderboard")
	assert.Equal(t, []string{"games.open", "leaderboard"}, subs.List())
	subs.Remove("games.open")
	assert.Equal(t, []string{"leaderboard"}, subs.List())
}

func TestOriginPolicy(t *testing.T) {
	open := newOriginPolicy(nil)
	assert.True(t, open.allows("https://anything.example"))
	assert.Equal(t, []string{"*"}, open.corsOrigins())

	listed := newOriginPolicy([]string{" https://app.example ", ""})
	assert.True(t, listed.allows("https://app.example"))
	assert.True(t, listed.allows(""))
	assert.False(t, listed.allows("https://evil.example"))
	assert.Equal(t, []string{"https://app.example"}, listed.corsOrigins())

	assert.True(t, newOriginPolicy([]string{"https://app.example", "*"}).allows("https://evil.example"))
}

func TestLeaderboardRejectsBadPaging(t *testing.T) {
	f := newFixture(t)
	var out errorResponse
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/leaderboard?offset=x", &out))
	assert.Contains(t, out.Error, "invalid offset")
}
