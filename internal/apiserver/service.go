package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/indexer"
	"github.com/coldbell/wager/backend/internal/metrics"
	"github.com/coldbell/wager/backend/internal/wager"
)

// Reader is the query side of the indexer store.
type Reader interface {
	GetSyncState(ctx context.Context) (indexer.SyncState, error)
	GetRegistry(ctx context.Context) (indexer.RegistryRecord, error)
	ListTokens(ctx context.Context) ([]indexer.TokenRecord, error)
	ListGames(ctx context.Context, filter indexer.GameFilter) ([]indexer.GameRecord, int, int, error)
	GetGame(ctx context.Context, pubkey string) (indexer.GameRecord, error)
	ListGameHistory(ctx context.Context, pubkey string, limit int) ([]indexer.GameHistoryRecord, error)
	GetUser(ctx context.Context, address string) (indexer.UserRecord, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]indexer.UserRecord, int, int, error)
}

// Service serves the indexed wager state over REST and websocket.
type Service struct {
	cfg        config.APIServerConfig
	logger     *slog.Logger
	store      Reader
	closeStore func() error
	origins    originPolicy
}

func New(cfg config.APIServerConfig, logger *slog.Logger) (*Service, error) {
	store, err := indexer.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	s := NewWithReader(cfg, store, logger)
	s.closeStore = store.Close
	return s, nil
}

// NewWithReader serves records from an already opened store.
func NewWithReader(cfg config.APIServerConfig, store Reader, logger *slog.Logger) *Service {
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 2 * time.Second
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		closeStore: func() error { return nil },
		origins:    newOriginPolicy(cfg.AllowedOrigins),
	}
}

// originPolicy allows every origin when the list is empty or holds "*".
type originPolicy struct {
	any     bool
	allowed []string
}

func newOriginPolicy(list []string) originPolicy {
	var p originPolicy
	for _, origin := range list {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed = append(p.allowed, origin)
		}
	}
	p.any = p.any || len(p.allowed) == 0
	return p
}

func (p originPolicy) allows(origin string) bool {
	return origin == "" || p.any || slices.Contains(p.allowed, origin)
}

func (p originPolicy) corsOrigins() []string {
	if p.any {
		return []string{"*"}
	}
	return p.allowed
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	routes := []struct {
		pattern string
		name    string
		fn      endpoint
	}{
		{"GET /healthz", "healthz", s.health},
		{"GET /api/v1/registry", "registry", s.registry},
		{"GET /api/v1/tokens", "tokens", s.tokens},
		{"GET /api/v1/games", "games", s.games},
		{"GET /api/v1/games/{pubkey}", "game", s.game},
		{"GET /api/v1/users/{address}", "user", s.user},
		{"GET /api/v1/leaderboard", "leaderboard", s.leaderboard},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, s.serve(rt.name, rt.fn))
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	return cors.New(cors.Options{
		AllowedOrigins: s.origins.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}).Handler(mux)
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.closeStore(); err != nil {
			s.logger.Error("close store", "err", err)
		}
	}()

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- server.ListenAndServe() }()
	s.logger.Info("listening", "addr", s.cfg.ListenAddr, "origins", s.origins.corsOrigins())

	select {
	case err := <-served:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// endpoint produces a JSON body or an error. *apiError picks the status code,
// a *storeError is logged and mapped to 404 or 500.
type endpoint func(r *http.Request) (any, error)

type apiError struct {
	code int
	msg  string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &apiError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return e.op + ": " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func failed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// serve runs fn, writes its result and records request metrics under route.
func (s *Service) serve(route string, fn endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		body, err := fn(r)
		if err != nil {
			s.writeError(rec, err)
		} else {
			s.writeJSON(rec, http.StatusOK, body)
		}

		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	})
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	var se *storeError
	switch {
	case errors.As(err, &ae):
		s.writeJSON(w, ae.code, errorResponse{Error: ae.msg})
	case errors.As(err, &se) && errors.Is(se.err, indexer.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: se.err.Error()})
	case errors.As(err, &se):
		s.logger.Error("store query", "op", se.op, "err", se.err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to " + se.op})
	default:
		s.logger.Error("request", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type healthResponse struct {
	OK       bool   `json:"ok"`
	LastSlot uint64 `json:"last_slot,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type gameResponse struct {
	Game    indexer.GameRecord          `json:"game"`
	History []indexer.GameHistoryRecord `json:"history"`
}

// health stays 200 before the first sync; last_slot is omitted then.
func (s *Service) health(r *http.Request) (any, error) {
	out := healthResponse{OK: true}
	if state, err := s.store.GetSyncState(r.Context()); err == nil {
		out.LastSlot = state.LastSlot
	}
	return out, nil
}

func (s *Service) registry(r *http.Request) (any, error) {
	reg, err := s.store.GetRegistry(r.Context())
	return reg, failed("get registry", err)
}

func (s *Service) tokens(r *http.Request) (any, error) {
	tokens, err := s.store.ListTokens(r.Context())
	if err != nil {
		return nil, failed("list tokens", err)
	}
	return listResponse[indexer.TokenRecord]{Items: tokens, Limit: len(tokens)}, nil
}

func (s *Service) games(r *http.Request) (any, error) {
	q := r.URL.Query()
	filter := indexer.GameFilter{
		Status: strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Player: strings.TrimSpace(q.Get("player")),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, badRequest("status must be one of open, matched, closed")
	}
	if filter.Player != "" {
		if _, err := solana.PublicKeyFromBase58(filter.Player); err != nil {
			return nil, badRequest("invalid player: %v", err)
		}
	}
	var err error
	if filter.Limit, filter.Offset, err = page(r); err != nil {
		return nil, err
	}

	items, limit, offset, err := s.store.ListGames(r.Context(), filter)
	if err != nil {
		return nil, failed("list games", err)
	}
	return listResponse[indexer.GameRecord]{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *Service) game(r *http.Request) (any, error) {
	pubkey, err := pathKey(r, "pubkey")
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetGame(r.Context(), pubkey)
	if err != nil {
		return nil, failed("get game", err)
	}
	history, err := s.store.ListGameHistory(r.Context(), pubkey, 0)
	if err != nil {
		return nil, failed("list game history", err)
	}
	return gameResponse{Game: g, History: history}, nil
}

func (s *Service) user(r *http.Request) (any, error) {
	address, err := pathKey(r, "address")
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(r.Context(), address)
	return u, failed("get user", err)
}

func (s *Service) leaderboard(r *http.Request) (any, error) {
	limit, offset, err := page(r)
	if err != nil {
		return nil, err
	}
	items, limit, offset, err := s.store.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		return nil, failed("leaderboard", err)
	}
	return listResponse[indexer.UserRecord]{Items: items, Limit: limit, Offset: offset}, nil
}

// pathKey reads a base58 public key path segment.
func pathKey(r *http.Request, name string) (string, error) {
	raw := r.PathValue(name)
	if _, err := solana.PublicKeyFromBase58(raw); err != nil {
		return "", badRequest("invalid public key: %v", err)
	}
	return raw, nil
}

// page reads the optional limit and offset query parameters. The store
// clamps them.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		if *p.dst, err = strconv.Atoi(raw); err != nil {
			return 0, 0, badRequest("invalid %s: %v", p.key, err)
		}
	}
	return limit, offset, nil
}

func validStatus(status string) bool {
	switch status {
	case wager.StatusOpen.String(), wager.StatusMatched.String(), wager.StatusClosed.String():
		return true
	}
	return false
}
