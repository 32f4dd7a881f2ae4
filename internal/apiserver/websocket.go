package apiserver

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/coldbell/wager/backend/internal/indexer"
	"github.com/coldbell/wager/backend/internal/metrics"
	"github.com/coldbell/wager/backend/internal/wager"
)

// Channels a websocket client may subscribe to. game.<pubkey> follows a
// single wager.
const (
	channelOpenGames   = "games.open"
	channelLeaderboard = "leaderboard"
	channelGamePrefix  = "game."
)

const (
	wsReadTimeout  = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// clientMessage is what a client sends: {"type":"subscribe","channel":"leaderboard"}.
type clientMessage struct {
	Action  string `json:"type"`
	Channel string `json:"channel"`
}

type pushMessage struct {
	Kind    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	At      int64  `json:"ts"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebsocket pushes the current payload of every subscribed channel
// once per broadcast interval until either side hangs up.
func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	up := upgrader
	up.CheckOrigin = func(req *http.Request) bool {
		return s.origins.allows(strings.TrimSpace(req.Header.Get("Origin")))
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}

	metrics.WebsocketClients.Inc()
	defer metrics.WebsocketClients.Dec()

	subs := newSubscriptionSet()
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return readSubscriptions(conn, subs) })
	g.Go(func() error { return s.push(ctx, conn, subs) })
	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})

	err = g.Wait()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("websocket closed", "err", err)
	}
}

// readSubscriptions applies subscribe and unsubscribe requests. Unknown
// channels are ignored.
func readSubscriptions(conn *websocket.Conn, subs *subscriptionSet) error {
	conn.SetReadLimit(wsMaxMessage)
	extend := func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) }
	if err := extend(""); err != nil {
		return err
	}
	conn.SetPongHandler(extend)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		channel := strings.TrimSpace(msg.Channel)
		if !validChannel(channel) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Action)) {
		case "subscribe":
			subs.Add(channel)
		case "unsubscribe":
			subs.Remove(channel)
		}
	}
}

func (s *Service) push(ctx context.Context, conn *websocket.Conn, subs *subscriptionSet) error {
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for _, channel := range subs.List() {
			msg := pushMessage{Kind: "event", Channel: channel, At: time.Now().Unix()}
			data, err := s.channelPayload(ctx, channel)
			switch {
			case err != nil:
				s.logger.Warn("websocket channel fetch", "channel", channel, "err", err)
				msg.Kind, msg.Error = "error", "failed to fetch channel data"
			case data == nil:
				continue
			default:
				msg.Data = data
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return err
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}

func validChannel(channel string) bool {
	switch channel {
	case channelOpenGames, channelLeaderboard:
		return true
	}
	key, ok := strings.CutPrefix(channel, channelGamePrefix)
	if !ok {
		return false
	}
	_, err := solana.PublicKeyFromBase58(key)
	return err == nil
}

// channelPayload returns nil when there is nothing to push yet.
func (s *Service) channelPayload(ctx context.Context, channel string) (any, error) {
	switch channel {
	case channelOpenGames:
		games, _, _, err := s.store.ListGames(ctx, indexer.GameFilter{Status: wager.StatusOpen.String()})
		return games, err
	case channelLeaderboard:
		users, _, _, err := s.store.Leaderboard(ctx, 0, 0)
		return users, err
	}
	game, err := s.store.GetGame(ctx, strings.TrimPrefix(channel, channelGamePrefix))
	if errors.Is(err, indexer.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}

type subscriptionSet struct {
	mu       sync.Mutex
	channels map[string]bool
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{channels: map[string]bool{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	s.channels[channel] = true
	s.mu.Unlock()
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	delete(s.channels, channel)
	s.mu.Unlock()
}

// List returns the channels in sorted order.
func (s *subscriptionSet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.channels))
}
