package indexer

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/wager"
)

type RegistryRecord struct {
	Pubkey         string `json:"pubkey"`
	ReferrerFee    string `json:"referrer_fee"`
	AdminFee       string `json:"admin_fee"`
	GlobalFee      string `json:"global_fee"`
	TransactionFee string `json:"transaction_fee"`
	AcceptBets     bool   `json:"accept_bets"`
	CloseDelay     string `json:"close_delay"`
	Manager        string `json:"manager"`
	Slot           uint64 `json:"slot"`
	UpdatedAt      int64  `json:"updated_at"`
}

type TokenRecord struct {
	Pubkey       string `json:"pubkey"`
	Mint         string `json:"mint"`
	Feed         string `json:"feed"`
	IsStablecoin bool   `json:"is_stablecoin"`
	Slot         uint64 `json:"slot"`
	UpdatedAt    int64  `json:"updated_at"`
}

type UserRecord struct {
	Pubkey      string `json:"pubkey"`
	Address     string `json:"address"`
	Referrer    string `json:"referrer"`
	InGame      bool   `json:"in_game"`
	SupportBots bool   `json:"support_bots"`
	IsBot       bool   `json:"is_bot"`
	Turnover    string `json:"turnover"`
	Slot        uint64 `json:"slot"`
	UpdatedAt   int64  `json:"updated_at"`
}

type GameRecord struct {
	Pubkey    string `json:"pubkey"`
	Gamer1    string `json:"gamer1"`
	Gamer2    string `json:"gamer2"`
	Token1    string `json:"token1"`
	Token2    string `json:"token2"`
	Amount1   string `json:"amount1"`
	Amount2   string `json:"amount2"`
	LatestBet int64  `json:"latest_bet"`
	TypePrice string `json:"type_price"`
	Status    string `json:"status"`
	Slot      uint64 `json:"slot"`
	UpdatedAt int64  `json:"updated_at"`
}

type GameHistoryRecord struct {
	ID         int64  `json:"id"`
	GamePubkey string `json:"game_pubkey"`
	EventType  string `json:"event_type"`
	PrevStatus string `json:"prev_status"`
	NextStatus string `json:"next_status"`
	Gamer1     string `json:"gamer1"`
	Gamer2     string `json:"gamer2"`
	Amount1    string `json:"amount1"`
	Amount2    string `json:"amount2"`
	Slot       uint64 `json:"slot"`
	RecordedAt int64  `json:"recorded_at"`
}

type TypePriceRecord struct {
	Pubkey    string `json:"pubkey"`
	Price     string `json:"price"`
	Slot      uint64 `json:"slot"`
	UpdatedAt int64  `json:"updated_at"`
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// formatKey renders the zero key as an empty string.
func formatKey(key solana.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}

func registryRecord(pubkey solana.PublicKey, r *wager.Registry, slot uint64, now int64) RegistryRecord {
	return RegistryRecord{
		Pubkey:         pubkey.String(),
		ReferrerFee:    formatUint(r.ReferrerFee),
		AdminFee:       formatUint(r.AdminFee),
		GlobalFee:      formatUint(r.GlobalFee),
		TransactionFee: formatUint(r.TransactionFee),
		AcceptBets:     r.AcceptBets,
		CloseDelay:     formatUint(r.CloseDelay),
		Manager:        r.Manager.String(),
		Slot:           slot,
		UpdatedAt:      now,
	}
}

func tokenRecord(pubkey solana.PublicKey, w *wager.Whitelist, slot uint64, now int64) TokenRecord {
	return TokenRecord{
		Pubkey:       pubkey.String(),
		Mint:         w.Mint.String(),
		Feed:         w.Feed.String(),
		IsStablecoin: w.IsStablecoin,
		Slot:         slot,
		UpdatedAt:    now,
	}
}

func userRecord(pubkey solana.PublicKey, u *wager.User, slot uint64, now int64) UserRecord {
	return UserRecord{
		Pubkey:      pubkey.String(),
		Address:     u.Address.String(),
		Referrer:    formatKey(u.Referrer),
		InGame:      u.InGame,
		SupportBots: u.SupportBots,
		IsBot:       u.IsBot,
		Turnover:    formatUint(u.Turnover),
		Slot:        slot,
		UpdatedAt:   now,
	}
}

func gameRecord(pubkey solana.PublicKey, g *wager.Game, slot uint64, now int64) GameRecord {
	return GameRecord{
		Pubkey:    pubkey.String(),
		Gamer1:    g.Gamer1.String(),
		Gamer2:    formatKey(g.Gamer2),
		Token1:    g.Token1.String(),
		Token2:    formatKey(g.Token2),
		Amount1:   formatUint(g.Amount1),
		Amount2:   formatUint(g.Amount2),
		LatestBet: int64(g.LatestBet),
		TypePrice: formatUint(g.TypePrice),
		Status:    g.Status().String(),
		Slot:      slot,
		UpdatedAt: now,
	}
}

func typePriceRecord(pubkey solana.PublicKey, t *wager.TypePrice, slot uint64, now int64) TypePriceRecord {
	return TypePriceRecord{
		Pubkey:    pubkey.String(),
		Price:     formatUint(t.Price),
		Slot:      slot,
		UpdatedAt: now,
	}
}

// gameEvent describes the status transition from prevStatus to the stored
// row. A wager account is reused once closed, so closed -> open is a new
// wager.
func gameEvent(prevStatus *string, row GameRecord) (GameHistoryRecord, bool) {
	prev := ""
	if prevStatus != nil {
		prev = *prevStatus
		if prev == row.Status {
			return GameHistoryRecord{}, false
		}
	}

	eventType := row.Status
	switch row.Status {
	case wager.StatusOpen.String():
		eventType = "opened"
	case wager.StatusMatched.String():
		eventType = "matched"
	case wager.StatusClosed.String():
		eventType = "closed"
	}

	return GameHistoryRecord{
		GamePubkey: row.Pubkey,
		EventType:  eventType,
		PrevStatus: prev,
		NextStatus: row.Status,
		Gamer1:     row.Gamer1,
		Gamer2:     row.Gamer2,
		Amount1:    row.Amount1,
		Amount2:    row.Amount2,
		Slot:       row.Slot,
		RecordedAt: row.UpdatedAt,
	}, true
}
