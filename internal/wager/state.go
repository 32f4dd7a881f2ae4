package wager

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	RegistrySize  = 8*4 + 1 + 8 + 32
	WhitelistSize = 32 + 32 + 1
	UserSize      = 32 + 32 + 1 + 1 + 1 + 8
	GameSize      = 32*4 + 8*3 + 1 + 8
	TypePriceSize = 8
)

type Registry struct {
	ReferrerFee    uint64
	AdminFee       uint64
	GlobalFee      uint64
	TransactionFee uint64
	AcceptBets     bool
	CloseDelay     uint64
	Manager        solana.PublicKey
}

type Whitelist struct {
	Mint         solana.PublicKey
	Feed         solana.PublicKey
	IsStablecoin bool
}

type User struct {
	Address     solana.PublicKey
	Referrer    solana.PublicKey
	InGame      bool
	SupportBots bool
	IsBot       bool
	Turnover    uint64
}

// HasReferrer reports whether the profile was registered with a referrer.
func (u User) HasReferrer() bool {
	return !u.Referrer.IsZero()
}

type Game struct {
	Gamer1    solana.PublicKey
	Gamer2    solana.PublicKey
	Token1    solana.PublicKey
	Token2    solana.PublicKey
	Amount1   uint64
	Amount2   uint64
	LatestBet uint64
	Closed    bool
	TypePrice uint64
}

type Status uint8

const (
	StatusOpen Status = iota
	StatusMatched
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusMatched:
		return "matched"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (g Game) Status() Status {
	switch {
	case g.Closed:
		return StatusClosed
	case g.Gamer2.IsZero():
		return StatusOpen
	default:
		return StatusMatched
	}
}

// Opponent returns gamer2 once the wager has been matched.
func (g Game) Opponent() (solana.PublicKey, bool) {
	if g.Gamer2.IsZero() {
		return solana.PublicKey{}, false
	}
	return g.Gamer2, true
}

type TypePrice struct {
	Price uint64
}

func (r Registry) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, v := range []uint64{r.ReferrerFee, r.AdminFee, r.GlobalFee, r.TransactionFee} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(r.AcceptBets); err != nil {
		return err
	}
	if err := enc.WriteUint64(r.CloseDelay, binary.LittleEndian); err != nil {
		return err
	}
	return writeKey(enc, r.Manager)
}

func (r *Registry) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, dst := range []*uint64{&r.ReferrerFee, &r.AdminFee, &r.GlobalFee, &r.TransactionFee} {
		if *dst, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return err
		}
	}
	if r.AcceptBets, err = dec.ReadBool(); err != nil {
		return err
	}
	if r.CloseDelay, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	r.Manager, err = readKey(dec)
	return err
}

func (w Whitelist) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, w.Mint); err != nil {
		return err
	}
	if err := writeKey(enc, w.Feed); err != nil {
		return err
	}
	return enc.WriteBool(w.IsStablecoin)
}

func (w *Whitelist) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if w.Mint, err = readKey(dec); err != nil {
		return err
	}
	if w.Feed, err = readKey(dec); err != nil {
		return err
	}
	w.IsStablecoin, err = dec.ReadBool()
	return err
}

func (u User) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, u.Address); err != nil {
		return err
	}
	if err := writeKey(enc, u.Referrer); err != nil {
		return err
	}
	for _, flag := range []bool{u.InGame, u.SupportBots, u.IsBot} {
		if err := enc.WriteBool(flag); err != nil {
			return err
		}
	}
	return enc.WriteUint64(u.Turnover, binary.LittleEndian)
}

func (u *User) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if u.Address, err = readKey(dec); err != nil {
		return err
	}
	if u.Referrer, err = readKey(dec); err != nil {
		return err
	}
	for _, dst := range []*bool{&u.InGame, &u.SupportBots, &u.IsBot} {
		if *dst, err = dec.ReadBool(); err != nil {
			return err
		}
	}
	u.Turnover, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (g Game) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, key := range []solana.PublicKey{g.Gamer1, g.Gamer2, g.Token1, g.Token2} {
		if err := writeKey(enc, key); err != nil {
			return err
		}
	}
	for _, v := range []uint64{g.Amount1, g.Amount2, g.LatestBet} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	if err := enc.WriteBool(g.Closed); err != nil {
		return err
	}
	return enc.WriteUint64(g.TypePrice, binary.LittleEndian)
}

func (g *Game) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, dst := range []*solana.PublicKey{&g.Gamer1, &g.Gamer2, &g.Token1, &g.Token2} {
		if *dst, err = readKey(dec); err != nil {
			return err
		}
	}
	for _, dst := range []*uint64{&g.Amount1, &g.Amount2, &g.LatestBet} {
		if *dst, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return err
		}
	}
	if g.Closed, err = dec.ReadBool(); err != nil {
		return err
	}
	g.TypePrice, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (t TypePrice) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(t.Price, binary.LittleEndian)
}

func (t *TypePrice) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	t.Price, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

// DecodeRegistry and friends parse raw account data. Data must be exactly
// the record size.
func DecodeRegistry(data []byte) (*Registry, error) {
	out := new(Registry)
	return out, decodeRecord(data, RegistrySize, out)
}

func DecodeWhitelist(data []byte) (*Whitelist, error) {
	out := new(Whitelist)
	return out, decodeRecord(data, WhitelistSize, out)
}

func DecodeUser(data []byte) (*User, error) {
	out := new(User)
	return out, decodeRecord(data, UserSize, out)
}

func DecodeGame(data []byte) (*Game, error) {
	out := new(Game)
	return out, decodeRecord(data, GameSize, out)
}

func DecodeTypePrice(data []byte) (*TypePrice, error) {
	out := new(TypePrice)
	return out, decodeRecord(data, TypePriceSize, out)
}

// EncodeRecord serializes a record to its Borsh layout.
func EncodeRecord(rec bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rec.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte, size int, out bin.BinaryUnmarshaler) error {
	if len(data) != size {
		return fmt.Errorf("%w: record length %d, want %d", ErrDeserialize, len(data), size)
	}
	if err := out.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return nil
}

// loadRecord reads a record from a program owned account.
func (p *Processor) loadRecord(account *AccountInfo, size int, out bin.BinaryUnmarshaler) error {
	if !account.Owner.Equals(p.programID) {
		return fmt.Errorf("%w: account %s is not owned by the program", ErrDeserialize, account.Key)
	}
	return decodeRecord(account.Data, size, out)
}

// storeRecord writes rec into the account's data buffer in place.
func storeRecord(account *AccountInfo, rec bin.BinaryMarshaler) error {
	if !account.IsWritable {
		return invalidAccount("record", "account %s is not writable", account.Key)
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if len(data) != len(account.Data) {
		return fmt.Errorf("%w: record length %d, account data %d", ErrDeserialize, len(data), len(account.Data))
	}
	copy(account.Data, data)
	return nil
}

func writeKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}
