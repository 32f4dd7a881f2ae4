package wager

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type Tag uint8

const (
	TagInit Tag = iota
	TagChangeCloseDelay
	TagLockBets
	TagUnlockBets
	TagAddSupportedToken
	TagRegistration
	TagNewManager
	TagSetGlobalFee
	TagSetAdminFee
	TagSetWinnerFee
	TagSetTransactionFee
	TagAddBot
	TagNewGame
	TagJoinGame
	TagForcedClose
	TagManuallyClose
	TagClose
	TagSetTypePrice
)

var tagNames = [...]string{
	TagInit:              "Init",
	TagChangeCloseDelay:  "ChangeCloseDelay",
	TagLockBets:          "LockBets",
	TagUnlockBets:        "UnlockBets",
	TagAddSupportedToken: "AddSupportedToken",
	TagRegistration:      "Registration",
	TagNewManager:        "NewManager",
	TagSetGlobalFee:      "SetGlobalFee",
	TagSetAdminFee:       "SetAdminFee",
	TagSetWinnerFee:      "SetWinnerFee",
	TagSetTransactionFee: "SetTransactionFee",
	TagAddBot:            "AddBot",
	TagNewGame:           "NewGame",
	TagJoinGame:          "JoinGame",
	TagForcedClose:       "ForcedClose",
	TagManuallyClose:     "ManuallyClose",
	TagClose:             "Close",
	TagSetTypePrice:      "SetTypePrice",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Instruction is one variant of the program's instruction set.
type Instruction interface {
	Tag() Tag
	bin.BinaryMarshaler
	bin.BinaryUnmarshaler
}

type Init struct {
	Manager        solana.PublicKey
	SupportedToken solana.PublicKey
	Feed           solana.PublicKey
	IsStablecoin   bool
}

type ChangeCloseDelay struct {
	NewDelay uint64
}

type LockBets struct{}

type UnlockBets struct{}

type AddSupportedToken struct {
	SupportedToken solana.PublicKey
	Feed           solana.PublicKey
	IsStablecoin   bool
}

// Registration carries a password for wire compatibility; it is never
// stored.
type Registration struct {
	Referrer solana.PublicKey
	Password string
}

type NewManager struct {
	Manager solana.PublicKey
}

type SetGlobalFee struct {
	Fee uint64
}

type SetAdminFee struct {
	Fee uint64
}

// SetWinnerFee updates the referrer share of the fee.
type SetWinnerFee struct {
	Fee uint64
}

type SetTransactionFee struct {
	Fee uint64
}

type AddBot struct {
	Bot solana.PublicKey
}

type NewGame struct {
	TypePrice  uint64
	SupportBot bool
}

type JoinGame struct {
	TypePrice  uint64
	SupportBot bool
	UserMaster solana.PublicKey
}

type ForcedClose struct {
	User solana.PublicKey
}

type ManuallyClose struct{}

type Close struct {
	User          solana.PublicKey
	WinnerAddress solana.PublicKey
	TypePrice     uint64
}

type SetTypePrice struct {
	TypePrice uint64
	Price     uint64
}

func (*Init) Tag() Tag              { return TagInit }
func (*ChangeCloseDelay) Tag() Tag  { return TagChangeCloseDelay }
func (*LockBets) Tag() Tag          { return TagLockBets }
func (*UnlockBets) Tag() Tag        { return TagUnlockBets }
func (*AddSupportedToken) Tag() Tag { return TagAddSupportedToken }
func (*Registration) Tag() Tag      { return TagRegistration }
func (*NewManager) Tag() Tag        { return TagNewManager }
func (*SetGlobalFee) Tag() Tag      { return TagSetGlobalFee }
func (*SetAdminFee) Tag() Tag       { return TagSetAdminFee }
func (*SetWinnerFee) Tag() Tag      { return TagSetWinnerFee }
func (*SetTransactionFee) Tag() Tag { return TagSetTransactionFee }
func (*AddBot) Tag() Tag            { return TagAddBot }
func (*NewGame) Tag() Tag           { return TagNewGame }
func (*JoinGame) Tag() Tag          { return TagJoinGame }
func (*ForcedClose) Tag() Tag       { return TagForcedClose }
func (*ManuallyClose) Tag() Tag     { return TagManuallyClose }
func (*Close) Tag() Tag             { return TagClose }
func (*SetTypePrice) Tag() Tag      { return TagSetTypePrice }

func (ix *Init) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, key := range []solana.PublicKey{ix.Manager, ix.SupportedToken, ix.Feed} {
		if err := writeKey(enc, key); err != nil {
			return err
		}
	}
	return enc.WriteBool(ix.IsStablecoin)
}

func (ix *Init) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, dst := range []*solana.PublicKey{&ix.Manager, &ix.SupportedToken, &ix.Feed} {
		if *dst, err = readKey(dec); err != nil {
			return err
		}
	}
	ix.IsStablecoin, err = dec.ReadBool()
	return err
}

func (ix *ChangeCloseDelay) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.NewDelay, binary.LittleEndian)
}

func (ix *ChangeCloseDelay) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.NewDelay, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (*LockBets) MarshalWithEncoder(*bin.Encoder) error   { return nil }
func (*LockBets) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

func (*UnlockBets) MarshalWithEncoder(*bin.Encoder) error   { return nil }
func (*UnlockBets) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

func (ix *AddSupportedToken) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, ix.SupportedToken); err != nil {
		return err
	}
	if err := writeKey(enc, ix.Feed); err != nil {
		return err
	}
	return enc.WriteBool(ix.IsStablecoin)
}

func (ix *AddSupportedToken) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.SupportedToken, err = readKey(dec); err != nil {
		return err
	}
	if ix.Feed, err = readKey(dec); err != nil {
		return err
	}
	ix.IsStablecoin, err = dec.ReadBool()
	return err
}

func (ix *Registration) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, ix.Referrer); err != nil {
		return err
	}
	return enc.WriteRustString(ix.Password)
}

func (ix *Registration) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.Referrer, err = readKey(dec); err != nil {
		return err
	}
	ix.Password, err = dec.ReadRustString()
	return err
}

func (ix *NewManager) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeKey(enc, ix.Manager)
}

func (ix *NewManager) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Manager, err = readKey(dec)
	return err
}

func (ix *SetGlobalFee) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.Fee, binary.LittleEndian)
}

func (ix *SetGlobalFee) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Fee, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (ix *SetAdminFee) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.Fee, binary.LittleEndian)
}

func (ix *SetAdminFee) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Fee, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (ix *SetWinnerFee) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.Fee, binary.LittleEndian)
}

func (ix *SetWinnerFee) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Fee, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (ix *SetTransactionFee) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.Fee, binary.LittleEndian)
}

func (ix *SetTransactionFee) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Fee, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (ix *AddBot) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeKey(enc, ix.Bot)
}

func (ix *AddBot) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Bot, err = readKey(dec)
	return err
}

func (ix *NewGame) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(ix.TypePrice, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBool(ix.SupportBot)
}

func (ix *NewGame) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.TypePrice, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	ix.SupportBot, err = dec.ReadBool()
	return err
}

func (ix *JoinGame) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(ix.TypePrice, binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteBool(ix.SupportBot); err != nil {
		return err
	}
	return writeKey(enc, ix.UserMaster)
}

func (ix *JoinGame) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.TypePrice, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if ix.SupportBot, err = dec.ReadBool(); err != nil {
		return err
	}
	ix.UserMaster, err = readKey(dec)
	return err
}

func (ix *ForcedClose) MarshalWithEncoder(enc *bin.Encoder) error {
	return writeKey(enc, ix.User)
}

func (ix *ForcedClose) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.User, err = readKey(dec)
	return err
}

func (*ManuallyClose) MarshalWithEncoder(*bin.Encoder) error   { return nil }
func (*ManuallyClose) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

func (ix *Close) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writeKey(enc, ix.User); err != nil {
		return err
	}
	if err := writeKey(enc, ix.WinnerAddress); err != nil {
		return err
	}
	return enc.WriteUint64(ix.TypePrice, binary.LittleEndian)
}

func (ix *Close) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.User, err = readKey(dec); err != nil {
		return err
	}
	if ix.WinnerAddress, err = readKey(dec); err != nil {
		return err
	}
	ix.TypePrice, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func (ix *SetTypePrice) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(ix.TypePrice, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(ix.Price, binary.LittleEndian)
}

func (ix *SetTypePrice) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.TypePrice, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	ix.Price, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

// EncodeInstruction writes the u8 tag followed by the variant fields.
func EncodeInstruction(ix Instruction) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint8(uint8(ix.Tag())); err != nil {
		return nil, err
	}
	if err := ix.MarshalWithEncoder(enc); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ix.Tag(), err)
	}
	return buf.Bytes(), nil
}

// DecodeInstruction parses instruction data. Unknown tags, short payloads
// and trailing bytes all fail with ErrInvalidInstructionData.
func DecodeInstruction(data []byte) (Instruction, error) {
	dec := bin.NewBorshDecoder(data)
	raw, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: missing tag", ErrInvalidInstructionData)
	}
	ix := newInstruction(Tag(raw))
	if ix == nil {
		return nil, fmt.Errorf("%w: unknown tag %d", ErrInvalidInstructionData, raw)
	}
	if err := ix.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInstructionData, ix.Tag(), err)
	}
	if dec.HasRemaining() {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrInvalidInstructionData, ix.Tag(), dec.Remaining())
	}
	return ix, nil
}

func newInstruction(tag Tag) Instruction {
	switch tag {
	case TagInit:
		return new(Init)
	case TagChangeCloseDelay:
		return new(ChangeCloseDelay)
	case TagLockBets:
		return new(LockBets)
	case TagUnlockBets:
		return new(UnlockBets)
	case TagAddSupportedToken:
		return new(AddSupportedToken)
	case TagRegistration:
		return new(Registration)
	case TagNewManager:
		return new(NewManager)
	case TagSetGlobalFee:
		return new(SetGlobalFee)
	case TagSetAdminFee:
		return new(SetAdminFee)
	case TagSetWinnerFee:
		return new(SetWinnerFee)
	case TagSetTransactionFee:
		return new(SetTransactionFee)
	case TagAddBot:
		return new(AddBot)
	case TagNewGame:
		return new(NewGame)
	case TagJoinGame:
		return new(JoinGame)
	case TagForcedClose:
		return new(ForcedClose)
	case TagManuallyClose:
		return new(ManuallyClose)
	case TagClose:
		return new(Close)
	case TagSetTypePrice:
		return new(SetTypePrice)
	default:
		return nil
	}
}
