package oracle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

var priceUpdateV2Discriminator = [8]byte{34, 241, 35, 99, 157, 126, 244, 205}

const priceUpdateV2Size = 8 + 32 + 1 + 32 + 8 + 8 + 4 + 8 + 8 + 8 + 8 + 8

const (
	verificationPartial uint8 = 0
	verificationFull    uint8 = 1
)

// PriceUpdate is a fully verified Pyth PriceUpdateV2 account.
type PriceUpdate struct {
	WriteAuthority  [32]byte
	FeedID          [32]byte
	Price           int64
	Conf            uint64
	Exponent        int32
	PublishTime     int64
	PrevPublishTime int64
	EMAPrice        int64
	EMAConf         uint64
	PostedSlot      uint64
}

// Answer rescales the price to QuoteDecimals.
func (p PriceUpdate) Answer() (*big.Int, error) {
	if p.Price <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrInvalidFeed)
	}
	if p.Exponent > 0 || p.Exponent < -18 {
		return nil, fmt.Errorf("%w: unsupported exponent %d", ErrInvalidFeed, p.Exponent)
	}
	return rescale(big.NewInt(p.Price), uint8(-p.Exponent)), nil
}

func (p PriceUpdate) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(priceUpdateV2Discriminator[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(p.WriteAuthority[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint8(verificationFull); err != nil {
		return err
	}
	if err := enc.WriteBytes(p.FeedID[:], false); err != nil {
		return err
	}
	for _, v := range []uint64{uint64(p.Price), p.Conf} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	if err := enc.WriteInt32(p.Exponent, binary.LittleEndian); err != nil {
		return err
	}
	for _, v := range []uint64{uint64(p.PublishTime), uint64(p.PrevPublishTime), uint64(p.EMAPrice), p.EMAConf, p.PostedSlot} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	return nil
}

func (p *PriceUpdate) UnmarshalWithDecoder(dec *bin.Decoder) error {
	discriminator, err := dec.ReadNBytes(len(priceUpdateV2Discriminator))
	if err != nil {
		return err
	}
	if !bytes.Equal(discriminator, priceUpdateV2Discriminator[:]) {
		return errors.New("discriminator mismatch")
	}
	if err := readKey(dec, &p.WriteAuthority); err != nil {
		return err
	}
	switch level, err := dec.ReadUint8(); {
	case err != nil:
		return err
	case level == verificationPartial:
		return errors.New("verification level is partial")
	case level != verificationFull:
		return fmt.Errorf("unknown verification level %d", level)
	}
	if err := readKey(dec, &p.FeedID); err != nil {
		return err
	}
	if p.Price, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	if p.Conf, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if p.Exponent, err = dec.ReadInt32(binary.LittleEndian); err != nil {
		return err
	}
	if p.PublishTime, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	if p.PrevPublishTime, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	if p.EMAPrice, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	if p.EMAConf, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	p.PostedSlot, err = dec.ReadUint64(binary.LittleEndian)
	return err
}

func readKey(dec *bin.Decoder, dst *[32]byte) error {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	copy(dst[:], raw)
	return nil
}

// DecodePriceUpdate accepts only fully verified updates of the exact
// account size.
func DecodePriceUpdate(data []byte) (*PriceUpdate, error) {
	if len(data) != priceUpdateV2Size {
		return nil, fmt.Errorf("%w: price update length %d, want %d", ErrInvalidFeed, len(data), priceUpdateV2Size)
	}
	out := new(PriceUpdate)
	if err := out.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	return out, nil
}

// EncodePriceUpdate writes a fully verified PriceUpdateV2 account.
func EncodePriceUpdate(p PriceUpdate) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, priceUpdateV2Size))
	// Writes to a bytes.Buffer cannot fail.
	_ = p.MarshalWithEncoder(bin.NewBorshEncoder(buf))
	return buf.Bytes()
}
