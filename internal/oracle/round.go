package oracle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

const RoundSize = 16 + 1 + 8

// Round is the latest answer stored in a Chainlink store feed account.
type Round struct {
	Answer    *big.Int
	Decimals  uint8
	Timestamp int64
}

func (r Round) MarshalWithEncoder(enc *bin.Encoder) error {
	if r.Answer == nil {
		return fmt.Errorf("%w: missing answer", ErrInvalidFeed)
	}
	answer, err := int128FromBig(r.Answer)
	if err != nil {
		return err
	}
	if err := enc.WriteInt128(answer, binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteUint8(r.Decimals); err != nil {
		return err
	}
	return enc.WriteInt64(r.Timestamp, binary.LittleEndian)
}

func (r *Round) UnmarshalWithDecoder(dec *bin.Decoder) error {
	answer, err := dec.ReadInt128(binary.LittleEndian)
	if err != nil {
		return err
	}
	r.Answer = answer.BigInt()
	if r.Decimals, err = dec.ReadUint8(); err != nil {
		return err
	}
	r.Timestamp, err = dec.ReadInt64(binary.LittleEndian)
	return err
}

// Quote rescales the answer to QuoteDecimals.
func (r Round) Quote() (*big.Int, error) {
	if r.Answer == nil || r.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer", ErrInvalidFeed)
	}
	return rescale(r.Answer, r.Decimals), nil
}

func DecodeRound(data []byte) (*Round, error) {
	if len(data) != RoundSize {
		return nil, fmt.Errorf("%w: round length %d, want %d", ErrInvalidFeed, len(data), RoundSize)
	}
	out := new(Round)
	if err := out.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	return out, nil
}

func EncodeRound(r Round) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := r.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	mask64    = new(big.Int).SetUint64(^uint64(0))
)

func int128FromBig(v *big.Int) (bin.Int128, error) {
	if v.Cmp(minInt128) < 0 || v.Cmp(maxInt128) > 0 {
		return bin.Int128{}, fmt.Errorf("%w: answer %s out of i128 range", ErrInvalidFeed, v)
	}
	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	lo := new(big.Int).And(u, mask64).Uint64()
	hi := new(big.Int).Rsh(u, 64).Uint64()
	return bin.Int128{Lo: lo, Hi: hi, Endianness: binary.LittleEndian}, nil
}
