package oracle

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRoundTrip(t *testing.T) {
	data, err := EncodeRound(Round{Answer: big.NewInt(2_000_000_000), Decimals: 8, Timestamp: 1_700_000_000})
	require.NoError(t, err)
	require.Len(t, data, RoundSize)

	round, err := DecodeRound(data)
	require.NoError(t, err)
	assert.Equal(t, "2000000000", round.Answer.String())
	assert.Equal(t, uint8(8), round.Decimals)
	assert.Equal(t, int64(1_700_000_000), round.Timestamp)
}

func TestRoundNegativeAnswer(t *testing.T) {
	data, err := EncodeRound(Round{Answer: big.NewInt(-5), Decimals: 8})
	require.NoError(t, err)

	round, err := DecodeRound(data)
	require.NoError(t, err)
	assert.Equal(t, "-5", round.Answer.String())

	_, err = round.Quote()
	assert.ErrorIs(t, err, ErrInvalidFeed)
}

func TestRoundQuoteRescales(t *testing.T) {
	quote, err := Round{Answer: big.NewInt(25), Decimals: 0}.Quote()
	require.NoError(t, err)
	assert.Equal(t, "2500000000", quote.String())

	quote, err = Round{Answer: big.NewInt(25_000_000_000), Decimals: 10}.Quote()
	require.NoError(t, err)
	assert.Equal(t, "250000000", quote.String())
}

func TestDecodeRoundRejectsShortData(t *testing.T) {
	_, err := DecodeRound(make([]byte, RoundSize-1))
	assert.ErrorIs(t, err, ErrInvalidFeed)
}

func TestPriceUpdateRoundTrip(t *testing.T) {
	in := PriceUpdate{
		FeedID:      [32]byte{1, 2, 3},
		Price:       15_012_345_678,
		Conf:        1_000,
		Exponent:    -8,
		PublishTime: 1_700_000_100,
		PostedSlot:  42,
	}
	data := EncodePriceUpdate(in)
	require.Len(t, data, priceUpdateV2Size)

	out, err := DecodePriceUpdate(data)
	require.NoError(t, err)
	assert.Equal(t, in, *out)

	answer, err := out.Answer()
	require.NoError(t, err)
	assert.Equal(t, "15012345678", answer.String())
}

func TestPriceUpdateRejectsPartialVerification(t *testing.T) {
	data := EncodePriceUpdate(PriceUpdate{Price: 1, Exponent: -8})
	data[8+32] = 0

	_, err := DecodePriceUpdate(data)
	assert.ErrorIs(t, err, ErrInvalidFeed)
}

func TestPriceUpdateRejectsTrailingBytes(t *testing.T) {
	data := append(EncodePriceUpdate(PriceUpdate{Price: 1, Exponent: -8}), 0)

	_, err := DecodePriceUpdate(data)
	assert.ErrorIs(t, err, ErrInvalidFeed)
}

func TestLatestAnswerDispatchesOnOwner(t *testing.T) {
	round, err := EncodeRound(Round{Answer: big.NewInt(100_000_000), Decimals: 8})
	require.NoError(t, err)
	answer, err := LatestAnswer(ChainlinkStoreProgramID, round)
	require.NoError(t, err)
	assert.Equal(t, "100000000", answer.String())

	update := EncodePriceUpdate(PriceUpdate{Price: 150, Exponent: -2})
	answer, err = LatestAnswer(PythPushOracleProgramID, update)
	require.NoError(t, err)
	assert.Equal(t, "150000000", answer.String())

	_, err = LatestAnswer(solana.SystemProgramID, round)
	assert.ErrorIs(t, err, ErrUnknownOracle)
}
