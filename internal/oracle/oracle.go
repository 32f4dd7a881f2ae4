// Package oracle decodes the price feed accounts the wager program accepts.
package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// QuoteDecimals is the fixed precision every quote is normalized to.
const QuoteDecimals = 8

var (
	ChainlinkStoreProgramID = solana.MustPublicKeyFromBase58("HEvSKofvBgfaexv23kMabbYqxasxU3mQ4ibBMEmJWHny")
	PythPushOracleProgramID = solana.MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")
)

var (
	ErrInvalidFeed   = errors.New("invalid price feed account")
	ErrUnknownOracle = errors.New("unknown oracle program")
)

// LatestAnswer decodes the feed according to its owning program and returns
// a positive quote scaled to QuoteDecimals.
func LatestAnswer(owner solana.PublicKey, data []byte) (*big.Int, error) {
	switch {
	case owner.Equals(ChainlinkStoreProgramID):
		round, err := DecodeRound(data)
		if err != nil {
			return nil, err
		}
		return round.Quote()
	case owner.Equals(PythPushOracleProgramID):
		update, err := DecodePriceUpdate(data)
		if err != nil {
			return nil, err
		}
		return update.Answer()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOracle, owner)
	}
}

func rescale(v *big.Int, decimals uint8) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case decimals < QuoteDecimals:
		return out.Mul(out, pow10(QuoteDecimals-decimals))
	case decimals > QuoteDecimals:
		return out.Quo(out, pow10(decimals-QuoteDecimals))
	default:
		return out
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
