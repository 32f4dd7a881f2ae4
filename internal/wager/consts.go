package wager

import "github.com/gagliardetto/solana-go"

const (
	SeedRegistry  = "betting"
	SeedWhitelist = "whitelist"
	SeedUser      = "user"
	SeedGame      = "game"
	SeedTypePrice = "type_price"
)

const (
	DefaultReferrerFee    uint64 = 50
	DefaultAdminFee       uint64 = 50
	DefaultGlobalFee      uint64 = 10
	DefaultTransactionFee uint64 = 0
	DefaultCloseDelay     uint64 = 300

	// ManualCloseFeePercent is charged to gamer1 when they cancel an
	// unmatched wager themselves.
	ManualCloseFeePercent uint64 = 5

	// Precision scales the tier price against the feed quote:
	// stake = price * Precision * Precision / quote.
	Precision uint64 = 10_000

	maxPercent uint64 = 100
)

var (
	DefaultProgramID = solana.MustPublicKeyFromBase58("8mv1b8uoqYW3T7tVJKb3BJnVuCZCCEHcpoa3c7Grq26c")
	DefaultAdmin     = solana.MustPublicKeyFromBase58("AJuY2ejuYaEu9PJefnLt6bEQW4Z1JVeQTbkw1Zq367YX")
)
