package wager

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// AccountInfo is the view of one account handed to the program. The host
// owns the backing storage; writes through Data and Lamports are visible to
// the host and to later cross-program invocations in the same instruction.
type AccountInfo struct {
	Key        solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	IsSigner   bool
	IsWritable bool
	Executable bool
}

// Host is the runtime the processor executes inside.
type Host interface {
	// Invoke runs a cross-program instruction. Every proof marks the derived
	// address it proves as a signer for the duration of the call.
	Invoke(ix solana.Instruction, proofs ...AuthorityProof) error
	UnixTimestamp() int64
	MinimumBalance(size uint64) uint64
	// LatestAnswer reads the current quote of a price feed owned by
	// oracleProgram.
	LatestAnswer(oracleProgram, feed *AccountInfo) (*big.Int, error)
	Log(message string)
}
