package wager

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// AuthorityProof lets the host treat a program derived address as a signer
// of one cross-program invocation. Seeds end with the bump byte.
type AuthorityProof struct {
	Address solana.PublicKey
	Seeds   [][]byte
}

// Derived is a program derived address together with its canonical bump.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
	seeds   [][]byte
}

func (d Derived) proof() AuthorityProof {
	seeds := make([][]byte, 0, len(d.seeds)+1)
	seeds = append(seeds, d.seeds...)
	seeds = append(seeds, []byte{d.Bump})
	return AuthorityProof{Address: d.Address, Seeds: seeds}
}

func derive(programID solana.PublicKey, seeds ...[]byte) (Derived, error) {
	lookup := make([][]byte, len(seeds))
	copy(lookup, seeds)
	address, bump, err := solana.FindProgramAddress(lookup, programID)
	if err != nil {
		return Derived{}, err
	}
	return Derived{Address: address, Bump: bump, seeds: seeds}, nil
}

func DeriveRegistryPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(SeedRegistry)}, programID)
}

func DeriveWhitelistPDA(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(SeedWhitelist), mint.Bytes()}, programID)
}

func DeriveUserPDA(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(SeedUser), owner.Bytes()}, programID)
}

func DeriveGamePDA(programID, initiator solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(SeedGame), initiator.Bytes()}, programID)
}

// DeriveTypePricePDA uses the decimal rendering of the tier id as the
// second seed.
func DeriveTypePricePDA(programID solana.PublicKey, tier uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(SeedTypePrice), tierSeed(tier)}, programID)
}

// EscrowAddress is the associated token account of a wager PDA.
func EscrowAddress(game, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(game, mint)
	return address, err
}

func MustDeriveGamePDA(programID, initiator solana.PublicKey) solana.PublicKey {
	pk, _, err := DeriveGamePDA(programID, initiator)
	if err != nil {
		panic(fmt.Errorf("derive game PDA: %w", err))
	}
	return pk
}

func MustDeriveUserPDA(programID, owner solana.PublicKey) solana.PublicKey {
	pk, _, err := DeriveUserPDA(programID, owner)
	if err != nil {
		panic(fmt.Errorf("derive user PDA: %w", err))
	}
	return pk
}

func tierSeed(tier uint64) []byte {
	return []byte(strconv.FormatUint(tier, 10))
}

func (p *Processor) registryAddress() (Derived, error) {
	return derive(p.programID, []byte(SeedRegistry))
}

func (p *Processor) whitelistAddress(mint solana.PublicKey) (Derived, error) {
	return derive(p.programID, []byte(SeedWhitelist), mint.Bytes())
}

func (p *Processor) userAddress(owner solana.PublicKey) (Derived, error) {
	return derive(p.programID, []byte(SeedUser), owner.Bytes())
}

func (p *Processor) gameAddress(initiator solana.PublicKey) (Derived, error) {
	return derive(p.programID, []byte(SeedGame), initiator.Bytes())
}

func (p *Processor) typePriceAddress(tier uint64) (Derived, error) {
	return derive(p.programID, []byte(SeedTypePrice), tierSeed(tier))
}
