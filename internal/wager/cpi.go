package wager

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// ensureProgramAccount funds, allocates and assigns target to the program
// unless it already belongs to it.
func (p *Processor) ensureProgramAccount(host Host, payer, target *AccountInfo, pda Derived, size uint64) (bool, error) {
	if target.Owner.Equals(p.programID) {
		return false, nil
	}
	required := host.MinimumBalance(size)
	if required == 0 {
		required = 1
	}
	if target.Lamports < required {
		ix := system.NewTransferInstruction(required-target.Lamports, payer.Key, target.Key).Build()
		if err := host.Invoke(ix); err != nil {
			return false, fmt.Errorf("fund %s: %w", target.Key, err)
		}
	}
	proof := pda.proof()
	if err := host.Invoke(system.NewAllocateInstruction(size, target.Key).Build(), proof); err != nil {
		return false, fmt.Errorf("allocate %s: %w", target.Key, err)
	}
	if err := host.Invoke(system.NewAssignInstruction(p.programID, target.Key).Build(), proof); err != nil {
		return false, fmt.Errorf("assign %s: %w", target.Key, err)
	}
	return true, nil
}

// ensureTokenAccount creates the associated token account of wallet for
// mint when it does not exist yet.
func ensureTokenAccount(host Host, payer, ata, wallet, mint *AccountInfo) error {
	if ata.Owner.Equals(solana.TokenProgramID) {
		return nil
	}
	ix := associatedtokenaccount.NewCreateInstruction(payer.Key, wallet.Key, mint.Key).Build()
	if err := host.Invoke(ix); err != nil {
		return fmt.Errorf("create token account %s: %w", ata.Key, err)
	}
	return nil
}

func transferTokens(host Host, source, destination, authority *AccountInfo, amount uint64, proofs ...AuthorityProof) error {
	if amount == 0 {
		return nil
	}
	ix := token.NewTransferInstruction(amount, source.Key, destination.Key, authority.Key, nil).Build()
	if err := host.Invoke(ix, proofs...); err != nil {
		return fmt.Errorf("transfer %d from %s to %s: %w", amount, source.Key, destination.Key, err)
	}
	return nil
}

func closeTokenAccount(host Host, account, destination, authority *AccountInfo, proofs ...AuthorityProof) error {
	ix := token.NewCloseAccountInstruction(account.Key, destination.Key, authority.Key, nil).Build()
	if err := host.Invoke(ix, proofs...); err != nil {
		return fmt.Errorf("close token account %s: %w", account.Key, err)
	}
	return nil
}

// tokenAmount reads the balance held by an SPL token account.
func tokenAmount(acc *AccountInfo) (uint64, error) {
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return 0, invalidAccount("token account", "%s is not owned by the token program", acc.Key)
	}
	var holder token.Account
	if err := holder.UnmarshalWithDecoder(bin.NewBinDecoder(acc.Data)); err != nil {
		return 0, fmt.Errorf("%w: token account %s: %v", ErrDeserialize, acc.Key, err)
	}
	return holder.Amount, nil
}
