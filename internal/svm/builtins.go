package svm

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/wager/backend/internal/wager"
)

const (
	TokenAccountSize = 165
	MintSize         = token.MINT_SIZE

	maxAccountSize = 10 << 20
)

var (
	ErrInsufficientLamports = errors.New("insufficient lamports")
	ErrInsufficientTokens   = errors.New("insufficient token balance")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrAccountInUse         = errors.New("account already in use")
	ErrInvalidTokenAccount  = errors.New("invalid token account")
	ErrMintMismatch         = errors.New("token accounts belong to different mints")
	ErrOwnerMismatch        = errors.New("authority does not own the token account")
	ErrNonZeroBalance       = errors.New("non-native account can only be closed if its balance is zero")
)

func metasOf(accounts []*wager.AccountInfo) []*solana.AccountMeta {
	out := make([]*solana.AccountMeta, len(accounts))
	for i, acc := range accounts {
		out[i] = solana.NewAccountMeta(acc.Key, acc.IsWritable, acc.IsSigner)
	}
	return out
}

func requireAccounts(accounts []*wager.AccountInfo, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("not enough account keys: got %d, want %d", len(accounts), n)
	}
	return nil
}

func processSystem(_ wager.Host, accounts []*wager.AccountInfo, data []byte) error {
	ix, err := system.DecodeInstruction(metasOf(accounts), data)
	if err != nil {
		return err
	}
	switch impl := ix.Impl.(type) {
	case *system.Transfer:
		if err := requireAccounts(accounts, 2); err != nil {
			return err
		}
		from, to := accounts[0], accounts[1]
		amount := *impl.Lamports
		if !from.IsSigner {
			return fmt.Errorf("%w: %s", ErrMissingSignature, from.Key)
		}
		if !from.IsWritable || !to.IsWritable {
			return errors.New("transfer accounts must be writable")
		}
		if !from.Owner.Equals(solana.SystemProgramID) || len(from.Data) != 0 {
			return fmt.Errorf("transfer: from %s must not carry data", from.Key)
		}
		if from.Lamports < amount {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientLamports, from.Key, from.Lamports, amount)
		}
		from.Lamports -= amount
		to.Lamports += amount
		return nil
	case *system.Allocate:
		if err := requireAccounts(accounts, 1); err != nil {
			return err
		}
		acc := accounts[0]
		if err := requireUnused(acc); err != nil {
			return err
		}
		if *impl.Space > maxAccountSize {
			return fmt.Errorf("allocate: %d bytes exceeds the account size limit", *impl.Space)
		}
		acc.Data = make([]byte, *impl.Space)
		return nil
	case *system.Assign:
		if err := requireAccounts(accounts, 1); err != nil {
			return err
		}
		acc := accounts[0]
		if !acc.IsSigner {
			return fmt.Errorf("%w: %s", ErrMissingSignature, acc.Key)
		}
		if !acc.Owner.Equals(solana.SystemProgramID) {
			return fmt.Errorf("%w: %s", ErrAccountInUse, acc.Key)
		}
		acc.Owner = *impl.Owner
		return nil
	default:
		return fmt.Errorf("unsupported system instruction %T", impl)
	}
}

func requireUnused(acc *wager.AccountInfo) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, acc.Key)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%s must be writable", acc.Key)
	}
	if !acc.Owner.Equals(solana.SystemProgramID) || len(acc.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrAccountInUse, acc.Key)
	}
	return nil
}

func processToken(_ wager.Host, accounts []*wager.AccountInfo, data []byte) error {
	ix, err := token.DecodeInstruction(metasOf(accounts), data)
	if err != nil {
		return err
	}
	switch impl := ix.Impl.(type) {
	case *token.Transfer:
		if err := requireAccounts(accounts, 3); err != nil {
			return err
		}
		return tokenTransfer(accounts[0], accounts[1], accounts[2], *impl.Amount)
	case *token.CloseAccount:
		if err := requireAccounts(accounts, 3); err != nil {
			return err
		}
		return tokenClose(accounts[0], accounts[1], accounts[2])
	default:
		return fmt.Errorf("unsupported token instruction %T", impl)
	}
}

func tokenTransfer(source, destination, authority *wager.AccountInfo, amount uint64) error {
	src, err := loadTokenAccount(source)
	if err != nil {
		return err
	}
	dst, err := loadTokenAccount(destination)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s and %s", ErrMintMismatch, source.Key, destination.Key)
	}
	if err := checkAuthority(src, authority); err != nil {
		return err
	}
	if !source.IsWritable || !destination.IsWritable {
		return errors.New("token transfer accounts must be writable")
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, need %d", ErrInsufficientTokens, source.Key, src.Amount, amount)
	}
	if source.Key.Equals(destination.Key) {
		return nil
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := storeTokenAccount(source, src); err != nil {
		return err
	}
	return storeTokenAccount(destination, dst)
}

func tokenClose(account, destination, authority *wager.AccountInfo) error {
	acc, err := loadTokenAccount(account)
	if err != nil {
		return err
	}
	if acc.IsNative == nil && acc.Amount != 0 {
		return fmt.Errorf("%w: %s holds %d", ErrNonZeroBalance, account.Key, acc.Amount)
	}
	closer := acc.Owner
	if acc.CloseAuthority != nil {
		closer = *acc.CloseAuthority
	}
	if !authority.Key.Equals(closer) {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, authority.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, authority.Key)
	}
	if account.Key.Equals(destination.Key) {
		return errors.New("close: destination must differ from the closed account")
	}
	if !account.IsWritable || !destination.IsWritable {
		return errors.New("close accounts must be writable")
	}
	destination.Lamports += account.Lamports
	account.Lamports = 0
	account.Data = nil
	account.Owner = solana.SystemProgramID
	return nil
}

func checkAuthority(acc *token.Account, authority *wager.AccountInfo) error {
	if !authority.Key.Equals(acc.Owner) {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, authority.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, authority.Key)
	}
	return nil
}

func loadTokenAccount(info *wager.AccountInfo) (*token.Account, error) {
	if !info.Owner.Equals(solana.TokenProgramID) || len(info.Data) != TokenAccountSize {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTokenAccount, info.Key)
	}
	out := new(token.Account)
	if err := out.UnmarshalWithDecoder(bin.NewBinDecoder(info.Data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTokenAccount, info.Key, err)
	}
	if out.State != token.Initialized {
		return nil, fmt.Errorf("%w: %s is not initialized", ErrInvalidTokenAccount, info.Key)
	}
	return out, nil
}

func storeTokenAccount(info *wager.AccountInfo, acc *token.Account) error {
	data, err := encodeTokenAccount(acc)
	if err != nil {
		return err
	}
	info.Data = data
	return nil
}

func encodeTokenAccount(acc *token.Account) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := acc.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode token account: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeMint(mint *token.Mint) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := mint.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode mint: %w", err)
	}
	return buf.Bytes(), nil
}

func loadMint(info *wager.AccountInfo) (*token.Mint, error) {
	if !info.Owner.Equals(solana.TokenProgramID) || len(info.Data) != MintSize {
		return nil, fmt.Errorf("%w: %s is not a mint", ErrInvalidTokenAccount, info.Key)
	}
	out := new(token.Mint)
	if err := out.UnmarshalWithDecoder(bin.NewBinDecoder(info.Data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTokenAccount, info.Key, err)
	}
	if !out.IsInitialized {
		return nil, fmt.Errorf("%w: mint %s is not initialized", ErrInvalidTokenAccount, info.Key)
	}
	return out, nil
}

// processAssociatedTokenAccount creates the canonical token account of a
// wallet. Data of [1] selects the idempotent variant.
func processAssociatedTokenAccount(host wager.Host, accounts []*wager.AccountInfo, data []byte) error {
	create := associatedtokenaccount.NewCreateInstructionBuilder()
	if err := create.SetAccounts(metasOf(accounts)); err != nil {
		return err
	}
	idempotent := len(data) > 0 && data[0] == 1
	payer, ata, wallet, mint := accounts[0], accounts[1], accounts[2], accounts[3]

	address, bump, err := solana.FindProgramAddress(
		[][]byte{create.Wallet.Bytes(), solana.TokenProgramID.Bytes(), create.Mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return err
	}
	if !ata.Key.Equals(address) {
		return fmt.Errorf("associated address does not match seed derivation: got %s, want %s", ata.Key, address)
	}
	if ata.Owner.Equals(solana.TokenProgramID) {
		if existing, err := loadTokenAccount(ata); idempotent && err == nil && existing.Owner.Equals(wallet.Key) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAccountInUse, ata.Key)
	}
	if _, err := loadMint(mint); err != nil {
		return err
	}

	required := host.MinimumBalance(TokenAccountSize)
	if ata.Lamports < required {
		ix := system.NewTransferInstruction(required-ata.Lamports, payer.Key, ata.Key).Build()
		if err := host.Invoke(ix); err != nil {
			return err
		}
	}
	proof := wager.AuthorityProof{
		Address: ata.Key,
		Seeds:   [][]byte{wallet.Key.Bytes(), solana.TokenProgramID.Bytes(), mint.Key.Bytes(), {bump}},
	}
	if err := host.Invoke(system.NewAllocateInstruction(TokenAccountSize, ata.Key).Build(), proof); err != nil {
		return err
	}
	if err := host.Invoke(system.NewAssignInstruction(solana.TokenProgramID, ata.Key).Build(), proof); err != nil {
		return err
	}
	return storeTokenAccount(ata, &token.Account{Mint: mint.Key, Owner: wallet.Key, State: token.Initialized})
}

func processComputeBudget(_ wager.Host, accounts []*wager.AccountInfo, data []byte) error {
	_, err := computebudget.DecodeInstruction(metasOf(accounts), data)
	return err
}
