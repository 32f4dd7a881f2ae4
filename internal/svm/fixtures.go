package svm

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/wager/backend/internal/oracle"
	"github.com/coldbell/wager/backend/internal/wager"
)

// Airdrop credits lamports to key, creating a system account if needed.
func (b *Bank) Airdrop(key solana.PublicKey, lamports uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[key]
	acc.Lamports += lamports
	b.accounts[key] = acc
}

// CreateMint installs an initialized mint and returns its address.
func (b *Bank) CreateMint(decimals uint8, authority solana.PublicKey) (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	data, err := encodeMint(&token.Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true})
	if err != nil {
		return solana.PublicKey{}, err
	}
	b.SetAccount(key.PublicKey(), Account{Owner: solana.TokenProgramID, Lamports: MinimumBalance(MintSize), Data: data})
	return key.PublicKey(), nil
}

// MintTo credits amount to the associated token account of wallet, creating
// it when missing, and returns the token account address.
func (b *Bank) MintTo(mint, wallet solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mintAcc, ok := b.accounts[mint]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("mint %s does not exist", mint)
	}
	mintInfo := &wager.AccountInfo{Key: mint, Owner: mintAcc.Owner, Data: mintAcc.Data}
	state, err := loadMint(mintInfo)
	if err != nil {
		return solana.PublicKey{}, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	holder := &token.Account{Mint: mint, Owner: wallet, State: token.Initialized}
	lamports := MinimumBalance(TokenAccountSize)
	if existing, ok := b.accounts[ata]; ok && existing.Owner.Equals(solana.TokenProgramID) {
		holder, err = loadTokenAccount(&wager.AccountInfo{Key: ata, Owner: existing.Owner, Data: existing.Data})
		if err != nil {
			return solana.PublicKey{}, err
		}
		lamports = existing.Lamports
	}
	holder.Amount += amount
	state.Supply += amount

	data, err := encodeTokenAccount(holder)
	if err != nil {
		return solana.PublicKey{}, err
	}
	mintData, err := encodeMint(state)
	if err != nil {
		return solana.PublicKey{}, err
	}
	b.setAccountLocked(ata, Account{Owner: solana.TokenProgramID, Lamports: lamports, Data: data})
	mintAcc.Data = mintData
	b.setAccountLocked(mint, mintAcc)
	return ata, nil
}

// TokenBalance returns the amount held by a token account, or zero when the
// account does not exist.
func (b *Bank) TokenBalance(account solana.PublicKey) (uint64, error) {
	acc, ok := b.Account(account)
	if !ok {
		return 0, nil
	}
	holder, err := loadTokenAccount(&wager.AccountInfo{Key: account, Owner: acc.Owner, Data: acc.Data})
	if err != nil {
		return 0, err
	}
	return holder.Amount, nil
}

// Balance returns the lamports held by key.
func (b *Bank) Balance(key solana.PublicKey) uint64 {
	acc, _ := b.Account(key)
	return acc.Lamports
}

// SetRoundFeed installs a Chainlink store feed reporting answer.
func (b *Bank) SetRoundFeed(feed solana.PublicKey, answer *big.Int, decimals uint8) error {
	data, err := oracle.EncodeRound(oracle.Round{Answer: answer, Decimals: decimals, Timestamp: b.UnixTime()})
	if err != nil {
		return err
	}
	b.SetAccount(feed, Account{Owner: oracle.ChainlinkStoreProgramID, Lamports: MinimumBalance(oracle.RoundSize), Data: data})
	return nil
}

// SetPriceUpdateFeed installs a verified Pyth price update account.
func (b *Bank) SetPriceUpdateFeed(feed solana.PublicKey, price int64, exponent int32) {
	data := oracle.EncodePriceUpdate(oracle.PriceUpdate{Price: price, Exponent: exponent, PublishTime: b.UnixTime()})
	b.SetAccount(feed, Account{Owner: oracle.PythPushOracleProgramID, Lamports: MinimumBalance(uint64(len(data))), Data: data})
}
