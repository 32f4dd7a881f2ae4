package wager

import (
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/fixedpoint"
)

// settleAccounts is the account set of a settlement. Referrer slots carry
// the zero key when the player has no referrer.
type settleAccounts struct {
	payer, systemProgram, registry, rent   *AccountInfo
	game, gamer1, gamer2, winner           *AccountInfo
	mint1, escrow1, winnerAccount1         *AccountInfo
	admin, adminAccount1                   *AccountInfo
	winnerReferrer, winnerReferrerAccount1 *AccountInfo
	loserReferrer, loserReferrerAccount1   *AccountInfo
	mint2, escrow2, winnerAccount2         *AccountInfo
	tokenProgram, ataProgram               *AccountInfo
}

func (p *Processor) settle(host Host, accounts []*AccountInfo, ix *Close) error {
	var a settleAccounts
	var gamePDA Derived
	err := resolve(accounts,
		account("payer", &a.payer).Signer().Writable(),
		account("system program", &a.systemProgram).Is(solana.SystemProgramID),
		account("registry", &a.registry).Derived(nil, p.registryAddress),
		account("rent", &a.rent).Is(solana.SysVarRentPubkey),
		account("game", &a.game).Writable().Derived(&gamePDA, func() (Derived, error) { return p.gameAddress(ix.User) }),
		account("gamer1", &a.gamer1).Writable().Derived(nil, func() (Derived, error) { return p.userAddress(ix.User) }),
		account("gamer2", &a.gamer2).Writable(),
		account("winner", &a.winner).Is(ix.WinnerAddress),
		account("mint1", &a.mint1),
		account("escrow1", &a.escrow1).Writable().Expect(associated(&a.game, &a.mint1)),
		account("winner token account1", &a.winnerAccount1).Writable().Expect(associated(&a.winner, &a.mint1)),
		account("admin", &a.admin).Is(p.admin),
		account("admin token account1", &a.adminAccount1).Writable().Expect(associated(&a.admin, &a.mint1)),
		account("winner referrer", &a.winnerReferrer),
		account("winner referrer token account1", &a.winnerReferrerAccount1),
		account("loser referrer", &a.loserReferrer),
		account("loser referrer token account1", &a.loserReferrerAccount1),
		account("mint2", &a.mint2),
		account("escrow2", &a.escrow2).Writable().Expect(associated(&a.game, &a.mint2)),
		account("winner token account2", &a.winnerAccount2).Writable().Expect(associated(&a.winner, &a.mint2)),
		account("token program", &a.tokenProgram).Is(solana.TokenProgramID),
		account("associated token program", &a.ataProgram).Is(solana.SPLAssociatedTokenAccountProgramID),
	)
	if err != nil {
		return err
	}

	settings := new(Registry)
	if err := p.loadRecord(a.registry, RegistrySize, settings); err != nil {
		return err
	}
	if err := requireManager(a.payer, settings); err != nil {
		return err
	}
	state := new(Game)
	if err := p.loadRecord(a.game, GameSize, state); err != nil {
		return err
	}
	if err := require(!state.Closed, "Game already closed"); err != nil {
		return err
	}
	if err := require(state.Status() == StatusMatched, "Game not started"); err != nil {
		return err
	}
	if err := require(ix.WinnerAddress.Equals(state.Gamer1) || ix.WinnerAddress.Equals(state.Gamer2), "invalid winner"); err != nil {
		return err
	}
	if err := require(ix.TypePrice == state.TypePrice, "wrong game type"); err != nil {
		return err
	}
	if err := expectKey("gamer2", a.gamer2, func() (solana.PublicKey, error) {
		key, _, err := DeriveUserPDA(p.programID, state.Gamer2)
		return key, err
	}); err != nil {
		return err
	}
	if err := expectKey("mint1", a.mint1, matches(state.Token1)); err != nil {
		return err
	}
	if err := expectKey("mint2", a.mint2, matches(state.Token2)); err != nil {
		return err
	}

	profile1 := new(User)
	if err := p.loadRecord(a.gamer1, UserSize, profile1); err != nil {
		return err
	}
	profile2 := new(User)
	if err := p.loadRecord(a.gamer2, UserSize, profile2); err != nil {
		return err
	}
	winnerProfile, loserProfile := profile1, profile2
	if ix.WinnerAddress.Equals(state.Gamer2) {
		winnerProfile, loserProfile = profile2, profile1
	}
	if err := checkReferrer("winner referrer", a.winnerReferrer, a.winnerReferrerAccount1, a.mint1, winnerProfile); err != nil {
		return err
	}
	if err := checkReferrer("loser referrer", a.loserReferrer, a.loserReferrerAccount1, a.mint1, loserProfile); err != nil {
		return err
	}

	fee, err := settlementFee(state.Amount1, settings)
	if err != nil {
		return mathError(err)
	}
	leg1, err := SplitFee(state.Amount1, fee, settings, winnerProfile.HasReferrer(), loserProfile.HasReferrer())
	if err != nil {
		return mathError(err)
	}

	for _, profile := range []*User{profile1, profile2} {
		profile.InGame = false
		if profile.Turnover, err = fixedpoint.CheckedAdd(profile.Turnover, state.TypePrice); err != nil {
			return mathError(err)
		}
	}
	if err := storeRecord(a.gamer1, profile1); err != nil {
		return err
	}
	if err := storeRecord(a.gamer2, profile2); err != nil {
		return err
	}
	state.Closed = true
	if err := storeRecord(a.game, state); err != nil {
		return err
	}

	proof := gamePDA.proof()
	legs := []struct {
		escrow, to, wallet, mint *AccountInfo
		amount                   uint64
	}{
		{a.escrow1, a.winnerAccount1, a.winner, a.mint1, leg1.Winner},
		{a.escrow1, a.adminAccount1, a.admin, a.mint1, leg1.Admin},
		{a.escrow1, a.winnerReferrerAccount1, a.winnerReferrer, a.mint1, leg1.WinnerReferrer},
		{a.escrow1, a.loserReferrerAccount1, a.loserReferrer, a.mint1, leg1.LoserReferrer},
		{a.escrow2, a.winnerAccount2, a.winner, a.mint2, state.Amount2},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := ensureTokenAccount(host, a.payer, leg.to, leg.wallet, leg.mint); err != nil {
			return err
		}
		if err := transferTokens(host, leg.escrow, leg.to, a.game, leg.amount, proof); err != nil {
			return err
		}
	}
	return nil
}

// checkReferrer pins a referrer slot pair to the profile's referrer and its
// token account, or to the zero key when there is none.
func checkReferrer(role string, wallet, tokenAccount, mint *AccountInfo, profile *User) error {
	if !profile.HasReferrer() {
		if err := expectKey(role, wallet, matches(solana.PublicKey{})); err != nil {
			return err
		}
		return expectKey(role+" token account1", tokenAccount, matches(solana.PublicKey{}))
	}
	if err := expectKey(role, wallet, matches(profile.Referrer)); err != nil {
		return err
	}
	if err := expectKey(role+" token account1", tokenAccount, associated(&wallet, &mint)); err != nil {
		return err
	}
	if !tokenAccount.IsWritable {
		return invalidAccount(role+" token account1", "%s must be writable", tokenAccount.Key)
	}
	return nil
}
