package wager

import (
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/fixedpoint"
)

// openGame loads a wager that must still be waiting for an opponent.
func (p *Processor) openGame(game *AccountInfo) (*Game, error) {
	state := new(Game)
	if err := p.loadRecord(game, GameSize, state); err != nil {
		return nil, err
	}
	if err := require(!state.Closed, "Game already closed"); err != nil {
		return nil, err
	}
	if err := require(state.Gamer2.IsZero(), "Game started already"); err != nil {
		return nil, err
	}
	return state, nil
}

// releaseEscrow pays out the escrow and closes it into rentTo. Tokens held
// beyond the listed payouts go to the last recipient so the close always
// finds an empty account. Every transfer and the close are signed by the
// wager PDA.
func releaseEscrow(host Host, escrow, game, rentTo *AccountInfo, proof AuthorityProof, payouts ...payout) error {
	held, err := tokenAmount(escrow)
	if err != nil {
		return err
	}
	for _, out := range payouts {
		if held, err = fixedpoint.CheckedSub(held, out.amount); err != nil {
			return mathError(err)
		}
	}
	if n := len(payouts); n > 0 {
		payouts[n-1].amount += held
	}
	for _, out := range payouts {
		if err := transferTokens(host, escrow, out.to, game, out.amount, proof); err != nil {
			return err
		}
	}
	return closeTokenAccount(host, escrow, rentTo, game, proof)
}

type payout struct {
	to     *AccountInfo
	amount uint64
}

func (p *Processor) forcedClose(host Host, accounts []*AccountInfo, ix *ForcedClose) error {
	var (
		payer, systemProgram, registry, game, user, wallet *AccountInfo
		mint, escrow, refund, tokenProgram, ataProgram     *AccountInfo
		rent                                               *AccountInfo
		gamePDA                                            Derived
	)
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Derived(nil, p.registryAddress),
		account("game", &game).Writable().Derived(&gamePDA, func() (Derived, error) { return p.gameAddress(ix.User) }),
		account("user", &user).Writable().Derived(nil, func() (Derived, error) { return p.userAddress(ix.User) }),
		account("user wallet", &wallet).Writable().Is(ix.User),
		account("mint", &mint),
		account("escrow", &escrow).Writable().Expect(associated(&game, &mint)),
		account("user token account", &refund).Writable().Expect(associated(&wallet, &mint)),
		account("token program", &tokenProgram).Is(solana.TokenProgramID),
		account("associated token program", &ataProgram).Is(solana.SPLAssociatedTokenAccountProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
	)
	if err != nil {
		return err
	}
	settings := new(Registry)
	if err := p.loadRecord(registry, RegistrySize, settings); err != nil {
		return err
	}
	if err := requireManager(payer, settings); err != nil {
		return err
	}
	state, err := p.openGame(game)
	if err != nil {
		return err
	}
	if err := expectKey("mint", mint, matches(state.Token1)); err != nil {
		return err
	}
	profile := new(User)
	if err := p.loadRecord(user, UserSize, profile); err != nil {
		return err
	}

	state.Closed = true
	if err := storeRecord(game, state); err != nil {
		return err
	}
	profile.InGame = false
	if err := storeRecord(user, profile); err != nil {
		return err
	}

	if err := ensureTokenAccount(host, payer, refund, wallet, mint); err != nil {
		return err
	}
	return releaseEscrow(host, escrow, game, wallet, gamePDA.proof(), payout{to: refund, amount: state.Amount1})
}

func (p *Processor) manuallyClose(host Host, accounts []*AccountInfo) error {
	var (
		payer, systemProgram, registry, game, user, mint *AccountInfo
		escrow, refund, admin, adminAccount              *AccountInfo
		tokenProgram, ataProgram, rent                   *AccountInfo
		gamePDA                                          Derived
	)
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Derived(nil, p.registryAddress),
		account("game", &game).Writable().Derived(&gamePDA, func() (Derived, error) { return p.gameAddress(payer.Key) }),
		account("user", &user).Writable().Derived(nil, func() (Derived, error) { return p.userAddress(payer.Key) }),
		account("mint", &mint),
		account("escrow", &escrow).Writable().Expect(associated(&game, &mint)),
		account("user token account", &refund).Writable().Expect(associated(&payer, &mint)),
		account("admin", &admin).Is(p.admin),
		account("admin token account", &adminAccount).Writable().Expect(associated(&admin, &mint)),
		account("token program", &tokenProgram).Is(solana.TokenProgramID),
		account("associated token program", &ataProgram).Is(solana.SPLAssociatedTokenAccountProgramID),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
	)
	if err != nil {
		return err
	}
	settings := new(Registry)
	if err := p.loadRecord(registry, RegistrySize, settings); err != nil {
		return err
	}
	if err := require(game.Owner.Equals(p.programID), "Sender is not in the game"); err != nil {
		return err
	}
	state, err := p.openGame(game)
	if err != nil {
		return err
	}
	if err := require(state.Gamer1.Equals(payer.Key), "Sender is not in the game"); err != nil {
		return err
	}
	if err := expectKey("mint", mint, matches(state.Token1)); err != nil {
		return err
	}
	now, err := unixNow(host)
	if err != nil {
		return err
	}
	deadline, err := fixedpoint.CheckedAdd(state.LatestBet, settings.CloseDelay)
	if err != nil {
		return mathError(err)
	}
	if err := require(now >= deadline, "Please wait"); err != nil {
		return err
	}
	fee, err := fixedpoint.Percent(state.Amount1, ManualCloseFeePercent)
	if err != nil {
		return mathError(err)
	}
	profile := new(User)
	if err := p.loadRecord(user, UserSize, profile); err != nil {
		return err
	}

	state.Closed = true
	if err := storeRecord(game, state); err != nil {
		return err
	}
	profile.InGame = false
	if err := storeRecord(user, profile); err != nil {
		return err
	}

	if fee > 0 {
		if err := ensureTokenAccount(host, payer, adminAccount, admin, mint); err != nil {
			return err
		}
	}
	if err := ensureTokenAccount(host, payer, refund, payer, mint); err != nil {
		return err
	}
	return releaseEscrow(host, escrow, game, payer, gamePDA.proof(),
		payout{to: adminAccount, amount: fee},
		payout{to: refund, amount: state.Amount1 - fee},
	)
}
