package wager

import (
	"github.com/gagliardetto/solana-go"
)

// bettor holds the accounts and records shared by opening and joining a
// wager.
type bettor struct {
	payer         *AccountInfo
	profileInfo   *AccountInfo
	profile       *User
	registry      *Registry
	mint          *AccountInfo
	oracleProgram *AccountInfo
	feed          *AccountInfo
	price         uint64
}

// admit applies the preconditions every bettor must meet and returns the
// stake they owe in token units.
func (p *Processor) admit(host Host, b *bettor, registryInfo, whitelistInfo, tierInfo *AccountInfo) (uint64, error) {
	profile, err := p.loadProfile(b.profileInfo)
	if err != nil {
		return 0, err
	}
	b.profile = profile
	if err := require(profile.Address.Equals(b.payer.Key) || profile.IsBot, "register first"); err != nil {
		return 0, err
	}
	if err := require(!profile.InGame || profile.IsBot, "already in game"); err != nil {
		return 0, err
	}

	b.registry = new(Registry)
	if err := p.loadRecord(registryInfo, RegistrySize, b.registry); err != nil {
		return 0, err
	}
	if err := require(b.registry.AcceptBets, "bets locked"); err != nil {
		return 0, err
	}

	if err := require(whitelistInfo.Owner.Equals(p.programID), "Token is not supported"); err != nil {
		return 0, err
	}
	entry := new(Whitelist)
	if err := p.loadRecord(whitelistInfo, WhitelistSize, entry); err != nil {
		return 0, err
	}
	if err := require(entry.Mint.Equals(b.mint.Key), "Token is not supported"); err != nil {
		return 0, err
	}
	if err := require(entry.Feed.Equals(b.feed.Key), "Wrong feed for this token"); err != nil {
		return 0, err
	}

	if err := require(tierInfo.Owner.Equals(p.programID), "unknown game type"); err != nil {
		return 0, err
	}
	tier := new(TypePrice)
	if err := p.loadRecord(tierInfo, TypePriceSize, tier); err != nil {
		return 0, err
	}
	b.price = tier.Price

	quote, err := p.quote(host, b.oracleProgram, b.feed)
	if err != nil {
		return 0, err
	}
	stake, err := stakeFor(tier.Price, quote)
	if err != nil {
		return 0, mathError(err)
	}
	return stake, nil
}

func (p *Processor) newGame(host Host, accounts []*AccountInfo, ix *NewGame) error {
	var (
		payer, systemProgram, registry, rent, whitelist, user, game *AccountInfo
		oracleProgram, feed, source, escrow, tokenProgram, mint     *AccountInfo
		ataProgram, tier                                            *AccountInfo
		gamePDA                                                     Derived
	)
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Derived(nil, p.registryAddress),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("supported token", &whitelist).Derived(nil, func() (Derived, error) { return p.whitelistAddress(mint.Key) }),
		account("user", &user).Writable().Derived(nil, func() (Derived, error) { return p.userAddress(payer.Key) }),
		account("game", &game).Writable().Derived(&gamePDA, func() (Derived, error) { return p.gameAddress(payer.Key) }),
		account("oracle program", &oracleProgram),
		account("feed", &feed),
		account("source", &source).Writable().Expect(associated(&payer, &mint)),
		account("escrow", &escrow).Writable().Expect(associated(&game, &mint)),
		account("token program", &tokenProgram).Is(solana.TokenProgramID),
		account("mint", &mint),
		account("associated token program", &ataProgram).Is(solana.SPLAssociatedTokenAccountProgramID),
		account("type price", &tier).Derived(nil, func() (Derived, error) { return p.typePriceAddress(ix.TypePrice) }),
	)
	if err != nil {
		return err
	}

	b := &bettor{payer: payer, profileInfo: user, mint: mint, oracleProgram: oracleProgram, feed: feed}
	stake, err := p.admit(host, b, registry, whitelist, tier)
	if err != nil {
		return err
	}
	if game.Owner.Equals(p.programID) {
		previous := new(Game)
		if err := p.loadRecord(game, GameSize, previous); err != nil {
			return err
		}
		if err := require(previous.Closed, "previous game is not closed"); err != nil {
			return err
		}
	}
	now, err := unixNow(host)
	if err != nil {
		return err
	}

	b.profile.SupportBots = ix.SupportBot
	b.profile.InGame = true
	if err := storeRecord(user, b.profile); err != nil {
		return err
	}

	if err := ensureTokenAccount(host, payer, escrow, game, mint); err != nil {
		return err
	}
	if err := transferTokens(host, source, escrow, payer, stake); err != nil {
		return err
	}
	if _, err := p.ensureProgramAccount(host, payer, game, gamePDA, GameSize); err != nil {
		return err
	}
	return storeRecord(game, &Game{
		Gamer1:    payer.Key,
		Token1:    mint.Key,
		Amount1:   stake,
		LatestBet: now,
		TypePrice: b.price,
	})
}

func (p *Processor) joinGame(host Host, accounts []*AccountInfo, ix *JoinGame) error {
	var (
		payer, systemProgram, registry, rent, whitelist, user, master *AccountInfo
		game, oracleProgram, feed, source, escrow, tokenProgram, mint *AccountInfo
		ataProgram, tier                                              *AccountInfo
	)
	err := resolve(accounts,
		account("payer", &payer).Signer().Writable(),
		account("system program", &systemProgram).Is(solana.SystemProgramID),
		account("registry", &registry).Derived(nil, p.registryAddress),
		account("rent", &rent).Is(solana.SysVarRentPubkey),
		account("supported token", &whitelist).Derived(nil, func() (Derived, error) { return p.whitelistAddress(mint.Key) }),
		account("user", &user).Writable().Derived(nil, func() (Derived, error) { return p.userAddress(payer.Key) }),
		account("user master", &master).Derived(nil, func() (Derived, error) { return p.userAddress(ix.UserMaster) }),
		account("game", &game).Writable().Derived(nil, func() (Derived, error) { return p.gameAddress(ix.UserMaster) }),
		account("oracle program", &oracleProgram),
		account("feed", &feed),
		account("source", &source).Writable().Expect(associated(&payer, &mint)),
		account("escrow", &escrow).Writable().Expect(associated(&game, &mint)),
		account("token program", &tokenProgram).Is(solana.TokenProgramID),
		account("mint", &mint),
		account("associated token program", &ataProgram).Is(solana.SPLAssociatedTokenAccountProgramID),
		account("type price", &tier).Derived(nil, func() (Derived, error) { return p.typePriceAddress(ix.TypePrice) }),
	)
	if err != nil {
		return err
	}
	if err := require(!payer.Key.Equals(ix.UserMaster), "double registration"); err != nil {
		return err
	}

	b := &bettor{payer: payer, profileInfo: user, mint: mint, oracleProgram: oracleProgram, feed: feed}
	stake, err := p.admit(host, b, registry, whitelist, tier)
	if err != nil {
		return err
	}
	masterProfile, err := p.loadProfile(master)
	if err != nil {
		return err
	}
	if err := require(game.Owner.Equals(p.programID), "Game not found"); err != nil {
		return err
	}
	state := new(Game)
	if err := p.loadRecord(game, GameSize, state); err != nil {
		return err
	}
	if err := require(!state.Closed, "Game already closed"); err != nil {
		return err
	}
	if err := require(state.Status() == StatusOpen, "Game started already"); err != nil {
		return err
	}
	if err := require(b.price == state.TypePrice, "wrong game type"); err != nil {
		return err
	}
	if !ix.SupportBot {
		if err := require(!masterProfile.IsBot, "User doesn't support bots"); err != nil {
			return err
		}
	}
	if !masterProfile.SupportBots {
		if err := require(!b.profile.IsBot, "User doesn't support bots"); err != nil {
			return err
		}
	}
	now, err := unixNow(host)
	if err != nil {
		return err
	}

	b.profile.SupportBots = ix.SupportBot
	b.profile.InGame = true
	if err := storeRecord(user, b.profile); err != nil {
		return err
	}

	if err := ensureTokenAccount(host, payer, escrow, game, mint); err != nil {
		return err
	}
	if err := transferTokens(host, source, escrow, payer, stake); err != nil {
		return err
	}

	state.Gamer2 = payer.Key
	state.Token2 = mint.Key
	state.Amount2 = stake
	state.LatestBet = now
	return storeRecord(game, state)
}
