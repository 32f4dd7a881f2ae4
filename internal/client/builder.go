package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/wager"
)

// Builder produces program instructions with the account order the
// processor resolves them in.
type Builder struct {
	ProgramID solana.PublicKey
	Admin     solana.PublicKey
}

func NewBuilder(programID, admin solana.PublicKey) *Builder {
	return &Builder{ProgramID: programID, Admin: admin}
}

func (b *Builder) instruction(ix wager.Instruction, metas solana.AccountMetaSlice) (solana.Instruction, error) {
	data, err := wager.EncodeInstruction(ix)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(b.ProgramID, metas, data), nil
}

func (b *Builder) RegistryAddress() (solana.PublicKey, error) {
	pk, _, err := wager.DeriveRegistryPDA(b.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive registry: %w", err)
	}
	return pk, nil
}

func (b *Builder) WhitelistAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := wager.DeriveWhitelistPDA(b.ProgramID, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive whitelist for %s: %w", mint, err)
	}
	return pk, nil
}

func (b *Builder) UserAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := wager.DeriveUserPDA(b.ProgramID, owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive user for %s: %w", owner, err)
	}
	return pk, nil
}

func (b *Builder) GameAddress(initiator solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := wager.DeriveGamePDA(b.ProgramID, initiator)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive game for %s: %w", initiator, err)
	}
	return pk, nil
}

func (b *Builder) TypePriceAddress(tier uint64) (solana.PublicKey, error) {
	pk, _, err := wager.DeriveTypePricePDA(b.ProgramID, tier)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive type price %d: %w", tier, err)
	}
	return pk, nil
}

func tokenAccount(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account of %s for %s: %w", wallet, mint, err)
	}
	return pk, nil
}

func payerMeta(payer solana.PublicKey) *solana.AccountMeta {
	return solana.Meta(payer).WRITE().SIGNER()
}

func (b *Builder) Init(payer, manager, mint, feed solana.PublicKey, stable bool) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	whitelist, err := b.WhitelistAddress(mint)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.Init{Manager: manager, SupportedToken: mint, Feed: feed, IsStablecoin: stable}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry).WRITE(),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(whitelist).WRITE(),
	})
}

// registryUpdate builds the setters that only touch the registry.
func (b *Builder) registryUpdate(payer solana.PublicKey, ix wager.Instruction) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	return b.instruction(ix, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry).WRITE(),
	})
}

func (b *Builder) ChangeCloseDelay(payer solana.PublicKey, delay uint64) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.ChangeCloseDelay{NewDelay: delay})
}

func (b *Builder) LockBets(payer solana.PublicKey) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.LockBets{})
}

func (b *Builder) UnlockBets(payer solana.PublicKey) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.UnlockBets{})
}

func (b *Builder) NewManager(payer, manager solana.PublicKey) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.NewManager{Manager: manager})
}

func (b *Builder) SetGlobalFee(payer solana.PublicKey, fee uint64) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.SetGlobalFee{Fee: fee})
}

func (b *Builder) SetAdminFee(payer solana.PublicKey, fee uint64) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.SetAdminFee{Fee: fee})
}

func (b *Builder) SetWinnerFee(payer solana.PublicKey, fee uint64) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.SetWinnerFee{Fee: fee})
}

func (b *Builder) SetTransactionFee(payer solana.PublicKey, fee uint64) (solana.Instruction, error) {
	return b.registryUpdate(payer, &wager.SetTransactionFee{Fee: fee})
}

func (b *Builder) AddSupportedToken(payer, mint, feed solana.PublicKey, stable bool) (solana.Instruction, error) {
	whitelist, err := b.WhitelistAddress(mint)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.AddSupportedToken{SupportedToken: mint, Feed: feed, IsStablecoin: stable}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(whitelist).WRITE(),
	})
}

func (b *Builder) SetTypePrice(payer solana.PublicKey, tier, price uint64) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	typePrice, err := b.TypePriceAddress(tier)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.SetTypePrice{TypePrice: tier, Price: price}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(registry),
		solana.Meta(typePrice).WRITE(),
	})
}

func (b *Builder) Registration(payer, referrer solana.PublicKey, password string) (solana.Instruction, error) {
	user, err := b.UserAddress(payer)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.Registration{Referrer: referrer, Password: password}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(user).WRITE(),
	})
}

func (b *Builder) AddBot(payer, bot solana.PublicKey) (solana.Instruction, error) {
	user, err := b.UserAddress(bot)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.AddBot{Bot: bot}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(user).WRITE(),
	})
}

// Bet describes the stake side of NewGame and JoinGame.
type Bet struct {
	Payer         solana.PublicKey
	Mint          solana.PublicKey
	OracleProgram solana.PublicKey
	Feed          solana.PublicKey
	TypePrice     uint64
	SupportBots   bool
}

func (b *Builder) betAccounts(bet Bet, game solana.PublicKey, master *solana.PublicKey) (solana.AccountMetaSlice, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	whitelist, err := b.WhitelistAddress(bet.Mint)
	if err != nil {
		return nil, err
	}
	user, err := b.UserAddress(bet.Payer)
	if err != nil {
		return nil, err
	}
	source, err := tokenAccount(bet.Payer, bet.Mint)
	if err != nil {
		return nil, err
	}
	escrow, err := wager.EscrowAddress(game, bet.Mint)
	if err != nil {
		return nil, err
	}
	typePrice, err := b.TypePriceAddress(bet.TypePrice)
	if err != nil {
		return nil, err
	}

	metas := solana.AccountMetaSlice{
		payerMeta(bet.Payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(whitelist),
		solana.Meta(user).WRITE(),
	}
	if master != nil {
		masterUser, err := b.UserAddress(*master)
		if err != nil {
			return nil, err
		}
		metas = append(metas, solana.Meta(masterUser))
	}
	return append(metas,
		solana.Meta(game).WRITE(),
		solana.Meta(bet.OracleProgram),
		solana.Meta(bet.Feed),
		solana.Meta(source).WRITE(),
		solana.Meta(escrow).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(bet.Mint),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(typePrice),
	), nil
}

func (b *Builder) NewGame(bet Bet) (solana.Instruction, error) {
	game, err := b.GameAddress(bet.Payer)
	if err != nil {
		return nil, err
	}
	metas, err := b.betAccounts(bet, game, nil)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.NewGame{TypePrice: bet.TypePrice, SupportBot: bet.SupportBots}, metas)
}

func (b *Builder) JoinGame(bet Bet, master solana.PublicKey) (solana.Instruction, error) {
	game, err := b.GameAddress(master)
	if err != nil {
		return nil, err
	}
	metas, err := b.betAccounts(bet, game, &master)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.JoinGame{TypePrice: bet.TypePrice, SupportBot: bet.SupportBots, UserMaster: master}, metas)
}

func (b *Builder) ForcedClose(payer, user, mint solana.PublicKey) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	game, err := b.GameAddress(user)
	if err != nil {
		return nil, err
	}
	profile, err := b.UserAddress(user)
	if err != nil {
		return nil, err
	}
	escrow, err := wager.EscrowAddress(game, mint)
	if err != nil {
		return nil, err
	}
	refund, err := tokenAccount(user, mint)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.ForcedClose{User: user}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry),
		solana.Meta(game).WRITE(),
		solana.Meta(profile).WRITE(),
		solana.Meta(user).WRITE(),
		solana.Meta(mint),
		solana.Meta(escrow).WRITE(),
		solana.Meta(refund).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SysVarRentPubkey),
	})
}

func (b *Builder) ManuallyClose(payer, mint solana.PublicKey) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	game, err := b.GameAddress(payer)
	if err != nil {
		return nil, err
	}
	profile, err := b.UserAddress(payer)
	if err != nil {
		return nil, err
	}
	escrow, err := wager.EscrowAddress(game, mint)
	if err != nil {
		return nil, err
	}
	refund, err := tokenAccount(payer, mint)
	if err != nil {
		return nil, err
	}
	adminAccount, err := tokenAccount(b.Admin, mint)
	if err != nil {
		return nil, err
	}
	return b.instruction(&wager.ManuallyClose{}, solana.AccountMetaSlice{
		payerMeta(payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry),
		solana.Meta(game).WRITE(),
		solana.Meta(profile).WRITE(),
		solana.Meta(mint),
		solana.Meta(escrow).WRITE(),
		solana.Meta(refund).WRITE(),
		solana.Meta(b.Admin),
		solana.Meta(adminAccount).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SysVarRentPubkey),
	})
}

// Settlement names every party of a Close. Referrers are the zero key when
// the player registered without one.
type Settlement struct {
	Payer          solana.PublicKey
	User           solana.PublicKey
	Opponent       solana.PublicKey
	Winner         solana.PublicKey
	TypePrice      uint64
	Mint1          solana.PublicKey
	Mint2          solana.PublicKey
	WinnerReferrer solana.PublicKey
	LoserReferrer  solana.PublicKey
}

func (b *Builder) referrerMetas(referrer, mint solana.PublicKey) (*solana.AccountMeta, *solana.AccountMeta, error) {
	if referrer.IsZero() {
		return solana.Meta(solana.PublicKey{}), solana.Meta(solana.PublicKey{}), nil
	}
	ata, err := tokenAccount(referrer, mint)
	if err != nil {
		return nil, nil, err
	}
	return solana.Meta(referrer), solana.Meta(ata).WRITE(), nil
}

func (b *Builder) Close(s Settlement) (solana.Instruction, error) {
	registry, err := b.RegistryAddress()
	if err != nil {
		return nil, err
	}
	game, err := b.GameAddress(s.User)
	if err != nil {
		return nil, err
	}
	gamer1, err := b.UserAddress(s.User)
	if err != nil {
		return nil, err
	}
	gamer2, err := b.UserAddress(s.Opponent)
	if err != nil {
		return nil, err
	}
	escrow1, err := wager.EscrowAddress(game, s.Mint1)
	if err != nil {
		return nil, err
	}
	escrow2, err := wager.EscrowAddress(game, s.Mint2)
	if err != nil {
		return nil, err
	}
	winner1, err := tokenAccount(s.Winner, s.Mint1)
	if err != nil {
		return nil, err
	}
	winner2, err := tokenAccount(s.Winner, s.Mint2)
	if err != nil {
		return nil, err
	}
	admin1, err := tokenAccount(b.Admin, s.Mint1)
	if err != nil {
		return nil, err
	}
	winnerRef, winnerRefAccount, err := b.referrerMetas(s.WinnerReferrer, s.Mint1)
	if err != nil {
		return nil, err
	}
	loserRef, loserRefAccount, err := b.referrerMetas(s.LoserReferrer, s.Mint1)
	if err != nil {
		return nil, err
	}

	return b.instruction(&wager.Close{User: s.User, WinnerAddress: s.Winner, TypePrice: s.TypePrice}, solana.AccountMetaSlice{
		payerMeta(s.Payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(registry),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(game).WRITE(),
		solana.Meta(gamer1).WRITE(),
		solana.Meta(gamer2).WRITE(),
		solana.Meta(s.Winner),
		solana.Meta(s.Mint1),
		solana.Meta(escrow1).WRITE(),
		solana.Meta(winner1).WRITE(),
		solana.Meta(b.Admin),
		solana.Meta(admin1).WRITE(),
		winnerRef,
		winnerRefAccount,
		loserRef,
		loserRefAccount,
		solana.Meta(s.Mint2),
		solana.Meta(escrow2).WRITE(),
		solana.Meta(winner2).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
	})
}
