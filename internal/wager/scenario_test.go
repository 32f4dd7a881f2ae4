package wager_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/wager"
)

func requireFailure(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, wager.ErrAssertion)
	assert.ErrorContains(t, err, message)
}

func TestInitSetsDefaults(t *testing.T) {
	h := newHarness(t)
	reg := h.registry()
	assert.Equal(t, wager.DefaultReferrerFee, reg.ReferrerFee)
	assert.Equal(t, wager.DefaultAdminFee, reg.AdminFee)
	assert.Equal(t, wager.DefaultGlobalFee, reg.GlobalFee)
	assert.Equal(t, wager.DefaultCloseDelay, reg.CloseDelay)
	assert.True(t, reg.AcceptBets)
	assert.Equal(t, h.manager.PublicKey(), reg.Manager)

	err := h.as(h.admin)(h.builder.Init(h.admin.PublicKey(), h.manager.PublicKey(), h.mint, h.feed, false))
	requireFailure(t, err, "already initialized")
}

func TestAdminAndManagerGates(t *testing.T) {
	h := newHarness(t)
	stranger := newKey(t, h.bank)

	err := h.as(stranger)(h.builder.ChangeCloseDelay(stranger.PublicKey(), 1))
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)
	err = h.as(h.admin)(h.builder.SetGlobalFee(h.admin.PublicKey(), 5))
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)
	err = h.as(h.manager)(h.builder.SetAdminFee(h.manager.PublicKey(), 101))
	requireFailure(t, err, "fee must not exceed 100")

	require.NoError(t, h.as(h.admin)(h.builder.ChangeCloseDelay(h.admin.PublicKey(), 60)))
	require.NoError(t, h.as(h.manager)(h.builder.SetGlobalFee(h.manager.PublicKey(), 5)))
	require.NoError(t, h.as(h.manager)(h.builder.SetTransactionFee(h.manager.PublicKey(), 1_000)))
	reg := h.registry()
	assert.Equal(t, uint64(60), reg.CloseDelay)
	assert.Equal(t, uint64(5), reg.GlobalFee)
	assert.Equal(t, uint64(1_000), reg.TransactionFee)

	newManager := newKey(t, h.bank)
	require.NoError(t, h.as(h.admin)(h.builder.NewManager(h.admin.PublicKey(), newManager.PublicKey())))
	err = h.as(h.manager)(h.builder.SetWinnerFee(h.manager.PublicKey(), 10))
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)
	require.NoError(t, h.as(newManager)(h.builder.SetWinnerFee(newManager.PublicKey(), 10)))
	assert.Equal(t, uint64(10), h.registry().ReferrerFee)
}

func TestFeeSettersKeepSettlementPayable(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))
	require.NoError(t, h.join(bob, alice))

	err := h.as(h.manager)(h.builder.SetGlobalFee(h.manager.PublicKey(), 51))
	requireFailure(t, err, "fee must not exceed 50")
	err = h.as(h.manager)(h.builder.SetAdminFee(h.manager.PublicKey(), 51))
	requireFailure(t, err, "admin fee and referrer fee must not exceed 100 together")
	err = h.as(h.manager)(h.builder.SetWinnerFee(h.manager.PublicKey(), 60))
	requireFailure(t, err, "admin fee and referrer fee must not exceed 100 together")

	require.NoError(t, h.as(h.manager)(h.builder.SetWinnerFee(h.manager.PublicKey(), 40)))
	require.NoError(t, h.as(h.manager)(h.builder.SetAdminFee(h.manager.PublicKey(), 60)))
	require.NoError(t, h.as(h.manager)(h.builder.SetGlobalFee(h.manager.PublicKey(), 50)))
	reg := h.registry()
	assert.Equal(t, uint64(40), reg.ReferrerFee)
	assert.Equal(t, uint64(60), reg.AdminFee)
	assert.Equal(t, uint64(50), reg.GlobalFee)

	// At the highest global fee the whole first leg is fee.
	require.NoError(t, h.settle(alice, bob, alice))
	assert.Equal(t, startFunds, h.tokens(alice.PublicKey()))
	assert.Equal(t, stake, h.tokens(h.admin.PublicKey()))
}

func TestRegistration(t *testing.T) {
	h := newHarness(t)
	referrer := solana.NewWallet().PublicKey()
	alice := h.player(referrer)

	profile := h.user(alice.PublicKey())
	assert.Equal(t, alice.PublicKey(), profile.Address)
	assert.Equal(t, referrer, profile.Referrer)
	assert.False(t, profile.InGame)

	err := h.as(alice)(h.builder.Registration(alice.PublicKey(), referrer, "again"))
	requireFailure(t, err, "already registered")

	bob := newKey(t, h.bank)
	err = h.as(bob)(h.builder.Registration(bob.PublicKey(), bob.PublicKey(), "pw"))
	requireFailure(t, err, "refferer must not be equal to user wallet")
}

func TestEndToEndSettlement(t *testing.T) {
	h := newHarness(t)
	carol := solana.NewWallet().PublicKey()
	alice := h.player(carol)
	bob := h.player(solana.PublicKey{})

	require.NoError(t, h.open(alice))
	game := h.game(alice.PublicKey())
	assert.Equal(t, wager.StatusOpen, game.Status())
	assert.Equal(t, stake, game.Amount1)
	assert.Equal(t, tierPrice, game.TypePrice)
	assert.Equal(t, startFunds-stake, h.tokens(alice.PublicKey()))
	assert.True(t, h.user(alice.PublicKey()).InGame)

	require.NoError(t, h.join(bob, alice))
	game = h.game(alice.PublicKey())
	assert.Equal(t, wager.StatusMatched, game.Status())
	assert.Equal(t, bob.PublicKey(), game.Gamer2)
	assert.Equal(t, stake, game.Amount2)

	escrowBalance, err := h.bank.TokenBalance(h.escrow(alice.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, 2*stake, escrowBalance)

	require.NoError(t, h.settle(alice, bob, alice))

	// fee = 2 * 10% of stake; carol earns a quarter of it, the admin the rest.
	fee := stake / 5
	assert.Equal(t, startFunds-stake+(stake-fee)+stake, h.tokens(alice.PublicKey()))
	assert.Equal(t, startFunds-stake, h.tokens(bob.PublicKey()))
	assert.Equal(t, fee/4, h.tokens(carol))
	assert.Equal(t, fee-fee/4, h.tokens(h.admin.PublicKey()))

	escrowBalance, err = h.bank.TokenBalance(h.escrow(alice.PublicKey()))
	require.NoError(t, err)
	assert.Zero(t, escrowBalance)

	game = h.game(alice.PublicKey())
	assert.Equal(t, wager.StatusClosed, game.Status())
	for _, key := range []solana.PublicKey{alice.PublicKey(), bob.PublicKey()} {
		profile := h.user(key)
		assert.False(t, profile.InGame)
		assert.Equal(t, tierPrice, profile.Turnover)
	}

	// A closed wager may be replaced by a fresh one.
	require.NoError(t, h.open(alice))
	assert.Equal(t, wager.StatusOpen, h.game(alice.PublicKey()).Status())
}

func TestSettlementAcrossTwoTokens(t *testing.T) {
	h := newHarness(t)
	mint2, err := h.bank.CreateMint(6, h.admin.PublicKey())
	require.NoError(t, err)
	feed2 := solana.NewWallet().PublicKey()
	require.NoError(t, h.bank.SetRoundFeed(feed2, big.NewInt(400_000_000), 8))
	require.NoError(t, h.as(h.admin)(h.builder.AddSupportedToken(h.admin.PublicKey(), mint2, feed2, false)))

	carol := solana.NewWallet().PublicKey()
	alice := h.player(carol)
	bob := h.player(solana.PublicKey{})
	_, err = h.bank.MintTo(mint2, bob.PublicKey(), startFunds)
	require.NoError(t, err)

	require.NoError(t, h.open(alice))
	bet := h.bet(bob, false)
	bet.Mint, bet.Feed = mint2, feed2
	require.NoError(t, h.as(bob)(h.builder.JoinGame(bet, alice.PublicKey())))

	// tierPrice at a quote of 4.00.
	const stake2 uint64 = 250_000
	game := h.game(alice.PublicKey())
	assert.Equal(t, mint2, game.Token2)
	assert.Equal(t, stake2, game.Amount2)
	gameKey, err := h.builder.GameAddress(alice.PublicKey())
	require.NoError(t, err)
	escrow2, err := wager.EscrowAddress(gameKey, mint2)
	require.NoError(t, err)
	held, err := h.bank.TokenBalance(escrow2)
	require.NoError(t, err)
	assert.Equal(t, stake2, held)

	settlement := settlementOf(h, alice, bob, alice, h.manager.PublicKey())
	settlement.Mint2 = mint2
	settlement.WinnerReferrer = carol
	require.NoError(t, h.as(h.manager)(h.builder.Close(settlement)))

	// Only the first leg pays fees.
	fee := stake / 5
	assert.Equal(t, startFunds-fee, h.tokens(alice.PublicKey()))
	assert.Equal(t, fee/4, h.tokens(carol))
	assert.Equal(t, fee-fee/4, h.tokens(h.admin.PublicKey()))
	assert.Equal(t, stake2, tokensIn(t, h, mint2, alice.PublicKey()))
	assert.Zero(t, tokensIn(t, h, mint2, h.admin.PublicKey()))
	assert.Equal(t, startFunds-stake2, tokensIn(t, h, mint2, bob.PublicKey()))
	held, err = h.bank.TokenBalance(escrow2)
	require.NoError(t, err)
	assert.Zero(t, held)
	assert.Equal(t, wager.StatusClosed, h.game(alice.PublicKey()).Status())
}

func TestDoubleOpenRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})

	require.NoError(t, h.open(alice))
	requireFailure(t, h.open(alice), "already in game")
	assert.Equal(t, startFunds-stake, h.tokens(alice.PublicKey()))
}

func TestSettleAfterCloseRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))
	require.NoError(t, h.join(bob, alice))
	require.NoError(t, h.settle(alice, bob, bob))

	requireFailure(t, h.settle(alice, bob, bob), "Game already closed")
}

func TestSettleRequiresManagerAndMatchedGame(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))

	requireFailure(t, h.settle(alice, bob, alice), "Game not started")

	require.NoError(t, h.join(bob, alice))
	ix, err := h.builder.Close(settlementOf(h, alice, bob, alice, bob.PublicKey()))
	require.NoError(t, err)
	_, err = h.bank.Execute([]solana.PrivateKey{bob}, ix)
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)
}

func TestJoinDoesNotOverwriteMatchedGame(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	carol := h.player(solana.PublicKey{})

	require.NoError(t, h.open(alice))
	require.NoError(t, h.join(bob, alice))
	requireFailure(t, h.join(carol, alice), "Game started already")

	assert.Equal(t, bob.PublicKey(), h.game(alice.PublicKey()).Gamer2)
	assert.Equal(t, startFunds, h.tokens(carol.PublicKey()))
	assert.False(t, h.user(carol.PublicKey()).InGame)
}

func TestJoinOwnGameRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))
	requireFailure(t, h.join(alice, alice), "double registration")
}

func TestLockedBetsRejectNewGames(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})

	require.NoError(t, h.as(h.admin)(h.builder.LockBets(h.admin.PublicKey())))
	requireFailure(t, h.open(alice), "bets locked")

	require.NoError(t, h.as(h.admin)(h.builder.UnlockBets(h.admin.PublicKey())))
	require.NoError(t, h.open(alice))
}

func TestUnregisteredAndUnknownTier(t *testing.T) {
	h := newHarness(t)
	stranger := newKey(t, h.bank)
	_, err := h.bank.MintTo(h.mint, stranger.PublicKey(), startFunds)
	require.NoError(t, err)
	requireFailure(t, h.open(stranger), "register first")

	alice := h.player(solana.PublicKey{})
	bet := h.bet(alice, false)
	bet.TypePrice = 99
	requireFailure(t, h.as(alice)(h.builder.NewGame(bet)), "unknown game type")
}

func TestManualCloseDeadline(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))

	manualClose := func() error {
		return h.as(alice)(h.builder.ManuallyClose(alice.PublicKey(), h.mint))
	}
	requireFailure(t, manualClose(), "Please wait")

	h.bank.AdvanceClock(time.Duration(wager.DefaultCloseDelay-1) * time.Second)
	requireFailure(t, manualClose(), "Please wait")

	h.bank.AdvanceClock(time.Second)
	require.NoError(t, manualClose())

	fee := stake * wager.ManualCloseFeePercent / 100
	assert.Equal(t, startFunds-fee, h.tokens(alice.PublicKey()))
	assert.Equal(t, fee, h.tokens(h.admin.PublicKey()))
	_, ok := h.bank.Account(h.escrow(alice.PublicKey()))
	assert.False(t, ok, "escrow should be closed")
	assert.Equal(t, wager.StatusClosed, h.game(alice.PublicKey()).Status())
	assert.False(t, h.user(alice.PublicKey()).InGame)
}

func TestManualCloseOfMatchedGameRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))
	require.NoError(t, h.join(bob, alice))
	h.bank.AdvanceClock(time.Hour)

	err := h.as(alice)(h.builder.ManuallyClose(alice.PublicKey(), h.mint))
	requireFailure(t, err, "Game started already")
}

func TestForcedCloseRefundsInitiator(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	require.NoError(t, h.open(alice))

	err := h.as(alice)(h.builder.ForcedClose(alice.PublicKey(), alice.PublicKey(), h.mint))
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)

	require.NoError(t, h.as(h.manager)(h.builder.ForcedClose(h.manager.PublicKey(), alice.PublicKey(), h.mint)))
	assert.Equal(t, startFunds, h.tokens(alice.PublicKey()))
	assert.Equal(t, wager.StatusClosed, h.game(alice.PublicKey()).Status())
	assert.False(t, h.user(alice.PublicKey()).InGame)
	_, ok := h.bank.Account(h.escrow(alice.PublicKey()))
	assert.False(t, ok, "escrow should be closed")
}

func TestCloseSweepsStrayEscrowTokens(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	for _, player := range []solana.PrivateKey{alice, bob} {
		require.NoError(t, h.open(player))
		gameKey, err := h.builder.GameAddress(player.PublicKey())
		require.NoError(t, err)
		_, err = h.bank.MintTo(h.mint, gameKey, 7)
		require.NoError(t, err)
	}

	require.NoError(t, h.as(h.manager)(h.builder.ForcedClose(h.manager.PublicKey(), alice.PublicKey(), h.mint)))
	assert.Equal(t, startFunds+7, h.tokens(alice.PublicKey()))
	_, ok := h.bank.Account(h.escrow(alice.PublicKey()))
	assert.False(t, ok, "escrow should be closed")

	h.bank.AdvanceClock(time.Duration(wager.DefaultCloseDelay) * time.Second)
	require.NoError(t, h.as(bob)(h.builder.ManuallyClose(bob.PublicKey(), h.mint)))
	fee := stake * wager.ManualCloseFeePercent / 100
	assert.Equal(t, startFunds-fee+7, h.tokens(bob.PublicKey()))
	assert.Equal(t, fee, h.tokens(h.admin.PublicKey()))
	_, ok = h.bank.Account(h.escrow(bob.PublicKey()))
	assert.False(t, ok, "escrow should be closed")
}

func TestBotPolicy(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bot := newKey(t, h.bank)
	_, err := h.bank.MintTo(h.mint, bot.PublicKey(), startFunds)
	require.NoError(t, err)

	err = h.as(alice)(h.builder.AddBot(alice.PublicKey(), bot.PublicKey()))
	assert.ErrorIs(t, err, wager.ErrUnauthorisedAccess)
	require.NoError(t, h.as(h.admin)(h.builder.AddBot(h.admin.PublicKey(), bot.PublicKey())))
	assert.True(t, h.user(bot.PublicKey()).IsBot)

	require.NoError(t, h.open(alice))
	requireFailure(t, h.join(bot, alice), "User doesn't support bots")

	carol := h.player(solana.PublicKey{})
	require.NoError(t, h.as(carol)(h.builder.NewGame(h.bet(carol, true))))
	require.NoError(t, h.join(bot, carol))
	assert.Equal(t, bot.PublicKey(), h.game(carol.PublicKey()).Gamer2)
}

func TestAddressSubstitutionRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	bob := h.player(solana.PublicKey{})
	bobGame, err := h.builder.GameAddress(bob.PublicKey())
	require.NoError(t, err)

	for _, tc := range []struct {
		name  string
		index int
		key   solana.PublicKey
	}{
		{name: "game", index: 6, key: bobGame},
		{name: "registry", index: 2, key: solana.NewWallet().PublicKey()},
		{name: "token program", index: 11, key: solana.Token2022ProgramID},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ix, err := h.builder.NewGame(h.bet(alice, false))
			require.NoError(t, err)
			generic := ix.(*solana.GenericInstruction)
			original := generic.AccountValues[tc.index]
			generic.AccountValues[tc.index] = &solana.AccountMeta{
				PublicKey:  tc.key,
				IsWritable: original.IsWritable,
				IsSigner:   original.IsSigner,
			}
			_, err = h.bank.Execute([]solana.PrivateKey{alice}, generic)
			assert.ErrorIs(t, err, wager.ErrInvalidInstructionData)
		})
	}
	assert.False(t, h.user(alice.PublicKey()).InGame)
}

func TestWrongFeedRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.player(solana.PublicKey{})
	other := solana.NewWallet().PublicKey()
	h.bank.SetPriceUpdateFeed(other, 200, -2)

	bet := h.bet(alice, false)
	bet.Feed = other
	requireFailure(t, h.as(alice)(h.builder.NewGame(bet)), "Wrong feed for this token")
}

func settlementOf(h *harness, gamer1, gamer2, winner solana.PrivateKey, payer solana.PublicKey) client.Settlement {
	return client.Settlement{
		Payer:     payer,
		User:      gamer1.PublicKey(),
		Opponent:  gamer2.PublicKey(),
		Winner:    winner.PublicKey(),
		TypePrice: tierPrice,
		Mint1:     h.mint,
		Mint2:     h.mint,
	}
}
