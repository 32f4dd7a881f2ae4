package wager_test

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/oracle"
	"github.com/coldbell/wager/backend/internal/svm"
	"github.com/coldbell/wager/backend/internal/wager"
)

const (
	tier      uint64 = 1
	tierPrice uint64 = 1_000_000
	// stake is tierPrice at a quote of 2.00.
	stake      uint64 = 500_000
	startFunds uint64 = 1_000_000
)

type harness struct {
	t         *testing.T
	bank      *svm.Bank
	builder   *client.Builder
	programID solana.PublicKey
	admin     solana.PrivateKey
	manager   solana.PrivateKey
	mint      solana.PublicKey
	feed      solana.PublicKey
}

func newKey(t *testing.T, bank *svm.Bank) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	bank.Airdrop(key.PublicKey(), 10*solana.LAMPORTS_PER_SOL)
	return key
}

// newHarness deploys the program, initializes the registry with one
// supported token and configures the test tier.
func newHarness(t *testing.T) *harness {
	t.Helper()
	bank := svm.New()
	programID := solana.NewWallet().PublicKey()
	admin := newKey(t, bank)
	manager := newKey(t, bank)
	bank.RegisterProgram(programID, wager.NewProcessor(programID, wager.WithAdmin(admin.PublicKey())))

	mint, err := bank.CreateMint(6, admin.PublicKey())
	require.NoError(t, err)
	feed := solana.NewWallet().PublicKey()
	require.NoError(t, bank.SetRoundFeed(feed, big.NewInt(200_000_000), 8))

	h := &harness{
		t:         t,
		bank:      bank,
		builder:   client.NewBuilder(programID, admin.PublicKey()),
		programID: programID,
		admin:     admin,
		manager:   manager,
		mint:      mint,
		feed:      feed,
	}
	require.NoError(t, h.as(admin)(h.builder.Init(admin.PublicKey(), manager.PublicKey(), mint, feed, false)))
	require.NoError(t, h.as(manager)(h.builder.SetTypePrice(manager.PublicKey(), tier, tierPrice)))
	return h
}

// as returns a function that signs and executes a freshly built
// instruction with signer.
func (h *harness) as(signer solana.PrivateKey) func(solana.Instruction, error) error {
	return func(ix solana.Instruction, err error) error {
		h.t.Helper()
		require.NoError(h.t, err)
		_, err = h.bank.Execute([]solana.PrivateKey{signer}, ix)
		return err
	}
}

// player funds, mints and registers a new wallet.
func (h *harness) player(referrer solana.PublicKey) solana.PrivateKey {
	h.t.Helper()
	key := newKey(h.t, h.bank)
	_, err := h.bank.MintTo(h.mint, key.PublicKey(), startFunds)
	require.NoError(h.t, err)
	require.NoError(h.t, h.as(key)(h.builder.Registration(key.PublicKey(), referrer, "secret")))
	return key
}

func (h *harness) bet(payer solana.PrivateKey, supportBots bool) client.Bet {
	return client.Bet{
		Payer:         payer.PublicKey(),
		Mint:          h.mint,
		OracleProgram: oracle.ChainlinkStoreProgramID,
		Feed:          h.feed,
		TypePrice:     tier,
		SupportBots:   supportBots,
	}
}

func (h *harness) open(player solana.PrivateKey) error {
	return h.as(player)(h.builder.NewGame(h.bet(player, false)))
}

func (h *harness) join(player, master solana.PrivateKey) error {
	return h.as(player)(h.builder.JoinGame(h.bet(player, false), master.PublicKey()))
}

func (h *harness) settle(gamer1, gamer2, winner solana.PrivateKey) error {
	winnerProfile := h.user(winner.PublicKey())
	loser := gamer2
	if winner.PublicKey().Equals(gamer2.PublicKey()) {
		loser = gamer1
	}
	loserProfile := h.user(loser.PublicKey())
	return h.as(h.manager)(h.builder.Close(client.Settlement{
		Payer:          h.manager.PublicKey(),
		User:           gamer1.PublicKey(),
		Opponent:       gamer2.PublicKey(),
		Winner:         winner.PublicKey(),
		TypePrice:      tierPrice,
		Mint1:          h.mint,
		Mint2:          h.mint,
		WinnerReferrer: winnerProfile.Referrer,
		LoserReferrer:  loserProfile.Referrer,
	}))
}

func (h *harness) record(key solana.PublicKey) []byte {
	h.t.Helper()
	acc, ok := h.bank.Account(key)
	require.True(h.t, ok, "account %s missing", key)
	require.Equal(h.t, h.programID, acc.Owner)
	return acc.Data
}

func (h *harness) user(owner solana.PublicKey) *wager.User {
	h.t.Helper()
	key, err := h.builder.UserAddress(owner)
	require.NoError(h.t, err)
	out, err := wager.DecodeUser(h.record(key))
	require.NoError(h.t, err)
	return out
}

func (h *harness) game(initiator solana.PublicKey) *wager.Game {
	h.t.Helper()
	key, err := h.builder.GameAddress(initiator)
	require.NoError(h.t, err)
	out, err := wager.DecodeGame(h.record(key))
	require.NoError(h.t, err)
	return out
}

func (h *harness) registry() *wager.Registry {
	h.t.Helper()
	key, err := h.builder.RegistryAddress()
	require.NoError(h.t, err)
	out, err := wager.DecodeRegistry(h.record(key))
	require.NoError(h.t, err)
	return out
}

func (h *harness) tokens(wallet solana.PublicKey) uint64 {
	h.t.Helper()
	return tokensIn(h.t, h, h.mint, wallet)
}

// tokensIn is the balance of wallet's associated account for mint, zero
// when the account does not exist.
func tokensIn(t *testing.T, h *harness, mint, wallet solana.PublicKey) uint64 {
	t.Helper()
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	amount, err := h.bank.TokenBalance(ata)
	require.NoError(t, err)
	return amount
}

func (h *harness) escrow(initiator solana.PublicKey) solana.PublicKey {
	h.t.Helper()
	game, err := h.builder.GameAddress(initiator)
	require.NoError(h.t, err)
	escrow, err := wager.EscrowAddress(game, h.mint)
	require.NoError(h.t, err)
	return escrow
}
