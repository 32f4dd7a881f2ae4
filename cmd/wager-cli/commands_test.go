package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/svm"
	"github.com/coldbell/wager/backend/internal/wager"
)

type chain struct {
	bank      *svm.Bank
	programID solana.PublicKey
	admin     solana.PublicKey
	mint      solana.PublicKey
	feed      solana.PublicKey
	keys      map[string]solana.PrivateKey
}

func newChain(t *testing.T) *chain {
	t.Helper()
	bank := svm.New()
	c := &chain{
		bank:      bank,
		programID: solana.NewWallet().PublicKey(),
		feed:      solana.NewWallet().PublicKey(),
		keys:      map[string]solana.PrivateKey{},
	}
	admin := c.fund(t, "admin.json")
	c.admin = admin.PublicKey()
	bank.RegisterProgram(c.programID, wager.NewProcessor(c.programID, wager.WithAdmin(c.admin)))

	mint, err := bank.CreateMint(6, c.admin)
	require.NoError(t, err)
	c.mint = mint
	bank.SetPriceUpdateFeed(c.feed, 250, -2)
	return c
}

func (c *chain) fund(t *testing.T, path string) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	c.bank.Airdrop(key.PublicKey(), 10*solana.LAMPORTS_PER_SOL)
	c.keys[path] = key
	return key
}

func (c *chain) connect(t *testing.T) connector {
	return func(opts *globalOptions) (*session, error) {
		key, ok := c.keys[opts.sign]
		require.True(t, ok, "unknown keypair %q", opts.sign)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		cl := client.New(
			c.bank,
			client.NewBuilder(c.programID, c.admin),
			client.NewSender(c.bank, key, config.TxConfig{Commitment: rpc.CommitmentConfirmed}, logger),
			client.WithLogger(logger),
			client.WithSimulation(opts.simulate),
		)
		return &session{client: cl, logger: logger, close: func() error { return nil }}, nil
	}
}

func (c *chain) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(c.connect(t))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *chain) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

func TestRootRegistersEveryInstruction(t *testing.T) {
	root := newRootCmd(connectRPC)
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{
		"init", "change_close_delay", "lock_bets", "unlock_bets", "new_manager",
		"set_global_fee", "set_admin_fee", "set_winner_fee", "set_transaction_fee",
		"set_type_price", "add_supported_token", "registration", "add_bot",
		"new_game", "forced_close", "manually_close", "join_game", "close_game", "show",
	} {
		assert.True(t, names[name], name)
	}

	for _, flag := range []string{"sign", "env", "rpc", "program", "simulate"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, "s", root.PersistentFlags().Lookup("sign").Shorthand)
	assert.Equal(t, "e", root.PersistentFlags().Lookup("env").Shorthand)
}

func TestCommandsDriveAWager(t *testing.T) {
	c := newChain(t)
	manager := c.fund(t, "manager.json")
	player := c.fund(t, "player.json")
	_, err := c.bank.MintTo(c.mint, player.PublicKey(), 10_000_000)
	require.NoError(t, err)

	out := c.mustRun(t, "init", "-s", "admin.json", "-m", manager.PublicKey().String(), "-t", c.mint.String(), "-f", c.feed.String(), "--stable")
	assert.True(t, strings.HasPrefix(out, "tx id: "), out)

	c.mustRun(t, "set_type_price", "-s", "manager.json", "-t", "2", "-p", "5000000")
	c.mustRun(t, "set_global_fee", "-s", "manager.json", "-f", "25")
	c.mustRun(t, "registration", "-s", "player.json", "-p", "pw")
	c.mustRun(t, "new_game", "-s", "player.json", "-v", "2", "-t", c.mint.String())

	out = c.mustRun(t, "show", "game", "-s", "player.json")
	assert.Contains(t, out, "status:     open")
	assert.Contains(t, out, "amount1:    2000000")
	assert.Contains(t, out, "type price: 0.05")

	out = c.mustRun(t, "show", "registry", "-s", "admin.json")
	assert.Contains(t, out, "manager:         "+manager.PublicKey().String())
	assert.Contains(t, out, "global fee:      25%")

	c.mustRun(t, "forced_close", "-s", "manager.json", "-u", player.PublicKey().String())
	out = c.mustRun(t, "show", "game", "-s", "admin.json", "-a", player.PublicKey().String())
	assert.Contains(t, out, "status:     closed")
}

func TestSimulateDoesNotCommit(t *testing.T) {
	c := newChain(t)
	manager := c.fund(t, "manager.json")
	c.mustRun(t, "init", "-s", "admin.json", "-m", manager.PublicKey().String(), "-t", c.mint.String(), "-f", c.feed.String())

	out := c.mustRun(t, "lock_bets", "-s", "admin.json", "--simulate")
	assert.Equal(t, "simulation ok\n", out)

	out = c.mustRun(t, "show", "registry", "-s", "admin.json")
	assert.Contains(t, out, "accept bets:     true")
}

func TestCommandErrors(t *testing.T) {
	c := newChain(t)

	_, err := c.run(t, "new_manager", "-s", "admin.json")
	assert.ErrorContains(t, err, "manager")

	_, err = c.run(t, "new_manager", "-s", "admin.json", "-m", "not-a-key")
	assert.ErrorContains(t, err, "invalid --manager")

	_, err = c.run(t, "show", "registry", "-s", "admin.json")
	assert.Error(t, err)
}

func TestPrintGameRendersTierInDollars(t *testing.T) {
	var out bytes.Buffer
	printGame(&out, &wager.Game{
		Gamer1:    solana.NewWallet().PublicKey(),
		Token1:    solana.NewWallet().PublicKey(),
		Amount1:   500_000,
		TypePrice: 12_50000000,
	})
	assert.Contains(t, out.String(), "type price: 12.5\n")
	assert.Contains(t, out.String(), "amount1:    500000\n")
	assert.Contains(t, out.String(), "gamer2:     -\n")

	out.Reset()
	printUser(&out, &wager.User{Address: solana.NewWallet().PublicKey(), Turnover: 3_00000001})
	assert.Contains(t, out.String(), "turnover:     3.00000001\n")
}
