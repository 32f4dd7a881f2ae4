package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/wager/backend/internal/wager"
)

// Client runs program instructions on behalf of the sender's key, reading
// whatever on-chain state is needed to fill in the account lists.
type Client struct {
	rpc      RPC
	builder  *Builder
	sender   *Sender
	logger   *slog.Logger
	simulate bool
}

type Option func(*Client)

// WithSimulation makes every operation simulate instead of submitting.
func WithSimulation(enabled bool) Option {
	return func(c *Client) { c.simulate = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(rpc RPC, builder *Builder, sender *Sender, opts ...Option) *Client {
	c := &Client{rpc: rpc, builder: builder, sender: sender, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Builder() *Builder { return c.builder }

func (c *Client) payer() solana.PublicKey { return c.sender.PublicKey() }

// Signer is the key every transaction is paid and signed by.
func (c *Client) Signer() solana.PublicKey { return c.payer() }

// execute submits ix, or simulates it when the client is in simulation
// mode. A simulated run returns the zero signature.
func (c *Client) execute(ctx context.Context, ix solana.Instruction) (solana.Signature, error) {
	if c.simulate {
		logs, err := c.sender.Simulate(ctx, ix)
		for _, line := range logs {
			c.logger.Info("simulation", "log", line)
		}
		return solana.Signature{}, err
	}
	return c.sender.Send(ctx, ix)
}

func (c *Client) Init(ctx context.Context, manager, mint, feed solana.PublicKey, stable bool) (solana.Signature, error) {
	ix, err := c.builder.Init(c.payer(), manager, mint, feed, stable)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) ChangeCloseDelay(ctx context.Context, delay uint64) (solana.Signature, error) {
	ix, err := c.builder.ChangeCloseDelay(c.payer(), delay)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) LockBets(ctx context.Context) (solana.Signature, error) {
	ix, err := c.builder.LockBets(c.payer())
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) UnlockBets(ctx context.Context) (solana.Signature, error) {
	ix, err := c.builder.UnlockBets(c.payer())
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) NewManager(ctx context.Context, manager solana.PublicKey) (solana.Signature, error) {
	ix, err := c.builder.NewManager(c.payer(), manager)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) SetGlobalFee(ctx context.Context, fee uint64) (solana.Signature, error) {
	ix, err := c.builder.SetGlobalFee(c.payer(), fee)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) SetAdminFee(ctx context.Context, fee uint64) (solana.Signature, error) {
	ix, err := c.builder.SetAdminFee(c.payer(), fee)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) SetWinnerFee(ctx context.Context, fee uint64) (solana.Signature, error) {
	ix, err := c.builder.SetWinnerFee(c.payer(), fee)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) SetTransactionFee(ctx context.Context, fee uint64) (solana.Signature, error) {
	ix, err := c.builder.SetTransactionFee(c.payer(), fee)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) AddSupportedToken(ctx context.Context, mint, feed solana.PublicKey, stable bool) (solana.Signature, error) {
	ix, err := c.builder.AddSupportedToken(c.payer(), mint, feed, stable)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) SetTypePrice(ctx context.Context, tier, price uint64) (solana.Signature, error) {
	ix, err := c.builder.SetTypePrice(c.payer(), tier, price)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) Registration(ctx context.Context, referrer solana.PublicKey, password string) (solana.Signature, error) {
	ix, err := c.builder.Registration(c.payer(), referrer, password)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) AddBot(ctx context.Context, bot solana.PublicKey) (solana.Signature, error) {
	ix, err := c.builder.AddBot(c.payer(), bot)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

// bet resolves the price feed of mint and the oracle program that owns it.
func (c *Client) bet(ctx context.Context, mint solana.PublicKey, tier uint64, supportBots bool) (Bet, error) {
	entry, err := FetchWhitelist(ctx, c.rpc, c.builder.ProgramID, mint)
	if err != nil {
		return Bet{}, fmt.Errorf("token %s is not supported: %w", mint, err)
	}
	feed, err := FetchAccount(ctx, c.rpc, entry.Feed)
	if err != nil {
		return Bet{}, fmt.Errorf("price feed of %s: %w", mint, err)
	}
	return Bet{
		Payer:         c.payer(),
		Mint:          mint,
		OracleProgram: feed.Owner,
		Feed:          entry.Feed,
		TypePrice:     tier,
		SupportBots:   supportBots,
	}, nil
}

func (c *Client) NewGame(ctx context.Context, mint solana.PublicKey, tier uint64, supportBots bool) (solana.Signature, error) {
	bet, err := c.bet(ctx, mint, tier, supportBots)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := c.builder.NewGame(bet)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) JoinGame(ctx context.Context, master, mint solana.PublicKey, tier uint64, supportBots bool) (solana.Signature, error) {
	bet, err := c.bet(ctx, mint, tier, supportBots)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := c.builder.JoinGame(bet, master)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) ForcedClose(ctx context.Context, user solana.PublicKey) (solana.Signature, error) {
	game, err := FetchGame(ctx, c.rpc, c.builder.ProgramID, user)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := c.builder.ForcedClose(c.payer(), user, game.Token1)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

func (c *Client) ManuallyClose(ctx context.Context) (solana.Signature, error) {
	game, err := FetchGame(ctx, c.rpc, c.builder.ProgramID, c.payer())
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := c.builder.ManuallyClose(c.payer(), game.Token1)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

// Close settles the matched wager opened by user in favour of winner.
// typePrice must repeat the tier price the wager was opened at.
func (c *Client) Close(ctx context.Context, user, winner solana.PublicKey, typePrice uint64) (solana.Signature, error) {
	settlement, err := c.Settlement(ctx, user, winner, typePrice)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := c.builder.Close(settlement)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.execute(ctx, ix)
}

// Settlement reads the wager and both profiles to name every party of a
// Close.
func (c *Client) Settlement(ctx context.Context, user, winner solana.PublicKey, typePrice uint64) (Settlement, error) {
	programID := c.builder.ProgramID
	game, err := FetchGame(ctx, c.rpc, programID, user)
	if err != nil {
		return Settlement{}, err
	}
	opponent, ok := game.Opponent()
	if !ok {
		return Settlement{}, fmt.Errorf("game of %s has no opponent yet", user)
	}
	loser := opponent
	switch {
	case winner.Equals(game.Gamer1):
	case winner.Equals(opponent):
		loser = game.Gamer1
	default:
		return Settlement{}, fmt.Errorf("%s is not playing the game of %s", winner, user)
	}

	winnerProfile, err := FetchUser(ctx, c.rpc, programID, winner)
	if err != nil {
		return Settlement{}, fmt.Errorf("winner profile: %w", err)
	}
	loserProfile, err := FetchUser(ctx, c.rpc, programID, loser)
	if err != nil {
		return Settlement{}, fmt.Errorf("loser profile: %w", err)
	}
	return Settlement{
		Payer:          c.payer(),
		User:           user,
		Opponent:       opponent,
		Winner:         winner,
		TypePrice:      typePrice,
		Mint1:          game.Token1,
		Mint2:          game.Token2,
		WinnerReferrer: winnerProfile.Referrer,
		LoserReferrer:  loserProfile.Referrer,
	}, nil
}

func (c *Client) Registry(ctx context.Context) (*wager.Registry, error) {
	return FetchRegistry(ctx, c.rpc, c.builder.ProgramID)
}

func (c *Client) User(ctx context.Context, owner solana.PublicKey) (*wager.User, error) {
	return FetchUser(ctx, c.rpc, c.builder.ProgramID, owner)
}

func (c *Client) Game(ctx context.Context, initiator solana.PublicKey) (*wager.Game, error) {
	return FetchGame(ctx, c.rpc, c.builder.ProgramID, initiator)
}
