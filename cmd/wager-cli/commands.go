package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/coldbell/wager/backend/internal/client"
	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/logging"
)

type globalOptions struct {
	sign     string
	env      string
	rpcURL   string
	program  string
	simulate bool
}

// session is a connected client for one command invocation.
type session struct {
	client *client.Client
	logger *slog.Logger
	close  func() error
}

type connector func(opts *globalOptions) (*session, error)

func connectRPC(opts *globalOptions) (*session, error) {
	cfg, err := config.LoadClientConfig(opts.env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.sign != "" {
		cfg.KeypairPath = opts.sign
	}
	if opts.rpcURL != "" {
		cfg.RPCURL = opts.rpcURL
	}
	if opts.program != "" {
		programID, err := solana.PublicKeyFromBase58(opts.program)
		if err != nil {
			return nil, fmt.Errorf("invalid --program: %w", err)
		}
		cfg.ProgramID = programID
	}

	logger, closeLogger, err := logging.New("wager-cli", cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		_ = closeLogger()
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}
	logger.Debug("client configured", "network", cfg.Network, "rpc", cfg.RPCURL, "program", cfg.ProgramID, "signer", signer.PublicKey())

	node := rpc.New(cfg.RPCURL)
	c := client.New(
		node,
		client.NewBuilder(cfg.ProgramID, cfg.Admin),
		client.NewSender(node, signer, cfg.Tx, logger),
		client.WithLogger(logger),
		client.WithSimulation(opts.simulate),
	)
	return &session{client: c, logger: logger, close: closeLogger}, nil
}

type txFunc func(ctx context.Context, c *client.Client) (solana.Signature, error)

type cli struct {
	opts    globalOptions
	connect connector
}

func newRootCmd(connect connector) *cobra.Command {
	app := &cli{connect: connect}
	root := &cobra.Command{
		Use:           "wager-cli",
		Short:         "Submit wager program transactions and inspect program accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&app.opts.sign, "sign", "s", "", "signing keypair file")
	flags.StringVarP(&app.opts.env, "env", "e", "", "network: dev, local or main")
	flags.StringVar(&app.opts.rpcURL, "rpc", "", "RPC endpoint, overrides --env")
	flags.StringVar(&app.opts.program, "program", "", "program id")
	flags.BoolVar(&app.opts.simulate, "simulate", false, "simulate instead of submitting")

	root.AddCommand(
		app.initCmd(),
		app.changeCloseDelayCmd(),
		app.simpleCmd("lock_bets", "Stop accepting new wagers", func(ctx context.Context, c *client.Client) (solana.Signature, error) {
			return c.LockBets(ctx)
		}),
		app.simpleCmd("unlock_bets", "Accept new wagers again", func(ctx context.Context, c *client.Client) (solana.Signature, error) {
			return c.UnlockBets(ctx)
		}),
		app.newManagerCmd(),
		app.feeCmd("set_global_fee", "Set the fee taken from every pot", "fee in percent", (*client.Client).SetGlobalFee),
		app.feeCmd("set_admin_fee", "Set the admin share of the fee", "fee in percent", (*client.Client).SetAdminFee),
		app.feeCmd("set_winner_fee", "Set the referrer share of the fee", "fee in percent", (*client.Client).SetWinnerFee),
		app.feeCmd("set_transaction_fee", "Set the per-wager transaction fee", "fee amount", (*client.Client).SetTransactionFee),
		app.setTypePriceCmd(),
		app.addSupportedTokenCmd(),
		app.registrationCmd(),
		app.addBotCmd(),
		app.newGameCmd(),
		app.forcedCloseCmd(),
		app.simpleCmd("manually_close", "Close your own unmatched wager after the close delay", func(ctx context.Context, c *client.Client) (solana.Signature, error) {
			return c.ManuallyClose(ctx)
		}),
		app.joinGameCmd(),
		app.closeGameCmd(),
		app.showCmd(),
	)
	return root
}

// withSession connects, runs fn and releases the session.
func (app *cli) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := app.connect(&app.opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.close(); closeErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "close logger:", closeErr)
		}
	}()
	return fn(cmd.Context(), s)
}

// runTx returns a cobra handler that submits fn and prints the signature.
func (app *cli) runTx(fn txFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return app.withSession(cmd, func(ctx context.Context, s *session) error {
			sig, err := fn(ctx, s.client)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}
			if app.opts.simulate {
				fmt.Fprintln(cmd.OutOrStdout(), "simulation ok")
				return nil
			}
			s.logger.Info("transaction confirmed", "command", cmd.Name(), "signature", sig)
			fmt.Fprintf(cmd.OutOrStdout(), "tx id: %s\n", sig)
			return nil
		})
	}
}

func (app *cli) simpleCmd(use, short string, fn txFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE:  app.runTx(fn),
	}
}

func pubkeyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return key, nil
}

// optionalPubkeyFlag returns the zero key when the flag is empty.
func optionalPubkeyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return solana.PublicKey{}, nil
	}
	return pubkeyFlag(cmd, name)
}

func (app *cli) initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the registry and whitelist the first token",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("manager", "m", "", "manager address")
	cmd.Flags().StringP("token", "t", "", "token mint")
	cmd.Flags().StringP("feed", "f", "", "price feed of the token")
	cmd.Flags().Bool("stable", false, "token is a stablecoin")
	cmd.MarkFlagRequired("manager")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("feed")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		manager, err := pubkeyFlag(cmd, "manager")
		if err != nil {
			return solana.Signature{}, err
		}
		mint, err := pubkeyFlag(cmd, "token")
		if err != nil {
			return solana.Signature{}, err
		}
		feed, err := pubkeyFlag(cmd, "feed")
		if err != nil {
			return solana.Signature{}, err
		}
		stable, _ := cmd.Flags().GetBool("stable")
		return c.Init(ctx, manager, mint, feed, stable)
	})
	return cmd
}

func (app *cli) changeCloseDelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change_close_delay",
		Short: "Set the seconds before an unmatched wager may be closed by its owner",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Uint64P("new_delay", "d", 0, "close delay in seconds")
	cmd.MarkFlagRequired("new_delay")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		delay, _ := cmd.Flags().GetUint64("new_delay")
		return c.ChangeCloseDelay(ctx, delay)
	})
	return cmd
}

func (app *cli) newManagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new_manager",
		Short: "Hand the manager role to another address",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("manager", "m", "", "new manager address")
	cmd.MarkFlagRequired("manager")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		manager, err := pubkeyFlag(cmd, "manager")
		if err != nil {
			return solana.Signature{}, err
		}
		return c.NewManager(ctx, manager)
	})
	return cmd
}

func (app *cli) feeCmd(use, short, usage string, set func(*client.Client, context.Context, uint64) (solana.Signature, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Uint64P("fee", "f", 0, usage)
	cmd.MarkFlagRequired("fee")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		fee, _ := cmd.Flags().GetUint64("fee")
		return set(c, ctx, fee)
	})
	return cmd
}

func (app *cli) setTypePriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set_type_price",
		Short: "Create or update a price tier",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Uint64P("type", "t", 0, "tier id")
	cmd.Flags().Uint64P("price", "p", 0, "tier price, 8 decimals")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("price")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		tier, _ := cmd.Flags().GetUint64("type")
		price, _ := cmd.Flags().GetUint64("price")
		return c.SetTypePrice(ctx, tier, price)
	})
	return cmd
}

func (app *cli) addSupportedTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add_supported_token",
		Short: "Whitelist a token and its price feed",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("token", "t", "", "token mint")
	cmd.Flags().StringP("feed", "f", "", "price feed of the token")
	cmd.Flags().Bool("stable", false, "token is a stablecoin")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("feed")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		mint, err := pubkeyFlag(cmd, "token")
		if err != nil {
			return solana.Signature{}, err
		}
		feed, err := pubkeyFlag(cmd, "feed")
		if err != nil {
			return solana.Signature{}, err
		}
		stable, _ := cmd.Flags().GetBool("stable")
		return c.AddSupportedToken(ctx, mint, feed, stable)
	})
	return cmd
}

func (app *cli) registrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registration",
		Short: "Create the signer's player profile",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("referrer", "r", "", "referrer address")
	cmd.Flags().StringP("password", "p", "", "registration password")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		referrer, err := optionalPubkeyFlag(cmd, "referrer")
		if err != nil {
			return solana.Signature{}, err
		}
		password, _ := cmd.Flags().GetString("password")
		return c.Registration(ctx, referrer, password)
	})
	return cmd
}

func (app *cli) addBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add_bot",
		Short: "Register a bot player",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("bot", "b", "", "bot address")
	cmd.MarkFlagRequired("bot")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		bot, err := pubkeyFlag(cmd, "bot")
		if err != nil {
			return solana.Signature{}, err
		}
		return c.AddBot(ctx, bot)
	})
	return cmd
}

func addBetFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64P("value", "v", 0, "price tier id")
	cmd.Flags().StringP("token", "t", "", "token mint to stake")
	cmd.Flags().Bool("support-bots", false, "allow bots to join")
	cmd.MarkFlagRequired("value")
	cmd.MarkFlagRequired("token")
}

func (app *cli) newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new_game",
		Short: "Open a wager at a price tier",
		Args:  cobra.NoArgs,
	}
	addBetFlags(cmd)

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		mint, err := pubkeyFlag(cmd, "token")
		if err != nil {
			return solana.Signature{}, err
		}
		tier, _ := cmd.Flags().GetUint64("value")
		supportBots, _ := cmd.Flags().GetBool("support-bots")
		return c.NewGame(ctx, mint, tier, supportBots)
	})
	return cmd
}

func (app *cli) joinGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join_game",
		Short: "Join the open wager of another player",
		Args:  cobra.NoArgs,
	}
	addBetFlags(cmd)
	cmd.Flags().StringP("master", "m", "", "address that opened the wager")
	cmd.MarkFlagRequired("master")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		master, err := pubkeyFlag(cmd, "master")
		if err != nil {
			return solana.Signature{}, err
		}
		mint, err := pubkeyFlag(cmd, "token")
		if err != nil {
			return solana.Signature{}, err
		}
		tier, _ := cmd.Flags().GetUint64("value")
		supportBots, _ := cmd.Flags().GetBool("support-bots")
		return c.JoinGame(ctx, master, mint, tier, supportBots)
	})
	return cmd
}

func (app *cli) forcedCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forced_close",
		Short: "Close an unmatched wager and refund its owner",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("user", "u", "", "address that opened the wager")
	cmd.MarkFlagRequired("user")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		user, err := pubkeyFlag(cmd, "user")
		if err != nil {
			return solana.Signature{}, err
		}
		return c.ForcedClose(ctx, user)
	})
	return cmd
}

func (app *cli) closeGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close_game",
		Short: "Settle a matched wager in favour of the winner",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("user", "u", "", "address that opened the wager")
	cmd.Flags().StringP("winner", "w", "", "winner address")
	cmd.Flags().Uint64P("type", "t", 0, "tier price the wager was opened at")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("winner")
	cmd.MarkFlagRequired("type")

	cmd.RunE = app.runTx(func(ctx context.Context, c *client.Client) (solana.Signature, error) {
		user, err := pubkeyFlag(cmd, "user")
		if err != nil {
			return solana.Signature{}, err
		}
		winner, err := pubkeyFlag(cmd, "winner")
		if err != nil {
			return solana.Signature{}, err
		}
		typePrice, _ := cmd.Flags().GetUint64("type")
		return c.Close(ctx, user, winner, typePrice)
	})
	return cmd
}
