package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/coldbell/wager/backend/internal/fixedpoint"
	"github.com/coldbell/wager/backend/internal/wager"
)

const usdDecimals = 8

// usd renders a price tier amount held with 8 decimals.
func usd(v uint64) string {
	return fixedpoint.New(v, usdDecimals).String()
}

func keyOrNone(key solana.PublicKey) string {
	if key.IsZero() {
		return "-"
	}
	return key.String()
}

func (app *cli) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print program accounts",
	}

	registry := &cobra.Command{
		Use:   "registry",
		Short: "Print the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session) error {
				r, err := s.client.Registry(ctx)
				if err != nil {
					return err
				}
				printRegistry(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}

	user := &cobra.Command{
		Use:   "user",
		Short: "Print a player profile",
		Args:  cobra.NoArgs,
	}
	user.Flags().StringP("address", "a", "", "player address, defaults to the signer")
	user.RunE = func(cmd *cobra.Command, args []string) error {
		return app.withSession(cmd, func(ctx context.Context, s *session) error {
			owner, err := ownerFlag(cmd, s)
			if err != nil {
				return err
			}
			u, err := s.client.User(ctx, owner)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		})
	}

	game := &cobra.Command{
		Use:   "game",
		Short: "Print the wager opened by an address",
		Args:  cobra.NoArgs,
	}
	game.Flags().StringP("address", "a", "", "address that opened the wager, defaults to the signer")
	game.RunE = func(cmd *cobra.Command, args []string) error {
		return app.withSession(cmd, func(ctx context.Context, s *session) error {
			owner, err := ownerFlag(cmd, s)
			if err != nil {
				return err
			}
			g, err := s.client.Game(ctx, owner)
			if err != nil {
				return err
			}
			printGame(cmd.OutOrStdout(), g)
			return nil
		})
	}

	cmd.AddCommand(registry, user, game)
	return cmd
}

func ownerFlag(cmd *cobra.Command, s *session) (solana.PublicKey, error) {
	owner, err := optionalPubkeyFlag(cmd, "address")
	if err != nil {
		return solana.PublicKey{}, err
	}
	if owner.IsZero() {
		owner = s.client.Signer()
	}
	return owner, nil
}

func printRegistry(w io.Writer, r *wager.Registry) {
	fmt.Fprintf(w, "manager:         %s\n", r.Manager)
	fmt.Fprintf(w, "accept bets:     %t\n", r.AcceptBets)
	fmt.Fprintf(w, "close delay:     %ds\n", r.CloseDelay)
	fmt.Fprintf(w, "global fee:      %d%%\n", r.GlobalFee)
	fmt.Fprintf(w, "admin fee:       %d%%\n", r.AdminFee)
	fmt.Fprintf(w, "referrer fee:    %d%%\n", r.ReferrerFee)
	fmt.Fprintf(w, "transaction fee: %d\n", r.TransactionFee)
}

func printUser(w io.Writer, u *wager.User) {
	fmt.Fprintf(w, "address:      %s\n", u.Address)
	fmt.Fprintf(w, "referrer:     %s\n", keyOrNone(u.Referrer))
	fmt.Fprintf(w, "in game:      %t\n", u.InGame)
	fmt.Fprintf(w, "support bots: %t\n", u.SupportBots)
	fmt.Fprintf(w, "bot:          %t\n", u.IsBot)
	fmt.Fprintf(w, "turnover:     %s\n", usd(u.Turnover))
}

func printGame(w io.Writer, g *wager.Game) {
	fmt.Fprintf(w, "status:     %s\n", g.Status())
	fmt.Fprintf(w, "gamer1:     %s\n", g.Gamer1)
	fmt.Fprintf(w, "token1:     %s\n", g.Token1)
	fmt.Fprintf(w, "amount1:    %d\n", g.Amount1)
	fmt.Fprintf(w, "gamer2:     %s\n", keyOrNone(g.Gamer2))
	fmt.Fprintf(w, "token2:     %s\n", keyOrNone(g.Token2))
	fmt.Fprintf(w, "amount2:    %d\n", g.Amount2)
	fmt.Fprintf(w, "type price: %s\n", usd(g.TypePrice))
	fmt.Fprintf(w, "latest bet: %d\n", g.LatestBet)
}
