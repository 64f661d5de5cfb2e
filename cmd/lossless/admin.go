package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"losslessMarket/internal/config"
	"losslessMarket/internal/service"
)

// adminPage connects the configured key and returns an admin page bound to it.
func adminPage(cmd *cobra.Command, action string, fn func(ctx context.Context, a *app, page *service.AdminPage) error) error {
	cfg, err := config.Load(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := loadApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connect(ctx, action); err != nil {
		return a.userError(err)
	}
	page := service.NewAdminPage(a.factory, a.client, a.session, a.logger)
	return fn(ctx, a, page)
}

func createMarketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-market",
		Short: "Deploy a new market through the factory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			question, _ := cmd.Flags().GetString("question")
			target, _ := cmd.Flags().GetString("target-price")
			feed, _ := cmd.Flags().GetString("price-id")
			pool, _ := cmd.Flags().GetString("aave-pool")
			pyth, _ := cmd.Flags().GetString("pyth")
			token, _ := cmd.Flags().GetString("market-usdc")
			resolveText, _ := cmd.Flags().GetString("resolve-date")

			resolveAt, err := config.ParseTimestamp(resolveText)
			if err != nil {
				return fmt.Errorf("resolve date: %w", err)
			}
			if resolveAt == 0 {
				return fmt.Errorf("resolve date is required")
			}

			return adminPage(cmd, "create_market", func(ctx context.Context, a *app, page *service.AdminPage) error {
				if token == "" {
					token = a.cfg.USDC
				}
				market, receipt, err := page.CreateMarket(ctx, service.CreateMarketInput{
					USDC:        token,
					LendingPool: pool,
					PriceOracle: pyth,
					PriceFeedID: feed,
					TargetPrice: target,
					ResolveDate: time.Unix(int64(resolveAt), 0),
					Question:    question,
				})
				if err != nil {
					return a.userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Market created: %s (tx %s)\n", market, receipt.TxHash.Hex())
				return nil
			})
		},
	}
	cmd.Flags().String("question", "", "market question, e.g. \"Will ETH be above $3,500?\"")
	cmd.Flags().String("target-price", "", "target price in USD")
	cmd.Flags().String("price-id", "", "Pyth price feed id (hex)")
	cmd.Flags().String("aave-pool", "", "Aave pool address")
	cmd.Flags().String("pyth", "", "Pyth contract address")
	cmd.Flags().String("market-usdc", "", "stake token for the market (defaults to --usdc)")
	cmd.Flags().String("resolve-date", "", "resolve time (unix seconds or RFC3339)")
	for _, name := range []string{"question", "target-price", "price-id", "aave-pool", "pyth", "resolve-date"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <market>",
		Short: "Cancel an active market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminPage(cmd, "cancel", func(ctx context.Context, a *app, page *service.AdminPage) error {
				receipt, err := page.Cancel(ctx, args[0])
				if err != nil {
					return a.userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Market cancelled (tx %s)\n", receipt.TxHash.Hex())
				return nil
			})
		},
	}
}

func withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw-leftover <market> <amount>",
		Short: "Withdraw unclaimed USDC left in a finished market",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			return adminPage(cmd, "withdraw_leftover", func(ctx context.Context, a *app, page *service.AdminPage) error {
				receipt, err := page.WithdrawLeftover(ctx, args[0], args[1], to)
				if err != nil {
					return a.userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Withdrew %s USDC (tx %s)\n", args[1], receipt.TxHash.Hex())
				return nil
			})
		},
	}
	cmd.Flags().String("to", "", "recipient (defaults to the connected account)")
	return cmd
}

func adminCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin-check",
		Short: "Report whether the connected account sees admin controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile(cmd), cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connect(ctx, "admin_check"); err != nil {
				return a.userError(err)
			}
			st := a.session.State()
			if st.Error != "" {
				return fmt.Errorf("%s", st.Error)
			}
			answer := "no"
			if st.IsAdmin {
				answer = "yes"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s admin: %s\n", st.Address, answer)
			return nil
		},
	}
}
