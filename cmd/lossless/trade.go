package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"losslessMarket/internal/config"
	"losslessMarket/internal/model"
)

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the connected account and its USDC balance",
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

			if err := a.connect(ctx, "balance"); err != nil {
				return a.userError(err)
			}
			st := a.session.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address  %s\n", st.Address)
			fmt.Fprintf(out, "balance  %s USDC\n", st.Balance)
			if st.IsAdmin {
				fmt.Fprintln(out, "admin    yes")
			}
			return nil
		},
	}
}

func betCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bet <market> <yes|no> <amount>",
		Short: "Stake USDC on one side of a market",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, ok := model.ParseSide(args[1])
			if !ok {
				return fmt.Errorf("side must be yes or no, got %q", args[1])
			}
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

			if err := a.connect(ctx, "bet"); err != nil {
				return a.userError(err)
			}
			detail, err := a.detail(args[0])
			if err != nil {
				return err
			}
			receipt, err := detail.PlaceBet(ctx, side, args[2])
			if err != nil {
				return a.userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bet placed: %s USDC on %s (tx %s)\n", args[2], side, receipt.TxHash.Hex())
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <market>",
		Short: "Resolve a market with the latest oracle price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := a.connect(ctx, "resolve"); err != nil {
				return a.userError(err)
			}
			detail, err := a.detail(args[0])
			if err != nil {
				return err
			}
			receipt, err := detail.Resolve(ctx)
			if err != nil {
				return a.userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Market resolved (tx %s)\n", receipt.TxHash.Hex())
			return nil
		},
	}
}

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <market>",
		Short: "Claim principal and winnings from a finished market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := a.connect(ctx, "claim"); err != nil {
				return a.userError(err)
			}
			detail, err := a.detail(args[0])
			if err != nil {
				return err
			}
			receipt, err := detail.Claim(ctx)
			if err != nil {
				return a.userError(err)
			}
			a.session.RefreshBalance(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Claimed (tx %s). Balance: %s USDC\n", receipt.TxHash.Hex(), a.session.USDCBalance())
			return nil
		},
	}
}
