package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"losslessMarket/internal/config"
	"losslessMarket/internal/model"
	"losslessMarket/internal/service"
	"losslessMarket/internal/view"
)

func marketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "List factory markets",
		Args:  cobra.NoArgs,
		RunE:  runMarkets,
	}
	cmd.Flags().String("state", "all", "filter: all, active, resolved, cancelled")
	cmd.Flags().String("sort", string(view.SortNewest), "sort: newest, oldest, mostStaked")
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func runMarkets(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	stateFilter, _ := cmd.Flags().GetString("state")
	sortName, _ := cmd.Flags().GetString("sort")
	asJSON, _ := cmd.Flags().GetBool("json")

	if !view.ValidStateFilter(stateFilter) {
		return fmt.Errorf("unknown market state %q", stateFilter)
	}
	order, ok := view.ParseSortOrder(sortName)
	if !ok {
		return fmt.Errorf("unknown sort order %q", sortName)
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := loadApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	page := service.NewMarketsPage(a.factory, a.client, service.MarketsPageConfig{}, a.logger)
	markets, err := page.Load(ctx)
	if err != nil {
		return a.userError(err)
	}

	counts := view.CountByState(markets)
	markets = view.Sort(view.FilterByState(markets, stateFilter), order)

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, map[string]interface{}{"counts": counts, "markets": markets})
	}

	fmt.Fprintf(out, "all %d  active %d  resolved %d  cancelled %d\n\n", counts.All, counts.Active, counts.Resolved, counts.Cancelled)
	if len(markets) == 0 {
		fmt.Fprintln(out, "No markets found")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATUS\tQUESTION\tTARGET\tSTAKED (USDC)\tRESOLVES")
	now := time.Now()
	for _, m := range markets {
		left := view.TimeLeft(m.BettingDeadline, now)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Address,
			view.StatusText(m, left),
			m.Question,
			view.FormatTargetPrice(m.TargetPrice),
			view.FormatUSDC(view.TotalStaked(m).String()),
			time.Unix(int64(m.ResolveDate), 0).UTC().Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

func marketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market <address>",
		Short: "Show one market and the connected account's position",
		Args:  cobra.ExactArgs(1),
		RunE:  runMarket,
	}
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func runMarket(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signalContext()
	defer stop()

	a, err := loadApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connectOptional(ctx); err != nil {
		return a.userError(err)
	}
	detail, err := a.detail(args[0])
	if err != nil {
		return err
	}
	snap, err := detail.Load(ctx)
	if err != nil {
		return a.userError(err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, snap)
	}
	printDetail(out, snap)
	return nil
}

func printDetail(out io.Writer, snap service.DetailSnapshot) {
	m := snap.Market
	fmt.Fprintf(out, "%s\n", m.Question)
	fmt.Fprintf(out, "  address       %s\n", m.Address)
	fmt.Fprintf(out, "  status        %s\n", snap.Status)
	fmt.Fprintf(out, "  target price  $%s\n", snap.TargetPrice)
	fmt.Fprintf(out, "  resolves      %s\n", time.Unix(int64(m.ResolveDate), 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "  time left     %s\n", snap.TimeLeftText)
	fmt.Fprintf(out, "  yes pool      %s USDC\n", view.FormatUSDC(m.TotalYes))
	fmt.Fprintf(out, "  no pool       %s USDC\n", view.FormatUSDC(m.TotalNo))
	if share := view.YesShare(m.TotalYes, m.TotalNo); share != "" {
		fmt.Fprintf(out, "  yes share     %s\n", share)
	}
	if m.State == model.MarketResolved {
		fmt.Fprintf(out, "  winner        %s\n", view.WinningSideText(m))
		fmt.Fprintf(out, "  interest      %s USDC\n", view.FormatUSDC(m.ResolvedInterest))
	}
	if snap.Stake.Account != "" {
		fmt.Fprintf(out, "  your yes      %s USDC\n", view.FormatUSDC(snap.Stake.YesStake))
		fmt.Fprintf(out, "  your no       %s USDC\n", view.FormatUSDC(snap.Stake.NoStake))
		fmt.Fprintf(out, "  claimed       %t\n", snap.Availability.Claimed)
	}
	fmt.Fprintf(out, "  can bet %t  can resolve %t  can claim %t\n",
		snap.Availability.CanBet, snap.Availability.CanResolve, snap.Availability.CanClaim)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
