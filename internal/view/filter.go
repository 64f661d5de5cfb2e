package view

import (
	"math/big"
	"sort"
	"strings"

	"losslessMarket/internal/model"
)

// SortOrder names a market list ordering.
type SortOrder string

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortMostStaked SortOrder = "mostStaked"
)

// ParseSortOrder accepts the three orderings case-insensitively; anything else keeps factory order.
func ParseSortOrder(name string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "newest":
		return SortNewest, true
	case "oldest":
		return SortOldest, true
	case "moststaked", "most-staked", "most_staked":
		return SortMostStaked, true
	default:
		return "", false
	}
}

// Counts is the per-tab market count shown above the list.
type Counts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Resolved  int `json:"resolved"`
	Cancelled int `json:"cancelled"`
}

// ValidStateFilter reports whether name is a known filter tab: empty, "all"
// or one of the market states.
func ValidStateFilter(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "all") {
		return true
	}
	_, ok := model.ParseMarketState(name)
	return ok
}

// FilterByState returns markets matching the filter tab. "all" and unknown
// names return every market.
func FilterByState(markets []model.Market, filter string) []model.Market {
	state, ok := model.ParseMarketState(filter)
	out := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if !ok || m.State == state {
			out = append(out, m)
		}
	}
	return out
}

// CountByState partitions markets by state. Markets with an unknown state code
// count toward All only.
func CountByState(markets []model.Market) Counts {
	counts := Counts{All: len(markets)}
	for _, m := range markets {
		switch m.State {
		case model.MarketActive:
			counts.Active++
		case model.MarketResolved:
			counts.Resolved++
		case model.MarketCancelled:
			counts.Cancelled++
		}
	}
	return counts
}

// Sort returns a sorted copy of markets. The input slice is not modified.
func Sort(markets []model.Market, order SortOrder) []model.Market {
	out := append([]model.Market(nil), markets...)
	switch order {
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ResolveDate > out[j].ResolveDate })
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ResolveDate < out[j].ResolveDate })
	case SortMostStaked:
		totals := make(map[string]*big.Int, len(out))
		for _, m := range out {
			totals[m.Address] = TotalStaked(m)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return totals[out[i].Address].Cmp(totals[out[j].Address]) > 0
		})
	}
	return out
}

// TotalStaked is totalYes + totalNo in raw units.
func TotalStaked(m model.Market) *big.Int {
	return new(big.Int).Add(rawAmount(m.TotalYes), rawAmount(m.TotalNo))
}

func rawAmount(value string) *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}
