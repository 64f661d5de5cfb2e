package model

import "strings"

// MarketState mirrors the uint8 marketState returned by a market contract.
type MarketState uint8

const (
	MarketActive    MarketState = 0
	MarketResolved  MarketState = 1
	MarketCancelled MarketState = 2
)

func (s MarketState) String() string {
	switch s {
	case MarketActive:
		return "active"
	case MarketResolved:
		return "resolved"
	case MarketCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseMarketState parses a filter name. The second result is false for "all" or unknown names.
func ParseMarketState(name string) (MarketState, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "active":
		return MarketActive, true
	case "resolved":
		return MarketResolved, true
	case "cancelled", "canceled":
		return MarketCancelled, true
	default:
		return 0, false
	}
}

// Side mirrors the uint8 side/winningSide values used by a market contract.
type Side uint8

const (
	SideNone Side = 0
	SideYes  Side = 1
	SideNo   Side = 2
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return "none"
	}
}

// ParseSide parses "yes" or "no".
func ParseSide(name string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yes", "y":
		return SideYes, true
	case "no", "n":
		return SideNo, true
	default:
		return SideNone, false
	}
}

// Market is a snapshot of a market contract's public state.
// Big integers are kept as base-10 strings.
type Market struct {
	Address            string      `json:"address"`
	Factory            string      `json:"factory"`
	Creator            string      `json:"creator"`
	USDC               string      `json:"usdc"`
	LendingPool        string      `json:"lending_pool"`
	PriceOracle        string      `json:"price_oracle"`
	PriceFeedID        string      `json:"price_feed_id"`
	TargetPrice        string      `json:"target_price"`
	ResolveDate        uint64      `json:"resolve_date"`
	BettingDeadline    uint64      `json:"betting_deadline"`
	Question           string      `json:"question"`
	Symbol             string      `json:"symbol,omitempty"`
	State              MarketState `json:"state"`
	WinningSide        Side        `json:"winning_side"`
	TotalYes           string      `json:"total_yes"`
	TotalNo            string      `json:"total_no"`
	TotalPrincipal     string      `json:"total_principal"`
	ResolvedInterest   string      `json:"resolved_interest"`
	TotalWinningStakes string      `json:"total_winning_stakes"`
	FetchedAt          int64       `json:"fetched_at"`
}

// UserStake is a per-(market, account) position.
type UserStake struct {
	Market   string `json:"market"`
	Account  string `json:"account"`
	YesStake string `json:"yes_stake"`
	NoStake  string `json:"no_stake"`
	Claimed  bool   `json:"claimed"`
}

// EmptyStake is the zero position shown when no account is connected.
func EmptyStake(market string) UserStake {
	return UserStake{Market: market, YesStake: "0", NoStake: "0"}
}

// CreateMarketParams carries the factory createMarket arguments in raw units.
type CreateMarketParams struct {
	USDC        string
	LendingPool string
	PriceOracle string
	PriceFeedID [32]byte
	TargetPrice string
	ResolveDate uint64
	Question    string
}
