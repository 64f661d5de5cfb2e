package view

import (
	"math/big"
	"time"

	"losslessMarket/internal/model"
)

// Availability says which market actions the UI should offer.
type Availability struct {
	CanBet     bool `json:"can_bet"`
	CanResolve bool `json:"can_resolve"`
	CanClaim   bool `json:"can_claim"`
	Claimed    bool `json:"claimed"`
	HasStake   bool `json:"has_stake"`
}

// Evaluate derives the available actions from a market snapshot, the
// connected account's stake and the betting time left.
func Evaluate(m model.Market, stake model.UserStake, timeLeft int64, connected bool, now time.Time) Availability {
	active := m.State == model.MarketActive
	hasStake := rawAmount(stake.YesStake).Sign() > 0 || rawAmount(stake.NoStake).Sign() > 0
	return Availability{
		CanBet:     connected && active && BettingOpen(timeLeft),
		CanResolve: connected && active && !BettingOpen(timeLeft) && now.Unix() >= int64(m.ResolveDate),
		CanClaim:   connected && !active && !stake.Claimed,
		Claimed:    stake.Claimed,
		HasStake:   hasStake,
	}
}

// StatusText is the badge label for a market card.
func StatusText(m model.Market, timeLeft int64) string {
	switch m.State {
	case model.MarketActive:
		if BettingOpen(timeLeft) {
			return "Active"
		}
		return "Betting Ended"
	case model.MarketResolved:
		return "Resolved"
	case model.MarketCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// WinningSideText names the winning outcome of a resolved market.
func WinningSideText(m model.Market) string {
	if m.State != model.MarketResolved {
		return ""
	}
	switch m.WinningSide {
	case model.SideYes:
		return "Yes"
	case model.SideNo:
		return "No"
	default:
		return "None"
	}
}

// StakeTotal is yesStake + noStake in raw units.
func StakeTotal(stake model.UserStake) *big.Int {
	return new(big.Int).Add(rawAmount(stake.YesStake), rawAmount(stake.NoStake))
}
