package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"losslessMarket/internal/model"
)

// Accumulator holds bet and claim totals for one market window.
type Accumulator struct {
	ChainID       uint64
	MarketAddress string
	WindowStart   uint64
	WindowEnd     uint64
	BetCount      uint64
	YesVolume     *big.Int
	NoVolume      *big.Int
	ClaimCount    uint64
	ClaimedAmount *big.Int
	LastBlock     uint64
	LastTS        uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:       record.ChainID,
		MarketAddress: record.Address,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		YesVolume:     big.NewInt(0),
		NoVolume:      big.NewInt(0),
		ClaimedAmount: big.NewInt(0),
		LastBlock:     record.BlockNumber,
		LastTS:        record.Timestamp,
	}
}

// AddEvent folds one event into the window. Events other than BetPlaced and
// Claimed only move the last-seen markers.
func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}

	switch strings.ToLower(record.EventName) {
	case "betplaced":
		var bet model.BetPlacedEventData
		if err := record.DecodeInto(&bet); err != nil {
			return err
		}
		return a.applyBet(bet)
	case "claimed":
		var claim model.ClaimedEventData
		if err := record.DecodeInto(&claim); err != nil {
			return err
		}
		amount, err := parseBigInt(claim.Amount)
		if err != nil {
			return err
		}
		a.ClaimedAmount.Add(a.ClaimedAmount, amount)
		a.ClaimCount++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applyBet(bet model.BetPlacedEventData) error {
	amount, err := parseBigInt(bet.Amount)
	if err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative bet amount: %s", bet.Amount)
	}
	switch bet.Side {
	case model.SideYes:
		a.YesVolume.Add(a.YesVolume, amount)
	case model.SideNo:
		a.NoVolume.Add(a.NoVolume, amount)
	default:
		return fmt.Errorf("bet with unknown side %d", bet.Side)
	}
	a.BetCount++
	return nil
}

// Empty reports whether the window saw no bets or claims.
func (a *Accumulator) Empty() bool {
	return a.BetCount == 0 && a.ClaimCount == 0
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
