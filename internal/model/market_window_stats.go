package model

import "time"

// MarketWindowStats stores aggregated bet activity for a market window.
type MarketWindowStats struct {
	ChainID        uint64
	MarketAddress  string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	BetCount       uint64
	YesVolume      string
	NoVolume       string
	ClaimCount     uint64
	ClaimedAmount  string
	YesShare       *string
}
