package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/oracle"
)

// Account is the connected wallet as seen by the pages. wallet.Session implements it.
type Account interface {
	Sender() contracts.Sender
	Address() (common.Address, bool)
	IsAdmin() bool
}

// PriceSource fetches oracle price updates for resolution.
type PriceSource interface {
	LatestPriceUpdate(ctx context.Context, priceIDs ...string) (oracle.PriceUpdate, error)
}

// Refresher re-fetches a page after a mutating call.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}
