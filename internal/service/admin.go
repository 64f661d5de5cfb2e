package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
	"losslessMarket/internal/view"
)

// CreateMarketInput is the admin form in human units.
type CreateMarketInput struct {
	USDC        string
	LendingPool string
	PriceOracle string
	PriceFeedID string
	TargetPrice string
	ResolveDate time.Time
	Question    string
}

// AdminPage creates and manages markets. The admin check only hides the
// controls; the factory and market contracts enforce ownership.
type AdminPage struct {
	factory *contracts.Factory
	caller  contracts.Caller
	account Account
	refresh Refresher
	logger  *zap.Logger
	now     func() time.Time
}

func NewAdminPage(factory *contracts.Factory, caller contracts.Caller, account Account, logger *zap.Logger) *AdminPage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminPage{factory: factory, caller: caller, account: account, logger: logger, now: time.Now}
}

func (a *AdminPage) SetRefresher(r Refresher) {
	a.refresh = r
}

// BuildParams validates the form and converts it to raw factory arguments.
func (a *AdminPage) BuildParams(in CreateMarketInput) (model.CreateMarketParams, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return model.CreateMarketParams{}, fmt.Errorf("question is required")
	}
	target, err := view.ParseTargetPrice(in.TargetPrice)
	if err != nil {
		return model.CreateMarketParams{}, fmt.Errorf("target price: %w", err)
	}
	if in.ResolveDate.IsZero() || !in.ResolveDate.After(a.now()) {
		return model.CreateMarketParams{}, fmt.Errorf("resolve date must be in the future")
	}
	feedID, err := contracts.PadPriceID(in.PriceFeedID)
	if err != nil {
		return model.CreateMarketParams{}, err
	}
	for name, addr := range map[string]string{"usdc": in.USDC, "lending pool": in.LendingPool, "price oracle": in.PriceOracle} {
		if _, err := contracts.ParseAddress(addr); err != nil {
			return model.CreateMarketParams{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return model.CreateMarketParams{
		USDC:        in.USDC,
		LendingPool: in.LendingPool,
		PriceOracle: in.PriceOracle,
		PriceFeedID: feedID,
		TargetPrice: target.String(),
		ResolveDate: uint64(in.ResolveDate.Unix()),
		Question:    question,
	}, nil
}

// CreateMarket deploys a market and returns its address.
func (a *AdminPage) CreateMarket(ctx context.Context, in CreateMarketInput) (string, *types.Receipt, error) {
	sender, err := a.adminSender()
	if err != nil {
		return "", nil, err
	}
	params, err := a.BuildParams(in)
	if err != nil {
		return "", nil, err
	}
	receipt, market, err := a.factory.CreateMarket(ctx, sender, params)
	if err != nil {
		return "", receipt, err
	}
	a.logger.Info("market created",
		zap.String("market", market),
		zap.String("question", params.Question),
		zap.Uint64("resolve_date", params.ResolveDate),
		zap.String("tx_hash", receipt.TxHash.Hex()),
	)
	a.afterMutation(ctx)
	return market, receipt, nil
}

// Cancel cancels an active market.
func (a *AdminPage) Cancel(ctx context.Context, address string) (*types.Receipt, error) {
	sender, err := a.adminSender()
	if err != nil {
		return nil, err
	}
	market, err := contracts.NewMarket(address, a.caller)
	if err != nil {
		return nil, err
	}
	receipt, err := market.Cancel(ctx, sender)
	if err != nil {
		return receipt, err
	}
	a.logger.Info("market cancelled", zap.String("market", address), zap.String("tx_hash", receipt.TxHash.Hex()))
	a.afterMutation(ctx)
	return receipt, nil
}

// WithdrawLeftover moves amountText USDC of unclaimed funds to `to`.
func (a *AdminPage) WithdrawLeftover(ctx context.Context, address, amountText, to string) (*types.Receipt, error) {
	sender, err := a.adminSender()
	if err != nil {
		return nil, err
	}
	amount, err := view.ParseUSDC(amountText)
	if err != nil {
		return nil, err
	}
	recipient := sender.From()
	if strings.TrimSpace(to) != "" {
		if recipient, err = contracts.ParseAddress(to); err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
	}
	market, err := contracts.NewMarket(address, a.caller)
	if err != nil {
		return nil, err
	}
	receipt, err := market.WithdrawLeftover(ctx, sender, amount, recipient)
	if err != nil {
		return receipt, err
	}
	a.logger.Info("leftover withdrawn",
		zap.String("market", address),
		zap.String("amount", amount.String()),
		zap.String("to", recipient.Hex()),
	)
	a.afterMutation(ctx)
	return receipt, nil
}

func (a *AdminPage) adminSender() (contracts.Sender, error) {
	if a.account == nil {
		return nil, ErrNotConnected
	}
	sender := a.account.Sender()
	if sender == nil {
		return nil, ErrNotConnected
	}
	if !a.account.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return sender, nil
}

func (a *AdminPage) afterMutation(ctx context.Context) {
	if a.refresh == nil {
		return
	}
	if _, err := a.refresh.Refresh(ctx); err != nil {
		a.logger.Warn("refresh after transaction failed", zap.Error(err))
	}
}
