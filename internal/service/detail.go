package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
	"losslessMarket/internal/view"
)

// DetailSnapshot is everything the market detail view renders.
type DetailSnapshot struct {
	Market       model.Market      `json:"market"`
	Stake        model.UserStake   `json:"stake"`
	TimeLeft     int64             `json:"time_left"`
	TimeLeftText string            `json:"time_left_text"`
	Status       string            `json:"status"`
	TargetPrice  string            `json:"target_price"`
	Availability view.Availability `json:"availability"`
}

// MarketDetail drives one market: reads, bets, resolution and claims.
type MarketDetail struct {
	market  *contracts.Market
	caller  contracts.Caller
	account Account
	prices  PriceSource
	refresh Refresher
	logger  *zap.Logger
	now     func() time.Time
}

func NewMarketDetail(address string, caller contracts.Caller, account Account, prices PriceSource, logger *zap.Logger) (*MarketDetail, error) {
	market, err := contracts.NewMarket(address, caller)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDetail{
		market:  market,
		caller:  caller,
		account: account,
		prices:  prices,
		logger:  logger.With(zap.String("market", market.Address().Hex())),
		now:     time.Now,
	}, nil
}

// SetRefresher makes mutating calls also refresh refresher (usually the markets list).
func (d *MarketDetail) SetRefresher(r Refresher) {
	d.refresh = r
}

// Load reads the market, the connected account's position and time left.
// A failed stake read falls back to an empty position.
func (d *MarketDetail) Load(ctx context.Context) (DetailSnapshot, error) {
	m, err := d.market.Details(ctx)
	if err != nil {
		return DetailSnapshot{}, fmt.Errorf("market details: %w", err)
	}
	m.Symbol = view.SymbolFromQuestion(m.Question)

	stake := model.EmptyStake(m.Address)
	account, connected := d.connectedAddress()
	if connected {
		stake.Account = account.Hex()
		if s, err := d.market.UserStake(ctx, account); err == nil {
			stake = s
		} else {
			d.logger.Warn("user stake read failed", zap.String("account", account.Hex()), zap.Error(err))
		}
	}

	timeLeft := d.timeLeft(ctx, m)
	return DetailSnapshot{
		Market:       m,
		Stake:        stake,
		TimeLeft:     timeLeft,
		TimeLeftText: view.FormatTimeLeft(timeLeft),
		Status:       view.StatusText(m, timeLeft),
		TargetPrice:  view.FormatTargetPrice(m.TargetPrice),
		Availability: view.Evaluate(m, stake, timeLeft, connected, d.now()),
	}, nil
}

// TimeLeft is the 1s countdown read.
func (d *MarketDetail) TimeLeft(ctx context.Context) (int64, error) {
	left, err := d.market.TimeLeftForBetting(ctx)
	if err != nil {
		return 0, err
	}
	return int64(left), nil
}

func (d *MarketDetail) timeLeft(ctx context.Context, m model.Market) int64 {
	left, err := d.TimeLeft(ctx)
	if err == nil {
		return left
	}
	d.logger.Debug("timeLeftForBetting failed, using local clock", zap.Error(err))
	deadline := m.BettingDeadline
	if deadline == 0 {
		deadline = m.ResolveDate
	}
	return view.TimeLeft(deadline, d.now())
}

// PlaceBet validates and stakes amountText USDC on side, approving the
// market for the amount first when the allowance is short.
func (d *MarketDetail) PlaceBet(ctx context.Context, side model.Side, amountText string) (*types.Receipt, error) {
	sender := d.sender()
	if sender == nil {
		return nil, ErrNotConnected
	}
	if side != model.SideYes && side != model.SideNo {
		return nil, ErrInvalidSide
	}
	amount, err := view.ParseUSDC(amountText)
	if err != nil {
		return nil, ErrInvalidBetAmount
	}

	m, err := d.market.Details(ctx)
	if err != nil {
		return nil, fmt.Errorf("market details: %w", err)
	}
	if m.State != model.MarketActive {
		return nil, ErrMarketNotActive
	}
	if !view.BettingOpen(d.timeLeft(ctx, m)) {
		return nil, ErrBettingClosed
	}

	if err := d.ensureAllowance(ctx, sender, m.USDC, amount); err != nil {
		return nil, err
	}

	receipt, err := d.market.PlaceBet(ctx, sender, side, amount)
	if err != nil {
		return receipt, err
	}
	d.logger.Info("bet placed",
		zap.String("side", side.String()),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", receipt.TxHash.Hex()),
	)
	d.afterMutation(ctx)
	return receipt, nil
}

func (d *MarketDetail) ensureAllowance(ctx context.Context, sender contracts.Sender, usdc string, amount *big.Int) error {
	token, err := contracts.NewToken(usdc, d.caller)
	if err != nil {
		return err
	}
	allowance, err := token.Allowance(ctx, sender.From(), d.market.Address())
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	d.logger.Info("approving usdc", zap.String("amount", amount.String()), zap.String("allowance", allowance.String()))
	if _, err := token.Approve(ctx, sender, d.market.Address(), amount); err != nil {
		return fmt.Errorf("approve usdc: %w", err)
	}
	return nil
}

// Resolve fetches the oracle update for the market feed and submits it with the update fee.
func (d *MarketDetail) Resolve(ctx context.Context) (*types.Receipt, error) {
	sender := d.sender()
	if sender == nil {
		return nil, ErrNotConnected
	}
	m, err := d.market.Details(ctx)
	if err != nil {
		return nil, fmt.Errorf("market details: %w", err)
	}
	if m.State != model.MarketActive {
		return nil, ErrMarketNotActive
	}
	if d.now().Unix() < int64(m.ResolveDate) {
		return nil, ErrResolveTooEarly
	}
	if d.prices == nil {
		return nil, fmt.Errorf("price source is not configured")
	}

	update, err := d.prices.LatestPriceUpdate(ctx, m.PriceFeedID)
	if err != nil {
		return nil, fmt.Errorf("fetch price update: %w", err)
	}
	fee, err := d.market.UpdateFee(ctx, update.Data)
	if err != nil {
		return nil, fmt.Errorf("get update fee: %w", err)
	}

	receipt, err := d.market.Resolve(ctx, sender, update.Data, fee)
	if err != nil {
		return receipt, err
	}
	fields := []zap.Field{zap.String("fee", fee.String()), zap.String("tx_hash", receipt.TxHash.Hex())}
	if len(update.Prices) > 0 {
		fields = append(fields, zap.String("price", update.Prices[0].Price.String()))
	}
	d.logger.Info("market resolved", fields...)
	d.afterMutation(ctx)
	return receipt, nil
}

// Claim withdraws the account's payout. It is refused while the market is
// active or after a previous claim.
func (d *MarketDetail) Claim(ctx context.Context) (*types.Receipt, error) {
	sender := d.sender()
	if sender == nil {
		return nil, ErrNotConnected
	}
	m, err := d.market.Details(ctx)
	if err != nil {
		return nil, fmt.Errorf("market details: %w", err)
	}
	if m.State == model.MarketActive {
		return nil, ErrMarketStillActive
	}
	claimed, err := d.market.HasClaimed(ctx, sender.From())
	if err != nil {
		return nil, fmt.Errorf("read claimed: %w", err)
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	receipt, err := d.market.Claim(ctx, sender)
	if err != nil {
		return receipt, err
	}
	d.logger.Info("winnings claimed", zap.String("tx_hash", receipt.TxHash.Hex()))
	d.afterMutation(ctx)
	return receipt, nil
}

func (d *MarketDetail) afterMutation(ctx context.Context) {
	if d.refresh == nil {
		return
	}
	if _, err := d.refresh.Refresh(ctx); err != nil {
		d.logger.Warn("refresh after transaction failed", zap.Error(err))
	}
}

func (d *MarketDetail) sender() contracts.Sender {
	if d.account == nil {
		return nil
	}
	return d.account.Sender()
}

func (d *MarketDetail) connectedAddress() (common.Address, bool) {
	if d.account == nil {
		return common.Address{}, false
	}
	return d.account.Address()
}
