package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"losslessMarket/internal/model"
)

// Market wraps a single deployed prediction market.
type Market struct {
	address common.Address
	caller  Caller
	abi     abi.ABI
}

func NewMarket(address string, caller Caller) (*Market, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	parsed, err := MarketABI()
	if err != nil {
		return nil, fmt.Errorf("parse market abi: %w", err)
	}
	return &Market{address: addr, caller: caller, abi: parsed}, nil
}

func (m *Market) Address() common.Address {
	return m.address
}

// Details reads every public field of the market.
func (m *Market) Details(ctx context.Context) (model.Market, error) {
	out := model.Market{Address: m.address.Hex()}

	addrField := func(method string, dst *string) error {
		values, err := m.call(ctx, method)
		if err != nil {
			return err
		}
		addr, err := asAddress(values[0])
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		*dst = addr.Hex()
		return nil
	}
	bigField := func(method string, dst *string) error {
		values, err := m.call(ctx, method)
		if err != nil {
			return err
		}
		n, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		*dst = n.String()
		return nil
	}
	uintField := func(method string, dst *uint64) error {
		values, err := m.call(ctx, method)
		if err != nil {
			return err
		}
		n, err := asUint64(values[0])
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		*dst = n
		return nil
	}

	for method, dst := range map[string]*string{
		"factory":  &out.Factory,
		"creator":  &out.Creator,
		"usdc":     &out.USDC,
		"aavePool": &out.LendingPool,
		"pyth":     &out.PriceOracle,
	} {
		if err := addrField(method, dst); err != nil {
			return model.Market{}, err
		}
	}
	for method, dst := range map[string]*string{
		"targetPrice":        &out.TargetPrice,
		"totalYes":           &out.TotalYes,
		"totalNo":            &out.TotalNo,
		"totalPrincipal":     &out.TotalPrincipal,
		"resolvedInterest":   &out.ResolvedInterest,
		"totalWinningStakes": &out.TotalWinningStakes,
	} {
		if err := bigField(method, dst); err != nil {
			return model.Market{}, err
		}
	}
	if err := uintField("resolveDate", &out.ResolveDate); err != nil {
		return model.Market{}, err
	}
	if err := uintField("bettingDeadline", &out.BettingDeadline); err != nil {
		return model.Market{}, err
	}

	values, err := m.call(ctx, "pythPriceId")
	if err != nil {
		return model.Market{}, err
	}
	feedID, err := asBytes32(values[0])
	if err != nil {
		return model.Market{}, fmt.Errorf("pythPriceId: %w", err)
	}
	out.PriceFeedID = hexutil.Encode(feedID[:])

	values, err = m.call(ctx, "question")
	if err != nil {
		return model.Market{}, err
	}
	question, ok := values[0].(string)
	if !ok {
		return model.Market{}, fmt.Errorf("question: unexpected type %T", values[0])
	}
	out.Question = question

	values, err = m.call(ctx, "marketState")
	if err != nil {
		return model.Market{}, err
	}
	state, err := asUint8(values[0])
	if err != nil {
		return model.Market{}, fmt.Errorf("marketState: %w", err)
	}
	out.State = model.MarketState(state)

	values, err = m.call(ctx, "winningSide")
	if err != nil {
		return model.Market{}, err
	}
	side, err := asUint8(values[0])
	if err != nil {
		return model.Market{}, fmt.Errorf("winningSide: %w", err)
	}
	out.WinningSide = model.Side(side)

	out.FetchedAt = time.Now().Unix()
	return out, nil
}

// UserStake returns the yes/no stake of account and whether it already claimed.
func (m *Market) UserStake(ctx context.Context, account common.Address) (model.UserStake, error) {
	values, err := m.call(ctx, "userStake", account)
	if err != nil {
		return model.UserStake{}, err
	}
	if len(values) != 2 {
		return model.UserStake{}, fmt.Errorf("unexpected userStake values: %d", len(values))
	}
	yes, err := asBigInt(values[0])
	if err != nil {
		return model.UserStake{}, fmt.Errorf("yesStake: %w", err)
	}
	no, err := asBigInt(values[1])
	if err != nil {
		return model.UserStake{}, fmt.Errorf("noStake: %w", err)
	}
	claimed, err := m.HasClaimed(ctx, account)
	if err != nil {
		return model.UserStake{}, err
	}
	return model.UserStake{
		Market:   m.address.Hex(),
		Account:  account.Hex(),
		YesStake: yes.String(),
		NoStake:  no.String(),
		Claimed:  claimed,
	}, nil
}

func (m *Market) HasClaimed(ctx context.Context, account common.Address) (bool, error) {
	values, err := m.call(ctx, "claimed", account)
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// TimeLeftForBetting returns the contract's view of seconds remaining.
func (m *Market) TimeLeftForBetting(ctx context.Context) (uint64, error) {
	values, err := m.call(ctx, "timeLeftForBetting")
	if err != nil {
		return 0, err
	}
	return asUint64(values[0])
}

// Totals returns (totalYes, totalNo) as decimal strings.
func (m *Market) Totals(ctx context.Context) (string, string, error) {
	values, err := m.call(ctx, "getTotals")
	if err != nil {
		return "", "", err
	}
	if len(values) != 2 {
		return "", "", fmt.Errorf("unexpected getTotals values: %d", len(values))
	}
	yes, err := asBigInt(values[0])
	if err != nil {
		return "", "", err
	}
	no, err := asBigInt(values[1])
	if err != nil {
		return "", "", err
	}
	return yes.String(), no.String(), nil
}

// UpdateFee returns the native-token fee the oracle charges for priceUpdate.
func (m *Market) UpdateFee(ctx context.Context, priceUpdate [][]byte) (*big.Int, error) {
	values, err := m.call(ctx, "getUpdateFee", priceUpdate)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// PlaceBet stakes amount raw USDC units on side. The allowance must already cover amount.
func (m *Market) PlaceBet(ctx context.Context, sender Sender, side model.Side, amount *big.Int) (*types.Receipt, error) {
	switch side {
	case model.SideYes:
		return sendMethod(ctx, sender, m.address, nil, m.abi, "placeBetYes", amount)
	case model.SideNo:
		return sendMethod(ctx, sender, m.address, nil, m.abi, "placeBetNo", amount)
	default:
		return nil, fmt.Errorf("invalid side: %s", side)
	}
}

// Resolve submits the oracle price update, paying fee as the call value.
func (m *Market) Resolve(ctx context.Context, sender Sender, priceUpdate [][]byte, fee *big.Int) (*types.Receipt, error) {
	return sendMethod(ctx, sender, m.address, fee, m.abi, "resolveMarket", priceUpdate)
}

func (m *Market) Claim(ctx context.Context, sender Sender) (*types.Receipt, error) {
	return sendMethod(ctx, sender, m.address, nil, m.abi, "claim")
}

func (m *Market) Cancel(ctx context.Context, sender Sender) (*types.Receipt, error) {
	return sendMethod(ctx, sender, m.address, nil, m.abi, "cancelMarket")
}

func (m *Market) WithdrawLeftover(ctx context.Context, sender Sender, amount *big.Int, to common.Address) (*types.Receipt, error) {
	return sendMethod(ctx, sender, m.address, nil, m.abi, "withdrawLeftover", amount, to)
}

func (m *Market) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return callMethod(ctx, m.caller, m.address, m.abi, method, args...)
}
