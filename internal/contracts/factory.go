package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"losslessMarket/internal/model"
)

// Factory wraps the market factory contract.
type Factory struct {
	address common.Address
	caller  Caller
	abi     abi.ABI
}

// NewFactory binds a factory at address.
func NewFactory(address string, caller Caller) (*Factory, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	parsed, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	return &Factory{address: addr, caller: caller, abi: parsed}, nil
}

func (f *Factory) Address() common.Address {
	return f.address
}

// GetAllMarkets returns every market address the factory has deployed.
func (f *Factory) GetAllMarkets(ctx context.Context) ([]string, error) {
	values, err := callMethod(ctx, f.caller, f.address, f.abi, "getAllMarkets")
	if err != nil {
		return nil, err
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getAllMarkets: unexpected type %T", values[0])
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Hex())
	}
	return out, nil
}

func (f *Factory) NumberOfMarkets(ctx context.Context) (uint64, error) {
	values, err := callMethod(ctx, f.caller, f.address, f.abi, "numberOfMarkets")
	if err != nil {
		return 0, err
	}
	return asUint64(values[0])
}

func (f *Factory) Owner(ctx context.Context) (string, error) {
	values, err := callMethod(ctx, f.caller, f.address, f.abi, "owner")
	if err != nil {
		return "", err
	}
	owner, err := asAddress(values[0])
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	return owner.Hex(), nil
}

// CreateMarket deploys a market and returns the new market address taken from
// the MarketCreated event in the receipt.
func (f *Factory) CreateMarket(ctx context.Context, sender Sender, params model.CreateMarketParams) (*types.Receipt, string, error) {
	usdc, err := ParseAddress(params.USDC)
	if err != nil {
		return nil, "", fmt.Errorf("usdc: %w", err)
	}
	pool, err := ParseAddress(params.LendingPool)
	if err != nil {
		return nil, "", fmt.Errorf("lending pool: %w", err)
	}
	oracle, err := ParseAddress(params.PriceOracle)
	if err != nil {
		return nil, "", fmt.Errorf("price oracle: %w", err)
	}
	target, ok := new(big.Int).SetString(strings.TrimSpace(params.TargetPrice), 10)
	if !ok {
		return nil, "", fmt.Errorf("invalid target price: %q", params.TargetPrice)
	}
	if strings.TrimSpace(params.Question) == "" {
		return nil, "", fmt.Errorf("question is required")
	}

	receipt, err := sendMethod(ctx, sender, f.address, nil, f.abi, "createMarket",
		usdc,
		pool,
		oracle,
		params.PriceFeedID,
		target,
		new(big.Int).SetUint64(params.ResolveDate),
		params.Question,
	)
	if err != nil {
		return receipt, "", err
	}

	market, err := f.createdMarket(receipt)
	if err != nil {
		return receipt, "", err
	}
	return receipt, market, nil
}

func (f *Factory) createdMarket(receipt *types.Receipt) (string, error) {
	event := f.abi.Events["MarketCreated"]
	for _, log := range receipt.Logs {
		if log == nil || log.Address != f.address || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != event.ID {
			continue
		}
		return common.BytesToAddress(log.Topics[1].Bytes()).Hex(), nil
	}
	return "", fmt.Errorf("MarketCreated: %w", ErrEventNotFound)
}
