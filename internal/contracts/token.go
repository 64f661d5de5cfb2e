package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token wraps the ERC20 stablecoin used for stakes.
type Token struct {
	address common.Address
	caller  Caller
	abi     abi.ABI
}

func NewToken(address string, caller Caller) (*Token, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Token{address: addr, caller: caller, abi: parsed}, nil
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "decimals")
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.abi, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected type %T", values[0])
	}
	return symbol, nil
}

// Approve grants spender an allowance of amount raw units.
func (t *Token) Approve(ctx context.Context, sender Sender, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return sendMethod(ctx, sender, t.address, nil, t.abi, "approve", spender, amount)
}
