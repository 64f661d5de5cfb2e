package view

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	USDCDecimals        = 6
	TargetPriceDecimals = 8
)

// ErrInvalidAmount is returned for empty, non-numeric or non-positive amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a human decimal string to raw integer units. Digits
// beyond the token precision are rejected rather than rounded.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseUSDC parses a positive bet amount into 6-decimal raw units.
func ParseUSDC(value string) (*big.Int, error) {
	raw, err := ParseUnits(value, USDCDecimals)
	if err != nil {
		return nil, err
	}
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return raw, nil
}

// ParseTargetPrice parses a USD price into the 8-decimal int256 the factory expects.
func ParseTargetPrice(value string) (*big.Int, error) {
	raw, err := ParseUnits(value, TargetPriceDecimals)
	if err != nil {
		return nil, err
	}
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: target price must be positive", ErrInvalidAmount)
	}
	return raw, nil
}

// FormatUnits renders raw integer units as a decimal string. Unparseable input renders as "0".
func FormatUnits(raw string, decimals int32) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return "0"
	}
	return decimal.NewFromBigInt(n, -decimals).String()
}

func FormatUSDC(raw string) string {
	return FormatUnits(raw, USDCDecimals)
}

func FormatTargetPrice(raw string) string {
	return FormatUnits(raw, TargetPriceDecimals)
}

// YesShare returns totalYes / (totalYes + totalNo) with 4 decimal places, or
// "" when nothing is staked.
func YesShare(totalYes, totalNo string) string {
	yes := rawAmount(totalYes)
	total := new(big.Int).Add(yes, rawAmount(totalNo))
	if total.Sign() == 0 {
		return ""
	}
	return decimal.NewFromBigInt(yes, 0).DivRound(decimal.NewFromBigInt(total, 0), 4).StringFixed(4)
}
