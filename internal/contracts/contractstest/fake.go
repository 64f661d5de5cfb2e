// Package contractstest provides an in-memory factory/market/token backend
// that satisfies contracts.Caller and contracts.Sender.
package contractstest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"losslessMarket/internal/contracts"
	"losslessMarket/internal/model"
)

// ErrCallFailed is returned for markets marked as failing.
var ErrCallFailed = errors.New("execution reverted")

// Call records a write submitted through Send.
type Call struct {
	To     common.Address
	Value  *big.Int
	Method string
	Args   []interface{}
}

// Market is the mutable state of one fake market.
type Market struct {
	State    model.Market
	TimeLeft uint64
	Stakes   map[common.Address][2]*big.Int
	Claimed  map[common.Address]bool
}

// Chain is a fake chain holding one factory, one token and its markets.
type Chain struct {
	mu sync.Mutex

	FactoryAddress common.Address
	TokenAddress   common.Address
	Owner          common.Address
	Sender         common.Address
	Decimals       uint8
	UpdateFee      *big.Int

	Balances   map[common.Address]*big.Int
	Allowances map[[2]common.Address]*big.Int
	Markets    map[common.Address]*Market
	Order      []common.Address
	Failing    map[common.Address]bool

	SendErr error
	Sent    []Call

	factoryABI abi.ABI
	marketABI  abi.ABI
	erc20ABI   abi.ABI
	nonce      uint64
}

// NewChain builds an empty fake chain.
func NewChain() *Chain {
	factoryABI, err := contracts.FactoryABI()
	if err != nil {
		panic(err)
	}
	marketABI, err := contracts.MarketABI()
	if err != nil {
		panic(err)
	}
	erc20ABI, err := contracts.ERC20ABI()
	if err != nil {
		panic(err)
	}
	return &Chain{
		FactoryAddress: common.HexToAddress("0x00000000000000000000000000000000000fac70"),
		TokenAddress:   common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893FD58CE46AA4d"),
		Owner:          common.HexToAddress("0xFF65DC5C653c2A6C7C11986b06E5f45D5Ba88076"),
		Sender:         common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Decimals:       6,
		UpdateFee:      big.NewInt(1),
		Balances:       make(map[common.Address]*big.Int),
		Allowances:     make(map[[2]common.Address]*big.Int),
		Markets:        make(map[common.Address]*Market),
		Failing:        make(map[common.Address]bool),
		factoryABI:     factoryABI,
		marketABI:      marketABI,
		erc20ABI:       erc20ABI,
	}
}

// AddMarket registers a market snapshot. Missing big-int fields default to "0".
func (c *Chain) AddMarket(m model.Market, timeLeft uint64) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addMarketLocked(m, timeLeft)
}

func (c *Chain) addMarketLocked(m model.Market, timeLeft uint64) common.Address {
	addr := common.HexToAddress(m.Address)
	if m.Address == "" {
		addr = common.BigToAddress(big.NewInt(int64(0x1000 + len(c.Order))))
	}
	m.Address = addr.Hex()
	for _, field := range []*string{&m.TargetPrice, &m.TotalYes, &m.TotalNo, &m.TotalPrincipal, &m.ResolvedInterest, &m.TotalWinningStakes} {
		if *field == "" {
			*field = "0"
		}
	}
	if m.PriceFeedID == "" {
		m.PriceFeedID = hexutil.Encode(make([]byte, 32))
	}
	c.Markets[addr] = &Market{
		State:    m,
		TimeLeft: timeLeft,
		Stakes:   make(map[common.Address][2]*big.Int),
		Claimed:  make(map[common.Address]bool),
	}
	c.Order = append(c.Order, addr)
	return addr
}

// Market returns a copy of the current market snapshot.
func (c *Chain) Market(addr common.Address) model.Market {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.Markets[addr]; ok {
		return m.State
	}
	return model.Market{}
}

// SentMethods lists the method names submitted so far, in order.
func (c *Chain) SentMethods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Sent))
	for _, call := range c.Sent {
		out = append(out, call.Method)
	}
	return out
}

// CallContract implements contracts.Caller.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("invalid call")
	}
	to := *msg.To

	switch {
	case to == c.FactoryAddress:
		method, args, err := unpackCall(c.factoryABI, msg.Data)
		if err != nil {
			return nil, err
		}
		return c.factoryView(method, args)
	case to == c.TokenAddress:
		method, args, err := unpackCall(c.erc20ABI, msg.Data)
		if err != nil {
			return nil, err
		}
		return c.tokenView(method, args)
	default:
		market, ok := c.Markets[to]
		if !ok {
			return nil, fmt.Errorf("no contract at %s", to.Hex())
		}
		if c.Failing[to] {
			return nil, ErrCallFailed
		}
		method, args, err := unpackCall(c.marketABI, msg.Data)
		if err != nil {
			return nil, err
		}
		return c.marketView(market, method, args)
	}
}

// From implements contracts.Sender.
func (c *Chain) From() common.Address {
	return c.Sender
}

// Send implements contracts.Sender and applies the write to the fake state.
func (c *Chain) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return nil, c.SendErr
	}

	parsed := c.marketABI
	switch to {
	case c.FactoryAddress:
		parsed = c.factoryABI
	case c.TokenAddress:
		parsed = c.erc20ABI
	}
	method, args, err := unpackCall(parsed, data)
	if err != nil {
		return nil, err
	}
	c.Sent = append(c.Sent, Call{To: to, Value: value, Method: method.Name, Args: args})

	c.nonce++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash(big.NewInt(int64(c.nonce)).Bytes()),
		BlockNumber: big.NewInt(int64(100 + c.nonce)),
	}

	switch to {
	case c.FactoryAddress:
		return c.applyFactory(receipt, method.Name, args)
	case c.TokenAddress:
		if method.Name == "approve" {
			c.Allowances[[2]common.Address{c.Sender, args[0].(common.Address)}] = args[1].(*big.Int)
		}
		return receipt, nil
	}

	market, ok := c.Markets[to]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	switch method.Name {
	case "placeBetYes", "placeBetNo":
		amount := args[0].(*big.Int)
		key := [2]common.Address{c.Sender, to}
		allowance := c.Allowances[key]
		if allowance == nil || allowance.Cmp(amount) < 0 {
			return nil, fmt.Errorf("execution reverted: ERC20: insufficient allowance")
		}
		c.Allowances[key] = new(big.Int).Sub(allowance, amount)
		stake := market.Stakes[c.Sender]
		if stake[0] == nil {
			stake = [2]*big.Int{new(big.Int), new(big.Int)}
		}
		if method.Name == "placeBetYes" {
			stake[0] = new(big.Int).Add(stake[0], amount)
			market.State.TotalYes = addDecimal(market.State.TotalYes, amount)
		} else {
			stake[1] = new(big.Int).Add(stake[1], amount)
			market.State.TotalNo = addDecimal(market.State.TotalNo, amount)
		}
		market.Stakes[c.Sender] = stake
	case "resolveMarket":
		if value == nil || value.Cmp(c.UpdateFee) < 0 {
			return nil, fmt.Errorf("execution reverted: insufficient fee")
		}
		market.State.State = model.MarketResolved
		market.State.WinningSide = model.SideYes
	case "claim":
		market.Claimed[c.Sender] = true
	case "cancelMarket":
		market.State.State = model.MarketCancelled
	}
	return receipt, nil
}

func (c *Chain) applyFactory(receipt *types.Receipt, method string, args []interface{}) (*types.Receipt, error) {
	if method != "createMarket" {
		return receipt, nil
	}
	target := args[4].(*big.Int)
	resolveDate := args[5].(*big.Int)
	feedID := args[3].([32]byte)
	addr := c.addMarketLocked(model.Market{
		Factory:     c.FactoryAddress.Hex(),
		Creator:     c.Sender.Hex(),
		USDC:        args[0].(common.Address).Hex(),
		LendingPool: args[1].(common.Address).Hex(),
		PriceOracle: args[2].(common.Address).Hex(),
		PriceFeedID: hexutil.Encode(feedID[:]),
		TargetPrice: target.String(),
		ResolveDate: resolveDate.Uint64(),
		Question:    args[6].(string),
		State:       model.MarketActive,
	}, resolveDate.Uint64())
	receipt.Logs = []*types.Log{{
		Address: c.FactoryAddress,
		Topics: []common.Hash{
			c.factoryABI.Events["MarketCreated"].ID,
			common.BytesToHash(addr.Bytes()),
			common.BytesToHash(c.Sender.Bytes()),
		},
	}}
	return receipt, nil
}

func (c *Chain) factoryView(method abi.Method, args []interface{}) ([]byte, error) {
	switch method.Name {
	case "getAllMarkets":
		return method.Outputs.Pack(append([]common.Address(nil), c.Order...))
	case "numberOfMarkets":
		return method.Outputs.Pack(big.NewInt(int64(len(c.Order))))
	case "owner":
		return method.Outputs.Pack(c.Owner)
	default:
		return nil, fmt.Errorf("factory view %s not supported", method.Name)
	}
}

func (c *Chain) tokenView(method abi.Method, args []interface{}) ([]byte, error) {
	switch method.Name {
	case "balanceOf":
		balance := c.Balances[args[0].(common.Address)]
		if balance == nil {
			balance = new(big.Int)
		}
		return method.Outputs.Pack(balance)
	case "allowance":
		allowance := c.Allowances[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}]
		if allowance == nil {
			allowance = new(big.Int)
		}
		return method.Outputs.Pack(allowance)
	case "decimals":
		return method.Outputs.Pack(c.Decimals)
	case "symbol":
		return method.Outputs.Pack("USDC")
	default:
		return nil, fmt.Errorf("token view %s not supported", method.Name)
	}
}

func (c *Chain) marketView(market *Market, method abi.Method, args []interface{}) ([]byte, error) {
	s := market.State
	switch method.Name {
	case "factory":
		return method.Outputs.Pack(common.HexToAddress(s.Factory))
	case "creator":
		return method.Outputs.Pack(common.HexToAddress(s.Creator))
	case "usdc":
		return method.Outputs.Pack(common.HexToAddress(s.USDC))
	case "aavePool":
		return method.Outputs.Pack(common.HexToAddress(s.LendingPool))
	case "pyth":
		return method.Outputs.Pack(common.HexToAddress(s.PriceOracle))
	case "pythPriceId":
		var id [32]byte
		copy(id[:], common.FromHex(s.PriceFeedID))
		return method.Outputs.Pack(id)
	case "targetPrice":
		return method.Outputs.Pack(decimalOf(s.TargetPrice))
	case "resolveDate":
		return method.Outputs.Pack(new(big.Int).SetUint64(s.ResolveDate))
	case "bettingDeadline":
		return method.Outputs.Pack(new(big.Int).SetUint64(s.BettingDeadline))
	case "question":
		return method.Outputs.Pack(s.Question)
	case "marketState":
		return method.Outputs.Pack(uint8(s.State))
	case "winningSide":
		return method.Outputs.Pack(uint8(s.WinningSide))
	case "totalYes":
		return method.Outputs.Pack(decimalOf(s.TotalYes))
	case "totalNo":
		return method.Outputs.Pack(decimalOf(s.TotalNo))
	case "totalPrincipal":
		return method.Outputs.Pack(decimalOf(s.TotalPrincipal))
	case "resolvedInterest":
		return method.Outputs.Pack(decimalOf(s.ResolvedInterest))
	case "totalWinningStakes":
		return method.Outputs.Pack(decimalOf(s.TotalWinningStakes))
	case "timeLeftForBetting":
		return method.Outputs.Pack(new(big.Int).SetUint64(market.TimeLeft))
	case "getTotals":
		return method.Outputs.Pack(decimalOf(s.TotalYes), decimalOf(s.TotalNo))
	case "userStake":
		stake := market.Stakes[args[0].(common.Address)]
		if stake[0] == nil {
			stake = [2]*big.Int{new(big.Int), new(big.Int)}
		}
		return method.Outputs.Pack(stake[0], stake[1])
	case "claimed":
		return method.Outputs.Pack(market.Claimed[args[0].(common.Address)])
	case "getUpdateFee":
		return method.Outputs.Pack(c.UpdateFee)
	default:
		return nil, fmt.Errorf("market view %s not supported", method.Name)
	}
}

func unpackCall(parsed abi.ABI, data []byte) (abi.Method, []interface{}, error) {
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return abi.Method{}, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return abi.Method{}, nil, fmt.Errorf("unpack %s args: %w", method.Name, err)
	}
	return *method, args, nil
}

func decimalOf(value string) *big.Int {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func addDecimal(value string, delta *big.Int) string {
	return new(big.Int).Add(decimalOf(value), delta).String()
}
