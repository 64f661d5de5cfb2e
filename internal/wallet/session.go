// Package wallet holds the connected account, its signer and derived state.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"losslessMarket/internal/chain"
	"losslessMarket/internal/contracts"
	"losslessMarket/internal/view"
)

const (
	ArbitrumSepoliaChainID = 421614
	ArbitrumSepoliaRPC     = "https://sepolia-rollup.arbitrum.io/rpc"
	ArbitrumSepoliaUSDC    = "0x75faf114eafb1BDbe2F0316DF893FD58CE46AA4d"
)

var (
	// ErrWrongChain is returned when the RPC endpoint serves a different network.
	ErrWrongChain = errors.New("wrong network")
	// ErrNotConnected is returned by actions that need a connected account.
	ErrNotConnected = errors.New("please connect your wallet first")
)

// Backend is what a session needs from the chain client.
type Backend interface {
	chain.TxBackend
	contracts.Caller
	GetChainID(ctx context.Context) (*big.Int, error)
}

// Config selects the target network and token.
type Config struct {
	ChainID uint64
	USDC    string
}

// State is a snapshot of the session for display.
type State struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Balance   string `json:"balance"`
	IsAdmin   bool   `json:"is_admin"`
	Error     string `json:"error,omitempty"`
}

// Session is the Go stand-in for an injected browser wallet: a local key
// bound to one network.
type Session struct {
	backend  Backend
	cfg      Config
	verifier *AdminVerifier
	logger   *zap.Logger

	mu           sync.RWMutex
	signer       *chain.Transactor
	address      common.Address
	balance      string
	connected    bool
	admin        bool
	lastErr      error
	onInvalidate func()
	txHook       chain.TxHook
}

func NewSession(backend Backend, cfg Config, verifier *AdminVerifier, logger *zap.Logger) *Session {
	if cfg.ChainID == 0 {
		cfg.ChainID = ArbitrumSepoliaChainID
	}
	if cfg.USDC == "" {
		cfg.USDC = ArbitrumSepoliaUSDC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{backend: backend, cfg: cfg, verifier: verifier, logger: logger, balance: "0"}
}

// OnInvalidate registers the callback run after a network change.
func (s *Session) OnInvalidate(fn func()) {
	s.mu.Lock()
	s.onInvalidate = fn
	s.mu.Unlock()
}

// OnTransaction registers a lifecycle hook on every signer the session creates.
func (s *Session) OnTransaction(hook chain.TxHook) {
	s.mu.Lock()
	s.txHook = hook
	if s.signer != nil {
		s.signer.SetHook(hook)
	}
	s.mu.Unlock()
}

// Connect binds the session to privateKeyHex after checking the network.
func (s *Session) Connect(ctx context.Context, privateKeyHex string) error {
	if s.backend == nil {
		return s.fail(fmt.Errorf("chain backend is nil"))
	}
	chainID, err := s.backend.GetChainID(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("get chain id: %w", err))
	}
	if !chainID.IsUint64() || chainID.Uint64() != s.cfg.ChainID {
		return s.fail(fmt.Errorf("%w: connected to chain %s, expected %d", ErrWrongChain, chainID, s.cfg.ChainID))
	}

	signer, err := chain.NewTransactor(s.backend, privateKeyHex, chainID, s.logger)
	if err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	if s.txHook != nil {
		signer.SetHook(s.txHook)
	}
	s.signer = signer
	s.address = signer.From()
	s.connected = true
	s.admin = false
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("wallet connected", zap.String("address", signer.From().Hex()), zap.Uint64("chain_id", s.cfg.ChainID))

	s.RefreshBalance(ctx)
	s.refreshAdmin(ctx)
	return nil
}

// Disconnect clears every account-derived field.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.signer = nil
	s.address = common.Address{}
	s.balance = "0"
	s.connected = false
	s.admin = false
	s.lastErr = nil
	s.mu.Unlock()
}

// AccountsChanged follows a provider account switch. Account state is always
// reset first, so a key that fails to connect leaves the session disconnected.
func (s *Session) AccountsChanged(ctx context.Context, keys []string) error {
	s.Disconnect()
	if len(keys) == 0 {
		s.logger.Info("accounts cleared, disconnecting")
		return nil
	}
	return s.Connect(ctx, keys[0])
}

// ChainChanged drops all state and asks the owner to reload.
func (s *Session) ChainChanged(chainID uint64) {
	s.logger.Info("chain changed, invalidating session", zap.Uint64("chain_id", chainID))
	s.Disconnect()
	s.mu.RLock()
	fn := s.onInvalidate
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// RefreshBalance reloads the USDC balance; a failed read shows "0".
func (s *Session) RefreshBalance(ctx context.Context) {
	s.mu.RLock()
	connected, address := s.connected, s.address
	s.mu.RUnlock()
	if !connected {
		return
	}

	balance := "0"
	token, err := contracts.NewToken(s.cfg.USDC, s.backend)
	if err == nil {
		var raw *big.Int
		raw, err = token.BalanceOf(ctx, address)
		if err == nil {
			decimals := uint8(view.USDCDecimals)
			if d, derr := token.Decimals(ctx); derr == nil {
				decimals = d
			}
			balance = view.FormatUnits(raw.String(), int32(decimals))
		}
	}
	if err != nil {
		s.logger.Warn("usdc balance read failed", zap.String("address", address.Hex()), zap.Error(err))
	}

	s.mu.Lock()
	if s.connected && s.address == address {
		s.balance = balance
	}
	s.mu.Unlock()
}

func (s *Session) refreshAdmin(ctx context.Context) {
	if s.verifier == nil {
		return
	}
	s.mu.RLock()
	address := s.address
	s.mu.RUnlock()

	admin, err := s.verifier.Verify(ctx, address.Hex())
	if err != nil {
		s.logger.Warn("admin verification failed", zap.String("address", address.Hex()), zap.Error(err))
		admin = false
	}

	s.mu.Lock()
	if s.connected && s.address == address {
		s.admin = admin
	}
	s.mu.Unlock()
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Sender returns the signer, or nil when disconnected.
func (s *Session) Sender() contracts.Sender {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return nil
	}
	return s.signer
}

func (s *Session) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address, s.connected
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

func (s *Session) USDCBalance() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{Connected: s.connected, Balance: s.balance, IsAdmin: s.admin}
	if s.connected {
		st.Address = s.address.Hex()
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}
