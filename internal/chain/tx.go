package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTxReverted is returned when a mined transaction has a failed status.
var ErrTxReverted = errors.New("transaction reverted")

const gasHeadroomPercent = 20

// TxBackend is the subset of Client needed to sign, send and confirm transactions.
type TxBackend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxHook observes transaction lifecycle events (submitted, confirmed, failed).
type TxHook func(txHash common.Hash, status string)

// Transactor signs EIP-1559 transactions with a local key and waits for inclusion.
type Transactor struct {
	backend      TxBackend
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	pollInterval time.Duration
	logger       *zap.Logger

	hookMu sync.RWMutex
	hook   TxHook
}

// NewTransactor builds a Transactor from a hex-encoded secp256k1 private key.
func NewTransactor(backend TxBackend, privateKeyHex string, chainID *big.Int, logger *zap.Logger) (*Transactor, error) {
	if backend == nil {
		return nil, fmt.Errorf("tx backend is nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      new(big.Int).Set(chainID),
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

// From returns the signing address.
func (t *Transactor) From() common.Address {
	return t.from
}

// SetPollInterval sets how often receipts are polled.
func (t *Transactor) SetPollInterval(d time.Duration) {
	if d > 0 {
		t.pollInterval = d
	}
}

// SetHook registers a lifecycle observer. It may be called while a send is
// in progress; later lifecycle events go to the new hook.
func (t *Transactor) SetHook(hook TxHook) {
	t.hookMu.Lock()
	t.hook = hook
	t.hookMu.Unlock()
}

// Send signs and broadcasts a call to `to` and blocks until it is mined.
func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	msg := ethereum.CallMsg{From: t.from, To: &to, Value: value, Data: data}
	gas, err := t.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * gasHeadroomPercent / 100

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	t.notify(signed.Hash(), "submitted")
	t.logger.Info("tx submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)

	receipt, err := t.WaitReceipt(ctx, signed.Hash())
	if err != nil {
		t.notify(signed.Hash(), "failed")
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.notify(signed.Hash(), "failed")
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, signed.Hash().Hex())
	}
	t.notify(signed.Hash(), "confirmed")
	t.logger.Info("tx confirmed",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// WaitReceipt polls for a receipt until it is found or ctx is done.
func (t *Transactor) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.logger.Debug("receipt poll failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *Transactor) notify(txHash common.Hash, status string) {
	t.hookMu.RLock()
	hook := t.hook
	t.hookMu.RUnlock()
	if hook != nil {
		hook(txHash, status)
	}
}
