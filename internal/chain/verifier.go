// Package chain checks reported payment transactions before an order is settled.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/digkill/web3analysis/internal/models"
)

var (
	ErrInvalidHash      = errors.New("malformed transaction hash")
	ErrTxNotFound       = errors.New("transaction not found on chain")
	ErrTxFailed         = errors.New("transaction reverted")
	ErrNotEnoughConfirm = errors.New("transaction not yet confirmed")
)

// Verifier decides whether txHash may settle order.
type Verifier interface {
	Verify(ctx context.Context, order *models.Order, txHash string) error
}

// TrustVerifier accepts every reported hash. Amount and recipient are not
// checked against chain state.
type TrustVerifier struct{}

func (TrustVerifier) Verify(context.Context, *models.Order, string) error {
	return nil
}

type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReceiptVerifier requires a successful receipt with enough confirmations.
type ReceiptVerifier struct {
	client        receiptReader
	confirmations uint64
}

func NewReceiptVerifier(client receiptReader, confirmations uint64) *ReceiptVerifier {
	if confirmations == 0 {
		confirmations = 1
	}
	return &ReceiptVerifier{client: client, confirmations: confirmations}
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string, confirmations uint64) (*ReceiptVerifier, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewReceiptVerifier(client, confirmations), client.Close, nil
}

func (v *ReceiptVerifier) Verify(ctx context.Context, _ *models.Order, txHash string) error {
	if !isHash(txHash) {
		return ErrInvalidHash
	}

	receipt, err := v.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTxFailed
	}

	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch block number: %w", err)
	}
	if receipt.BlockNumber == nil || head < receipt.BlockNumber.Uint64() {
		return ErrNotEnoughConfirm
	}
	if head-receipt.BlockNumber.Uint64()+1 < v.confirmations {
		return ErrNotEnoughConfirm
	}
	return nil
}

func isHash(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
