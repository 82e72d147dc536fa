package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	receipt *types.Receipt
	err     error
	head    uint64
}

func (f *fakeReader) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeReader) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

var validHash = "0x" + strings.Repeat("ab", 32)

func TestReceiptVerifier(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		reader  *fakeReader
		confirm uint64
		wantErr error
	}{
		{
			name:    "malformed hash",
			hash:    "0x1234",
			reader:  &fakeReader{},
			wantErr: ErrInvalidHash,
		},
		{
			name:    "unknown transaction",
			hash:    validHash,
			reader:  &fakeReader{err: ethereum.NotFound},
			wantErr: ErrTxNotFound,
		},
		{
			name:    "reverted",
			hash:    validHash,
			reader:  &fakeReader{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}, head: 20},
			wantErr: ErrTxFailed,
		},
		{
			name:    "too few confirmations",
			hash:    validHash,
			reader:  &fakeReader{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, head: 11},
			confirm: 5,
			wantErr: ErrNotEnoughConfirm,
		},
		{
			name:    "confirmed",
			hash:    validHash,
			reader:  &fakeReader{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, head: 14},
			confirm: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewReceiptVerifier(tt.reader, tt.confirm)
			err := v.Verify(context.Background(), nil, tt.hash)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTrustVerifierAcceptsAnything(t *testing.T) {
	require.NoError(t, TrustVerifier{}.Verify(context.Background(), nil, "not-a-hash"))
}
