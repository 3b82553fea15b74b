package chainrpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// ClientMock is a testify mock double for Client, used by listener and
// executor tests in place of a live JSON-RPC endpoint.
type ClientMock struct {
	mock.Mock
}

var _ Client = (*ClientMock)(nil)

func (m *ClientMock) HeadNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *ClientMock) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, q)

	logs, _ := args.Get(0).([]types.Log)

	return logs, args.Error(1)
}

func (m *ClientMock) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)

	receipt, _ := args.Get(0).(*types.Receipt)

	return receipt, args.Error(1)
}

func (m *ClientMock) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	args := m.Called(ctx, addr)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *ClientMock) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	tip, _ := args.Get(0).(*big.Int)

	return tip, args.Error(1)
}

func (m *ClientMock) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	price, _ := args.Get(0).(*big.Int)

	return price, args.Error(1)
}

func (m *ClientMock) FeeHistory(ctx context.Context, blockCount uint64) (*ethereum.FeeHistory, error) {
	args := m.Called(ctx, blockCount)

	history, _ := args.Get(0).(*ethereum.FeeHistory)

	return history, args.Error(1)
}

func (m *ClientMock) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *ClientMock) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	id, _ := args.Get(0).(*big.Int)

	return id, args.Error(1)
}

func (m *ClientMock) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)

	return args.Error(0)
}

func (m *ClientMock) Close() {
	m.Called()
}
