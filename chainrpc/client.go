// Package chainrpc exposes the capability each chain's Listener and Executor
// need from a JSON-RPC node, pulled out behind an interface so the Job Queue
// can resolve a transaction receipt (for global log index translation)
// without depending on the Listener that produced the job.
package chainrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the capability a chain RPC endpoint must provide to the core.
// The concrete implementation wraps go-ethereum's ethclient; the vendor
// library behind that client is out of this spec's scope (spec.md §1).
type Client interface {
	HeadNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64) (*ethereum.FeeHistory, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

type ethClientWrapper struct {
	client *ethclient.Client
}

var _ Client = (*ethClientWrapper)(nil)

// Dial opens a JSON-RPC connection to the given endpoint.
func Dial(endpoint string) (Client, error) {
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: failed to dial %s: %w", endpoint, err)
	}

	return &ethClientWrapper{client: client}, nil
}

func (w *ethClientWrapper) HeadNumber(ctx context.Context) (uint64, error) {
	header, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}

	return header.Number.Uint64(), nil
}

func (w *ethClientWrapper) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return w.client.FilterLogs(ctx, q)
}

func (w *ethClientWrapper) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return w.client.TransactionReceipt(ctx, txHash)
}

func (w *ethClientWrapper) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return w.client.PendingNonceAt(ctx, addr)
}

func (w *ethClientWrapper) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return w.client.SuggestGasTipCap(ctx)
}

func (w *ethClientWrapper) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return w.client.SuggestGasPrice(ctx)
}

func (w *ethClientWrapper) FeeHistory(ctx context.Context, blockCount uint64) (*ethereum.FeeHistory, error) {
	return w.client.FeeHistory(ctx, blockCount, nil, nil)
}

func (w *ethClientWrapper) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return w.client.EstimateGas(ctx, msg)
}

func (w *ethClientWrapper) ChainID(ctx context.Context) (*big.Int, error) {
	return w.client.ChainID(ctx)
}

func (w *ethClientWrapper) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return w.client.SendTransaction(ctx, tx)
}

func (w *ethClientWrapper) Close() {
	w.client.Close()
}
