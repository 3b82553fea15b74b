package listener

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/chainrpc"
	"github.com/polymer-relay/relayer/chainstore"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/resolver"
	"github.com/polymer-relay/relayer/signature"
)

func newTestStores(t *testing.T) (*chainstore.Store, *jobstore.Store) {
	t.Helper()

	dir := t.TempDir()

	cs, err := chainstore.Open(filepath.Join(dir, "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	js, err := jobstore.Open(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { js.Close() })

	return cs, js
}

func testMapping(t *testing.T) Mapping {
	t.Helper()

	sig, err := signature.Parse("ValueSet(string indexed key, uint256 value)")
	require.NoError(t, err)

	return Mapping{
		Name:                  "M",
		SourceContractAddress: common.HexToAddress("0xaaaa"),
		Signature:             sig,
		DestContract:          "Dest",
		DestMethod:            "relay",
		DestMethodSignature:   "relay(bytes proof)",
		ResolverName:          "R",
		ResolverSpec:          resolver.Spec{Kind: resolver.KindStatic, Destinations: []string{"B"}},
		ProofRequired:         false,
	}
}

func TestTickSeedsInitialPositionOnFirstStart(t *testing.T) {
	cs, js := newTestStores(t)
	client := &chainrpc.ClientMock{}
	client.On("HeadNumber", mock.Anything).Return(uint64(100), nil)

	l := New(Config{ChainName: "A", ChainID: 1, Confirmations: 5, PollInterval: time.Second}, client, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	require.NoError(t, l.tick(context.Background()))

	last, err := cs.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(95), last)

	client.AssertExpectations(t)
}

func TestTickSkipsWhenNotEnoughNewBlocks(t *testing.T) {
	cs, js := newTestStores(t)
	require.NoError(t, cs.SetLastProcessed("A", 95))

	client := &chainrpc.ClientMock{}
	client.On("HeadNumber", mock.Anything).Return(uint64(100), nil)

	l := New(Config{ChainName: "A", ChainID: 1, Confirmations: 5, PollInterval: time.Second}, client, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	require.NoError(t, l.tick(context.Background()))

	last, err := cs.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(95), last)
}

func TestTickCapsSweepAt100Blocks(t *testing.T) {
	cs, js := newTestStores(t)
	require.NoError(t, cs.SetLastProcessed("A", 100))

	mapping := testMapping(t)

	client := &chainrpc.ClientMock{}
	client.On("HeadNumber", mock.Anything).Return(uint64(10000), nil)
	client.On("FilterLogs", mock.Anything, mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == 101 && q.ToBlock.Uint64() == 200
	})).Return([]types.Log{}, nil)

	l := New(Config{ChainName: "A", ChainID: 1, Confirmations: 0, PollInterval: time.Second, Mappings: []Mapping{mapping}},
		client, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	require.NoError(t, l.tick(context.Background()))

	last, err := cs.GetLastProcessed("A")
	require.NoError(t, err)
	require.Equal(t, uint64(200), last)
}

func TestProcessLogCreatesOneJobPerDestinationAndSkipsDuplicates(t *testing.T) {
	cs, js := newTestStores(t)
	mapping := testMapping(t)

	l := New(Config{
		ChainName: "A", ChainID: 1, Confirmations: 0, PollInterval: time.Second,
		DestAddresses: map[string]map[string]string{"Dest": {"B": "0xbbbb"}},
	}, &chainrpc.ClientMock{}, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	log := types.Log{
		Address:     mapping.SourceContractAddress,
		Topics:      []common.Hash{mapping.Signature.Topic0(), common.HexToHash("0x01")},
		Data:        packUint256(t, 42),
		BlockNumber: 150,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
	}

	require.NoError(t, l.processLog(mapping, log, 0))

	jobs, err := js.FindBySourceChain("A")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "B", jobs[0].DestChain)
	require.Equal(t, "0xbbbb", jobs[0].DestAddress)
	require.Equal(t, "A:0x000000000000000000000000000000000000000000000000000000000000dead:3:B", jobs[0].UniqueID)

	// Re-processing the identical log is a silent no-op (spec §4.5.2).
	require.NoError(t, l.processLog(mapping, log, 0))

	jobs, err = js.FindBySourceChain("A")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestProcessLogSkipsWhenResolverYieldsNoDestinations(t *testing.T) {
	cs, js := newTestStores(t)
	mapping := testMapping(t)
	mapping.ResolverSpec = resolver.Spec{Kind: resolver.KindStatic, Destinations: []string{"A"}}

	l := New(Config{ChainName: "A", ChainID: 1, Confirmations: 0, PollInterval: time.Second},
		&chainrpc.ClientMock{}, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	log := types.Log{
		Address:     mapping.SourceContractAddress,
		Topics:      []common.Hash{mapping.Signature.Topic0(), common.HexToHash("0x01")},
		Data:        packUint256(t, 42),
		BlockNumber: 150,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
	}

	require.NoError(t, l.processLog(mapping, log, 0))

	jobs, err := js.FindBySourceChain("A")
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestProcessLogSkipsWhenDestContractNotDeployedOnResolvedChain(t *testing.T) {
	cs, js := newTestStores(t)
	mapping := testMapping(t)

	l := New(Config{ChainName: "A", ChainID: 1, Confirmations: 0, PollInterval: time.Second},
		&chainrpc.ClientMock{}, cs, js, resolver.NewRegistry(), hclog.NewNullLogger())

	log := types.Log{
		Address:     mapping.SourceContractAddress,
		Topics:      []common.Hash{mapping.Signature.Topic0(), common.HexToHash("0x01")},
		Data:        packUint256(t, 42),
		BlockNumber: 150,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
	}

	require.NoError(t, l.processLog(mapping, log, 0))

	jobs, err := js.FindBySourceChain("A")
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func packUint256(t *testing.T, v int64) []byte {
	t.Helper()

	args, err := signature.ABIArguments([]signature.Param{{Type: "uint256", Name: "value"}})
	require.NoError(t, err)

	packed, err := args.Pack(big.NewInt(v))
	require.NoError(t, err)

	return packed
}
