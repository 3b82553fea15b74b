package relay

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/config"
)

// minimalConfig builds a one-chain config with no contracts, mappings or
// resolvers wired, enough for New to succeed without touching a real
// JSON-RPC endpoint: go-ethereum's ethclient.Dial does not perform any
// network I/O for an http(s) scheme, only for ws(s).
func minimalConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Chains: map[string]config.ChainConfig{
			"chainA": {
				ChainID:       1,
				RPCEndpoint:   "http://127.0.0.1:1",
				PrivateKey:    "0x4646464646464646464646464646464646464646464646464646464646464646",
				Confirmations:  1,
				GasMultiplier:  1.1,
				PollIntervalMs: 1000,
			},
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "relay.db")},
	}
}

func TestNewFailsWhenOneChainHasInvalidPrivateKey(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Chains["chainB"] = config.ChainConfig{
		ChainID:       2,
		RPCEndpoint:   "http://127.0.0.1:1",
		PrivateKey:    "not-a-valid-key",
		Confirmations: 1,
		GasMultiplier: 1.1,
	}

	r, err := New(context.Background(), cfg, hclog.NewNullLogger())

	require.Error(t, err)
	require.Nil(t, r)
}

func TestNewStartStopRoundTrip(t *testing.T) {
	cfg := minimalConfig(t)

	r, err := New(context.Background(), cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NotNil(t, r)
	require.False(t, r.runAPI)

	require.NoError(t, r.Start())

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, r.Stop(stopCtx))
}

func TestNewRejectsUnresolvedCustomResolverReference(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Contracts = map[string]config.ContractConfig{
		"widget": {
			Deployments: map[string]config.Deployment{
				"chainA": {Address: "0x1111111111111111111111111111111111111111", Role: config.RoleSource},
			},
		},
	}
	cfg.DestinationResolvers = map[string]config.ResolverConfig{
		"custom1": {Kind: config.ResolverCustom, FunctionID: "does-not-exist"},
	}
	cfg.EventMappings = map[string]config.EventMapping{
		"widgetCreated": {
			SourceContract:      "widget",
			SourceEvent:         "Created(address,uint256)",
			DestContract:        "widget",
			DestinationResolver: "custom1",
			Enabled:             true,
		},
	}

	r, err := New(context.Background(), cfg, hclog.NewNullLogger())

	require.Error(t, err)
	require.Nil(t, r)
}

func TestMappingsForChainSkipsDisabledAndNonSourceMappings(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Chains["chainB"] = config.ChainConfig{ChainID: 2, RPCEndpoint: "http://127.0.0.1:1"}
	cfg.Contracts = map[string]config.ContractConfig{
		"widget": {
			Deployments: map[string]config.Deployment{
				"chainA": {Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Role: config.RoleSource},
				"chainB": {Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Role: config.RoleDestination},
			},
		},
	}
	cfg.DestinationResolvers = map[string]config.ResolverConfig{
		"static1": {Kind: config.ResolverStatic, Destinations: []string{"chainB"}},
	}
	cfg.EventMappings = map[string]config.EventMapping{
		"enabledOnA":  {SourceContract: "widget", SourceEvent: "Created(address owner, uint256 amount)", DestContract: "widget", DestinationResolver: "static1", Enabled: true},
		"disabled":    {SourceContract: "widget", SourceEvent: "Created(address owner, uint256 amount)", DestContract: "widget", DestinationResolver: "static1", Enabled: false},
	}

	mappingsA, err := mappingsForChain(cfg, "chainA")
	require.NoError(t, err)
	require.Len(t, mappingsA, 1)
	require.Equal(t, "enabledOnA", mappingsA[0].Name)

	// chainB's deployment has a destination-only role, so the mapping
	// never becomes a source-side Listener binding there.
	mappingsB, err := mappingsForChain(cfg, "chainB")
	require.NoError(t, err)
	require.Empty(t, mappingsB)
}

func TestMappingsForChainRejectsUnknownSourceContract(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.EventMappings = map[string]config.EventMapping{
		"bad": {SourceContract: "ghost", SourceEvent: "Created(address,uint256)", Enabled: true},
	}

	_, err := mappingsForChain(cfg, "chainA")

	require.Error(t, err)
}

func TestBuildDestAddressesFlattensEveryDeploymentRegardlessOfRole(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Contracts = map[string]config.ContractConfig{
		"widget": {
			Deployments: map[string]config.Deployment{
				"chainA": {Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Role: config.RoleSource},
				"chainB": {Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Role: config.RoleDestination},
			},
		},
	}

	out := buildDestAddresses(cfg)

	require.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", out["widget"]["chainA"])
	require.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", out["widget"]["chainB"])
}

func TestResolverSpecsByMappingOnlyKeepsResolvableReferences(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.DestinationResolvers = map[string]config.ResolverConfig{
		"static1": {Kind: config.ResolverStatic, Destinations: []string{"chainA"}},
	}
	cfg.EventMappings = map[string]config.EventMapping{
		"good": {DestinationResolver: "static1"},
		"bad":  {DestinationResolver: "ghost"},
	}

	specs := resolverSpecsByMapping(cfg)

	require.Contains(t, specs, "good")
	require.NotContains(t, specs, "bad")
}

func TestParseWeiString(t *testing.T) {
	v, err := parseWeiString("")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = parseWeiString("1000000000")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000000000), v)

	_, err = parseWeiString("not-a-number")
	require.Error(t, err)
}
