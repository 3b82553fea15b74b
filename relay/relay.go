// Package relay wires every component into one supervised process,
// grounded on validatorcomponents/validatorcomponents.go's
// ValidatorComponentsImpl (NewValidatorComponents, Start, Dispose,
// ErrorCh, errorHandler).
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.etcd.io/bbolt"

	"github.com/polymer-relay/relayer/api"
	"github.com/polymer-relay/relayer/chainrpc"
	"github.com/polymer-relay/relayer/chainstore"
	relayercommon "github.com/polymer-relay/relayer/common"
	"github.com/polymer-relay/relayer/config"
	"github.com/polymer-relay/relayer/executor"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/listener"
	"github.com/polymer-relay/relayer/proofclient"
	"github.com/polymer-relay/relayer/queue"
	"github.com/polymer-relay/relayer/resolver"
	"github.com/polymer-relay/relayer/signature"
	"github.com/polymer-relay/relayer/telemetry"
)

// Relay owns every long-lived component the process runs, and is the
// only thing the cli package's run command constructs directly.
type Relay struct {
	ctx context.Context

	db         *bbolt.DB
	jobStore   *jobstore.Store
	chainStore *chainstore.Store

	chainClients map[string]chainrpc.Client
	listeners    map[string]*listener.Listener
	executors    map[string]*executor.Executor

	scheduler *queue.Scheduler
	telemetry *telemetry.Telemetry
	api       *api.API
	runAPI    bool

	logger  hclog.Logger
	errorCh chan error
}

// New wires every component from cfg. Chain RPC connections are dialed
// and the shared database is opened as part of construction; nothing is
// started until Start is called.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Relay, error) {
	telemetry, err := telemetry.New(cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create telemetry: %w", err)
	}

	db, err := bbolt.Open(cfg.Database.Path, 0660, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: could not open database %s: %w", cfg.Database.Path, err)
	}

	jobStore, err := jobstore.OpenWithDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("relay: failed to open job store: %w", err)
	}

	chainStore, err := chainstore.OpenWithDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("relay: failed to open chain store: %w", err)
	}

	registry := resolver.NewRegistry()

	if err := resolver.ValidateCustomReferences(registry, resolverSpecsByMapping(cfg)); err != nil {
		db.Close()
		return nil, fmt.Errorf("relay: %w", err)
	}

	chainClients := make(map[string]chainrpc.Client, len(cfg.Chains))

	for chainName, chainConfig := range cfg.Chains {
		client, err := chainrpc.Dial(chainConfig.RPCEndpoint)
		if err != nil {
			closeAll(db, chainClients)
			return nil, fmt.Errorf("relay: failed to dial chain %q: %w", chainName, err)
		}

		chainClients[chainName] = client
	}

	destAddresses := buildDestAddresses(cfg)

	listeners := make(map[string]*listener.Listener, len(cfg.Chains))
	executors := make(map[string]*executor.Executor, len(cfg.Chains))

	for chainName, chainConfig := range cfg.Chains {
		mappings, err := mappingsForChain(cfg, chainName)
		if err != nil {
			closeAll(db, chainClients)
			return nil, fmt.Errorf("relay: failed to build mappings for chain %q: %w", chainName, err)
		}

		listenerConfig := listener.Config{
			ChainName:     chainName,
			ChainID:       chainConfig.ChainID,
			Confirmations: chainConfig.Confirmations,
			PollInterval:  time.Duration(chainConfig.PollIntervalMs) * time.Millisecond,
			Mappings:      mappings,
			DestAddresses: destAddresses,
		}

		listeners[chainName] = listener.New(
			listenerConfig, chainClients[chainName], chainStore, jobStore, registry, logger)

		wallet, err := executor.NewWallet(chainConfig.PrivateKey)
		if err != nil {
			closeAll(db, chainClients)
			return nil, fmt.Errorf("relay: failed to build wallet for chain %q: %w", chainName, err)
		}

		maxFeePerGas, err := parseWeiString(chainConfig.MaxFeePerGas)
		if err != nil {
			closeAll(db, chainClients)
			return nil, fmt.Errorf("relay: chain %q has invalid maxFeePerGas: %w", chainName, err)
		}

		maxPriorityFeePerGas, err := parseWeiString(chainConfig.MaxPriorityFeePerGas)
		if err != nil {
			closeAll(db, chainClients)
			return nil, fmt.Errorf("relay: chain %q has invalid maxPriorityFeePerGas: %w", chainName, err)
		}

		executorConfig := executor.Config{
			ChainName:            chainName,
			ChainID:              chainConfig.ChainID,
			Confirmations:        chainConfig.Confirmations,
			GasMultiplier:        chainConfig.GasMultiplier,
			MaxFeePerGas:         maxFeePerGas,
			MaxPriorityFeePerGas: maxPriorityFeePerGas,
		}

		executors[chainName] = executor.New(executorConfig, chainClients[chainName], wallet, logger)
	}

	proofClient := proofclient.New(proofclient.Config{
		BaseURL:       cfg.ProofAPI.BaseURL,
		Timeout:       time.Duration(cfg.ProofAPI.TimeoutMs) * time.Millisecond,
		RetryAttempts: cfg.ProofAPI.RetryAttempts,
		APIKey:        cfg.ProofAPI.APIKey,
	})

	scheduler := queue.New(jobStore, proofClient, chainClients, executors, logger)

	var apiObj *api.API

	if cfg.API.Enabled {
		apiObj = api.New(ctx, cfg.API, []api.Controller{
			api.NewJobsController(jobStore, logger.Named("jobs_controller")),
			api.NewChainsController(chainStore, logger.Named("chains_controller")),
			api.NewStatsController(scheduler, logger.Named("stats_controller")),
		}, logger.Named("api"))
	}

	return &Relay{
		ctx:          ctx,
		db:           db,
		jobStore:     jobStore,
		chainStore:   chainStore,
		chainClients: chainClients,
		listeners:    listeners,
		executors:    executors,
		scheduler:    scheduler,
		telemetry:    telemetry,
		api:          apiObj,
		runAPI:       cfg.API.Enabled,
		logger:       logger,
	}, nil
}

// Start brings every component up and creates the error channel that
// ErrorCh returns. It returns once every component has been told to
// start; components run
// in their own goroutines from here on.
func (r *Relay) Start() error {
	r.logger.Debug("starting relay")

	if err := r.telemetry.Start(); err != nil {
		return fmt.Errorf("relay: failed to start telemetry: %w", err)
	}

	for _, l := range r.listeners {
		go l.Start()
	}

	go r.scheduler.Start(r.ctx)

	if r.runAPI {
		go r.api.Start()
	}

	r.errorCh = make(chan error, 1)

	r.logger.Debug("started relay")

	return nil
}

// Stop disposes every component, bounding the queue's drain wait by
// ctx, per spec §5's implementation-defined drain deadline.
func (r *Relay) Stop(ctx context.Context) error {
	r.logger.Info("stopping relay")

	for _, l := range r.listeners {
		l.Dispose()
	}

	r.scheduler.Stop(ctx)

	errs := make([]error, 0)

	if r.runAPI {
		if err := r.api.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("relay: api dispose: %w", err))
		}
	}

	if err := r.telemetry.Close(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("relay: telemetry close: %w", err))
	}

	for _, client := range r.chainClients {
		client.Close()
	}

	if err := r.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("relay: database close: %w", err))
	}

	r.logger.Info("relay stopped")

	return errors.Join(errs...)
}

// ErrorCh surfaces unrecoverable component errors, mirroring
// ValidatorComponents.ErrorCh. No component currently writes to it; it
// is reserved for components that later need to report an unrecoverable
// condition instead of merely logging and retrying.
func (r *Relay) ErrorCh() <-chan error {
	return r.errorCh
}

func closeAll(db *bbolt.DB, clients map[string]chainrpc.Client) {
	for _, c := range clients {
		c.Close()
	}

	db.Close()
}

// mappingsForChain builds the Listener mappings active on chainName: one
// per enabled event mapping whose source contract is deployed on this
// chain with a source-capable role (spec §4.5, §3's `deployments.role`).
func mappingsForChain(cfg *config.Config, chainName string) ([]listener.Mapping, error) {
	var mappings []listener.Mapping

	for name, m := range cfg.EventMappings {
		if !m.Enabled {
			continue
		}

		contract, ok := cfg.Contracts[m.SourceContract]
		if !ok {
			return nil, fmt.Errorf("mapping %q references unknown source contract %q", name, m.SourceContract)
		}

		deployment, ok := contract.Deployments[chainName]
		if !ok || !deployment.Role.IsSource() {
			continue
		}

		sig, err := signature.Parse(m.SourceEvent)
		if err != nil {
			return nil, fmt.Errorf("mapping %q: %w", name, err)
		}

		resolverCfg, ok := cfg.DestinationResolvers[m.DestinationResolver]
		if !ok {
			return nil, fmt.Errorf("mapping %q references unknown resolver %q", name, m.DestinationResolver)
		}

		mappings = append(mappings, listener.Mapping{
			Name:                  name,
			SourceContractAddress: relayercommon.HexToAddress(deployment.Address),
			Signature:             sig,
			DestContract:          m.DestContract,
			DestMethod:            m.DestMethod,
			DestMethodSignature:   m.DestMethodSignature,
			ResolverName:          m.DestinationResolver,
			ResolverSpec:          toResolverSpec(resolverCfg),
			ProofRequired:         m.ProofRequired,
		})
	}

	return mappings, nil
}

// buildDestAddresses flattens every contract's per-chain deployments
// into the (contract name, chain name) → address lookup table §4.5
// destination resolution needs (listener.Config.DestAddresses).
func buildDestAddresses(cfg *config.Config) map[string]map[string]string {
	out := make(map[string]map[string]string, len(cfg.Contracts))

	for contractName, contract := range cfg.Contracts {
		perChain := make(map[string]string, len(contract.Deployments))

		for chainName, deployment := range contract.Deployments {
			perChain[chainName] = deployment.Address
		}

		out[contractName] = perChain
	}

	return out
}

// resolverSpecsByMapping converts every event mapping's referenced
// resolver into a resolver.Spec, keyed by mapping name, for
// resolver.ValidateCustomReferences's startup check.
func resolverSpecsByMapping(cfg *config.Config) map[string]resolver.Spec {
	out := make(map[string]resolver.Spec, len(cfg.EventMappings))

	for name, m := range cfg.EventMappings {
		if resolverCfg, ok := cfg.DestinationResolvers[m.DestinationResolver]; ok {
			out[name] = toResolverSpec(resolverCfg)
		}
	}

	return out
}

func toResolverSpec(rc config.ResolverConfig) resolver.Spec {
	return resolver.Spec{
		Kind:          resolver.Kind(rc.Kind),
		Destinations:  rc.Destinations,
		ParameterName: rc.ParameterName,
		Mapping:       rc.Mapping,
		FunctionID:    rc.FunctionID,
	}
}

// parseWeiString parses an optional decimal wei amount, returning nil
// (no override) for an empty string.
func parseWeiString(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}

	return v, nil
}
