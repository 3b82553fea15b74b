package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polymer-relay/relayer/config"
	"github.com/polymer-relay/relayer/logging"
	"github.com/polymer-relay/relayer/relay"
)

// drainDeadline bounds how long Stop waits for in-flight queue handlers
// to settle before forcing shutdown, spec §5's "implementation-defined
// drain deadline."
const drainDeadline = 30 * time.Second

type runParams struct {
	config string
}

func (p *runParams) setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.config, "config", "config.json", "path to config json file")
}

// GetRunCommand builds the `run` command: load config, wire every
// component through relay.New, start it, and block on SIGINT/SIGTERM
// before draining, mirroring cli/relayer/relayer.go's run-loop shape.
func GetRunCommand() *cobra.Command {
	params := &runParams{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "runs the relay process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(params)
		},
	}

	params.setFlags(cmd)

	return cmd
}

func runRelay(params *runParams) error {
	cfg, warnings, err := config.Load(params.config)
	if err != nil {
		return fmt.Errorf("cli: failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("cli: failed to build logger: %w", err)
	}

	for _, w := range warnings {
		logger.Warn("config warning", "warning", w)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	r, err := relay.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("cli: failed to build relay: %w", err)
	}

	if err := r.Start(); err != nil {
		return fmt.Errorf("cli: failed to start relay: %w", err)
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChannel:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-r.ErrorCh():
		logger.Error("relay reported unrecoverable error", "error", err)
	}

	cancelCtx()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), drainDeadline)
	defer cancelStop()

	return r.Stop(stopCtx)
}
