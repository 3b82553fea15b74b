// Package telemetry wires armon/go-metrics into a Prometheus sink and
// serves it over /metrics, the same shape as the teacher's own
// telemetry package, with the DataDog collaborator dropped (spec.md §1
// scopes "metrics back-end ... process lifecycle plumbing" out of the
// core as an external collaborator, and no DataDog endpoint exists
// anywhere in this spec to drive that client against).
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	prometheusMetrics "github.com/armon/go-metrics/prometheus"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics backend, populated from the top-level
// configuration's telemetry block.
type Config struct {
	PrometheusAddr string `json:"prometheusAddr"` // empty means disabled, otherwise e.g. "0.0.0.0:9090"
}

// Telemetry owns the optional Prometheus HTTP server and the global
// armon/go-metrics sink registration.
type Telemetry struct {
	prometheusServer *http.Server
	config           Config
	logger           hclog.Logger
}

func New(config Config, logger hclog.Logger) (*Telemetry, error) {
	if err := setupMetrics(); err != nil {
		return nil, err
	}

	return &Telemetry{config: config, logger: logger}, nil
}

func (t *Telemetry) Start() error {
	if t.config.PrometheusAddr == "" {
		return nil
	}

	t.prometheusServer = setupPrometheusServer(t.config.PrometheusAddr)

	go t.startPrometheus()

	return nil
}

func (t *Telemetry) Close(ctx context.Context) error {
	if t.prometheusServer == nil {
		return nil
	}

	t.logger.Info("Prometheus server stopping", "addr", t.prometheusServer.Addr)

	return t.prometheusServer.Shutdown(ctx)
}

func (t *Telemetry) IsEnabled() bool {
	return t.config.PrometheusAddr != ""
}

func (t *Telemetry) startPrometheus() {
	t.logger.Info("Prometheus server started", "addr", t.config.PrometheusAddr)

	if err := t.prometheusServer.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("Prometheus server ListenAndServe error", "err", err)
		}
	}
}

func setupMetrics() error {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)

	promSink, err := prometheusMetrics.NewPrometheusSinkFrom(prometheusMetrics.PrometheusOpts{
		Name:       "relayer_prometheus_sink",
		Expiration: 0,
	})
	if err != nil {
		// A sink registered by an earlier New in this process is reused.
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}

		existing, ok := already.ExistingCollector.(*prometheusMetrics.PrometheusSink)
		if !ok {
			return err
		}

		promSink = existing
	}

	metricsConf := metrics.DefaultConfig("relayer")
	metricsConf.EnableHostname = false

	_, err = metrics.NewGlobal(metricsConf, metrics.FanoutSink{
		inm, promSink,
	})

	return err
}

func setupPrometheusServer(prometheusAddr string) *http.Server {
	return &http.Server{
		Addr: prometheusAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
		ReadHeaderTimeout: 60 * time.Second,
	}
}
