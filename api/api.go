// Package api serves the read-only dashboard HTTP API of spec.md §4.12:
// an explicitly out-of-core, thin shell over the Job Store, Chain Store
// and Queue, carried because the ambient observability surface the
// teacher ships is expected even where the core protocol has no opinion
// about it. Grounded verbatim on api/api.go's APIImpl (NewAPI, Start,
// Dispose, endpointWrapper, withAPIKeyAuth).
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/polymer-relay/relayer/common"
)

// apiStartDelay mirrors the teacher's fixed pre-listen delay, giving the
// OS time to release the port from a previous run.
const apiStartDelay = 5 * time.Second

type API struct {
	ctx       context.Context
	apiConfig Config
	handler   http.Handler
	server    *http.Server
	logger    hclog.Logger

	serverClosedCh chan bool
}

func New(ctx context.Context, apiConfig Config, controllers []Controller, logger hclog.Logger) *API {
	headersOk := handlers.AllowedHeaders(apiConfig.AllowedHeaders)
	originsOk := handlers.AllowedOrigins(apiConfig.AllowedOrigins)
	methodsOk := handlers.AllowedMethods(apiConfig.AllowedMethods)

	router := mux.NewRouter().StrictSlash(true)

	for _, controller := range controllers {
		controllerPathPrefix := controller.GetPathPrefix()

		for _, endpoint := range controller.GetEndpoints() {
			endpointPath := fmt.Sprintf("/%s/%s/%s", apiConfig.PathPrefix, controllerPathPrefix, endpoint.Path)

			endpointHandler := endpoint.Handler
			if endpoint.APIKeyAuth {
				endpointHandler = withAPIKeyAuth(apiConfig, endpointHandler, logger)
			}

			endpointHandler = endpointWrapper(endpoint.Path, endpointHandler, logger)

			router.HandleFunc(endpointPath, endpointHandler).Methods(endpoint.Method)

			logger.Debug("registered api endpoint", "endpoint", endpointPath, "method", endpoint.Method)
		}
	}

	return &API{
		ctx:       ctx,
		apiConfig: apiConfig,
		handler:   handlers.CORS(originsOk, headersOk, methodsOk)(router),
		logger:    logger.Named("api"),
	}
}

func (a *API) Start() {
	select {
	case <-a.ctx.Done():
		return
	case <-time.After(apiStartDelay):
	}

	a.logger.Debug("checking process on port", "port", a.apiConfig.Port, "process", formatProcessOnPort(a.apiConfig.Port))

	a.serverClosedCh = make(chan bool)

	err := common.RetryForever(a.ctx, apiStartDelay, func(ctx context.Context) error {
		a.logger.Debug("starting api")

		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.apiConfig.Port),
			Handler:           a.handler,
			ReadHeaderTimeout: 3 * time.Second,
			ConnContext:       func(context.Context, net.Conn) context.Context { return srvCtx },
			BaseContext:       func(net.Listener) context.Context { return srvCtx },
		}

		err := a.server.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		a.logger.Error("api listen failed, retrying", "port", a.apiConfig.Port, "error", err)
		a.server.Close()

		return err
	})
	if err != nil {
		a.logger.Error("api retry loop ended by context cancellation", "error", err)
	}

	a.logger.Debug("api stopped")
	a.serverClosedCh <- true
}

func (a *API) Dispose() error {
	if a.server == nil {
		return nil
	}

	var errs []error

	if err := a.server.Shutdown(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}

	select {
	case <-time.After(5 * time.Second):
		a.logger.Debug("api not closed after timeout, forcing close")

		if err := a.server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("api forced close: %w", err))
		}
	case <-a.serverClosedCh:
	}

	return errors.Join(errs...)
}

func endpointWrapper(path string, handler EndpointHandler, logger hclog.Logger) EndpointHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("endpoint called", "path", path, "url", r.URL)
		handler(w, r)
		logger.Debug("endpoint call finished", "path", path, "url", r.URL)
	}
}

func withAPIKeyAuth(apiConfig Config, handler EndpointHandler, logger hclog.Logger) EndpointHandler {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.Header.Get(apiConfig.APIKeyHeader)
		if value == "" {
			WriteUnauthorizedResponse(w, r, logger)

			return
		}

		for _, key := range apiConfig.APIKeys {
			if key == value {
				handler(w, r)

				return
			}
		}

		WriteUnauthorizedResponse(w, r, logger)
	}
}

// formatProcessOnPort shells out to lsof the way the teacher's
// utils.FormatProcessOnPort does, to name the culprit in logs when the
// port is still held by a previous run.
func formatProcessOnPort(port uint32) string {
	cmd := exec.Command("sh", "-c", fmt.Sprintf("lsof -i tcp:%d | grep LISTEN | awk '{print $2}'", port)) //nolint:gosec

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return err.Error()
	}

	return out.String()
}
