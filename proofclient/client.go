// Package proofclient implements the two-phase JSON-RPC proof retrieval
// protocol of spec §4.4: request a proof job, then poll it to completion.
package proofclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// pollInitialDelay and pollInterval are vars, not consts, solely so tests
// can shrink the poll cadence instead of running at real-world speed.
var (
	pollInitialDelay = 2 * time.Second
	pollInterval     = 500 * time.Millisecond
)

const pollMaxAttempts = 30

// Status is the proof job status reported by polymer_queryProof.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusPending     Status = "pending"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Config configures one Client, populated from the top-level proofApi
// configuration block (spec §6).
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	APIKey        string
}

// Client wraps the external proof service's JSON-RPC 2.0 endpoint. The
// request/response envelopes are hand-rolled encoding/json structs over
// net/http, the same pattern the teacher uses for its own out-of-ethclient
// JSON calls; there is no reusable ecosystem JSON-RPC client for a
// two-method, one-vendor protocol.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type requestProofParams struct {
	SrcChainID     int64  `json:"srcChainId"`
	SrcBlockNumber uint64 `json:"srcBlockNumber"`
	GlobalLogIndex uint   `json:"globalLogIndex"`
}

type queryProofResult struct {
	Status Status `json:"status"`
	Proof  string `json:"proof"`
}

// RequestProof drives both phases end to end: it requests a proof job for
// the given source position, then polls until the proof is ready, raising
// the typed errors of spec §4.4 on each failure mode.
func (c *Client) RequestProof(ctx context.Context, srcChainID int64, srcBlockNumber uint64, globalLogIndex uint) ([]byte, error) {
	jobID, err := c.requestProofJob(ctx, srcChainID, srcBlockNumber, globalLogIndex)
	if err != nil {
		return nil, &ProofRequestFailed{Err: err}
	}

	return c.pollProof(ctx, jobID)
}

func (c *Client) requestProofJob(ctx context.Context, srcChainID int64, srcBlockNumber uint64, globalLogIndex uint) (int64, error) {
	backoff := retry.NewExponential(1 * time.Second)

	backoff = retry.WithMaxRetries(uint64(c.cfg.RetryAttempts), backoff)

	var jobID int64

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := c.call(ctx, "polymer_requestProof", []any{requestProofParams{
			SrcChainID:     srcChainID,
			SrcBlockNumber: srcBlockNumber,
			GlobalLogIndex: globalLogIndex,
		}})
		if err != nil {
			return retry.RetryableError(err)
		}

		var raw int64

		if err := json.Unmarshal(id, &raw); err != nil {
			return retry.RetryableError(fmt.Errorf("unexpected jobID payload: %w", err))
		}

		jobID = raw

		return nil
	})

	return jobID, err
}

func (c *Client) pollProof(ctx context.Context, jobID int64) ([]byte, error) {
	select {
	case <-time.After(pollInitialDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < pollMaxAttempts; attempt++ {
		result, err := c.queryProof(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case StatusComplete:
			if result.Proof == "" {
				return nil, &ProofGenerationFailed{JobID: jobID, Message: "complete status with empty proof"}
			}

			decoded, err := base64.StdEncoding.DecodeString(result.Proof)
			if err != nil {
				return nil, fmt.Errorf("proofclient: could not decode proof: %w", err)
			}

			return decoded, nil
		case StatusError:
			return nil, &ProofGenerationFailed{JobID: jobID, Message: "proof service reported error"}
		default:
			// initialized, pending, and any unknown status continue polling,
			// per spec §4.4.
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &ProofPollingTimeout{JobID: jobID}
}

func (c *Client) queryProof(ctx context.Context, jobID int64) (queryProofResult, error) {
	raw, err := c.call(ctx, "polymer_queryProof", []any{jobID})
	if err != nil {
		return queryProofResult{}, err
	}

	var result queryProofResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return queryProofResult{}, fmt.Errorf("proofclient: unexpected queryProof payload: %w", err)
	}

	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("proofclient: could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("proofclient: could not build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proofclient: %s request failed: %w", method, err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proofclient: could not read %s response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("proofclient: could not decode %s response: %w", method, err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("proofclient: %s rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}
