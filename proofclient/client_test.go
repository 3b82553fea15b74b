package proofclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Config{BaseURL: server.URL, Timeout: 5 * time.Second, RetryAttempts: 3}), server
}

func decodeBody(t *testing.T, r *http.Request) rpcRequest {
	t.Helper()

	var req rpcRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

	return req
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()

	data, err := json.Marshal(result)
	require.NoError(t, err)

	require.NoError(t, json.NewEncoder(w).Encode(rpcResponse{Result: data}))
}

func TestRequestProofHappyPath(t *testing.T) {
	var polls int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeBody(t, r)

		switch req.Method {
		case "polymer_requestProof":
			writeResult(t, w, 42)
		case "polymer_queryProof":
			if atomic.AddInt32(&polls, 1) < 2 {
				writeResult(t, w, queryProofResult{Status: StatusPending})

				return
			}

			writeResult(t, w, queryProofResult{
				Status: StatusComplete,
				Proof:  base64.StdEncoding.EncodeToString([]byte{0xde, 0xad}),
			})
		}
	})

	overridePollTimings(t)

	proof, err := client.RequestProof(context.Background(), 84532, 1000, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, proof)
}

func TestRequestProofGenerationError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeBody(t, r)

		switch req.Method {
		case "polymer_requestProof":
			writeResult(t, w, 1)
		case "polymer_queryProof":
			writeResult(t, w, queryProofResult{Status: StatusError})
		}
	})

	overridePollTimings(t)

	_, err := client.RequestProof(context.Background(), 1, 1, 0)
	require.Error(t, err)

	var genErr *ProofGenerationFailed
	require.ErrorAs(t, err, &genErr)
}

func TestRequestProofPollingTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeBody(t, r)

		switch req.Method {
		case "polymer_requestProof":
			writeResult(t, w, 7)
		case "polymer_queryProof":
			writeResult(t, w, queryProofResult{Status: StatusPending})
		}
	})

	overridePollTimings(t)

	_, err := client.RequestProof(context.Background(), 1, 1, 0)
	require.Error(t, err)

	var timeoutErr *ProofPollingTimeout
	require.ErrorAs(t, err, &timeoutErr)
}

func TestRequestProofAuthHeader(t *testing.T) {
	var sawAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")

		req := decodeBody(t, r)
		if req.Method == "polymer_requestProof" {
			writeResult(t, w, 1)
		} else {
			writeResult(t, w, queryProofResult{Status: StatusComplete, Proof: base64.StdEncoding.EncodeToString([]byte{1})})
		}
	}))
	t.Cleanup(server.Close)

	client := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second, RetryAttempts: 1, APIKey: "secret"})

	overridePollTimings(t)

	_, err := client.RequestProof(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", sawAuth)
}

// overridePollTimings shrinks the poll cadence for the duration of a test
// so the fixed 2s initial delay / 500ms interval does not make the suite
// slow; restored via t.Cleanup.
func overridePollTimings(t *testing.T) {
	t.Helper()

	origDelay, origInterval := pollInitialDelay, pollInterval
	pollInitialDelay = time.Millisecond
	pollInterval = time.Millisecond

	t.Cleanup(func() {
		pollInitialDelay = origDelay
		pollInterval = origInterval
	})
}
