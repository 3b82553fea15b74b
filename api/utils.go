package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// ErrorResponse is the JSON body written for every non-2xx response,
// mirroring the teacher's api/model/response.ErrorResponse.
type ErrorResponse struct {
	Err string `json:"err"`
}

func WriteResponse(w http.ResponseWriter, r *http.Request, status int, response any, logger hclog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("write response error", "url", r.URL, "status", status, "error", err)
	}
}

func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, err error, logger hclog.Logger) {
	logger.Info("api error", "url", r.URL, "status", status, "error", err)

	WriteResponse(w, r, status, ErrorResponse{Err: err.Error()}, logger)
}

func WriteUnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger hclog.Logger) {
	WriteErrorResponse(w, r, http.StatusUnauthorized, errors.New("unauthorized"), logger)
}

// DecodeModel decodes r's JSON body into T, writing a bad-request
// response and returning ok=false on failure.
func DecodeModel[T any](w http.ResponseWriter, r *http.Request, logger hclog.Logger) (T, bool) {
	var body T

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteErrorResponse(w, r, http.StatusBadRequest, fmt.Errorf("bad request: %w", err), logger)

		return body, false
	}

	return body, true
}
