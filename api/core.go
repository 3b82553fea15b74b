package api

import "net/http"

// Config is the dashboard API's listen/CORS/auth configuration, mirroring
// the teacher's api/core.APIConfig shape.
type Config struct {
	Enabled        bool     `json:"enabled"`
	Port           uint32   `json:"port"`
	PathPrefix     string   `json:"pathPrefix"`
	AllowedHeaders []string `json:"allowedHeaders"`
	AllowedOrigins []string `json:"allowedOrigins"`
	AllowedMethods []string `json:"allowedMethods"`
	APIKeyHeader   string   `json:"apiKeyHeader"`
	APIKeys        []string `json:"apiKeys"`
}

// EndpointHandler is the handler signature every registered endpoint uses.
type EndpointHandler func(w http.ResponseWriter, r *http.Request)

// Endpoint is one controller route, mirroring the teacher's
// validatorcomponents/core.ApiEndpoint plus the APIKeyAuth flag api.go
// reads.
type Endpoint struct {
	Path       string
	Method     string
	Handler    EndpointHandler
	APIKeyAuth bool
}

// Controller groups a set of Endpoints under one path prefix, mirroring
// the teacher's validatorcomponents/core.ApiController.
type Controller interface {
	GetPathPrefix() string
	GetEndpoints() []*Endpoint
}
