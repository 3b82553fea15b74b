// Package resolver maps an observed event to the set of chains it should
// be relayed to, per the three-variant contract of spec §4.6.
package resolver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/polymer-relay/relayer/jobstore"
)

// Kind tags which of the three resolver variants a Spec carries.
type Kind string

const (
	KindStatic         Kind = "static"
	KindEventParameter Kind = "event_parameter"
	KindCustom         Kind = "custom"
)

// Spec is the configuration-level shape of one destination resolver
// entry (spec §3, "Destination resolver specification").
type Spec struct {
	Kind Kind

	// static
	Destinations []string

	// event_parameter
	ParameterName string
	Mapping       map[string]string

	// custom
	FunctionID string
}

// Func is a registered custom resolver, invoked with the resolving
// mapping's spec, the decoded event, and the chain the event was
// observed on.
type Func func(spec Spec, event jobstore.EventData, sourceChain string) ([]string, error)

// Registry holds custom resolver functions registered at startup
// (DESIGN NOTES §9, "Custom resolvers → registered plug-ins. No dynamic
// code loading is required."). Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Func)}
}

// Register adds a custom resolver under id, overwriting any existing
// registration. Intended to be called once during wiring, before the
// core starts.
func (r *Registry) Register(id string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fns[id] = fn
}

func (r *Registry) lookup(id string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.fns[id]

	return fn, ok
}

// Resolve dispatches on spec.Kind to produce the ordered destination
// chain list for one decoded event, per spec §4.6.
func Resolve(registry *Registry, mappingName string, spec Spec, event jobstore.EventData, sourceChain string) ([]string, error) {
	switch spec.Kind {
	case KindStatic:
		return resolveStatic(spec, sourceChain), nil
	case KindEventParameter:
		return resolveEventParameter(mappingName, spec, event)
	case KindCustom:
		fn, ok := registry.lookup(spec.FunctionID)
		if !ok {
			return nil, &Error{Mapping: mappingName, Reason: fmt.Sprintf("unregistered custom resolver %q", spec.FunctionID)}
		}

		return fn(spec, event, sourceChain)
	default:
		return nil, &Error{Mapping: mappingName, Reason: fmt.Sprintf("unknown resolver kind %q", spec.Kind)}
	}
}

func resolveStatic(spec Spec, sourceChain string) []string {
	var out []string

	for _, dest := range spec.Destinations {
		if dest != sourceChain {
			out = append(out, dest)
		}
	}

	return out
}

func resolveEventParameter(mappingName string, spec Spec, event jobstore.EventData) ([]string, error) {
	value, ok := event.Args[spec.ParameterName]
	if !ok {
		return nil, &Error{
			Mapping: mappingName,
			Reason:  fmt.Sprintf("missing event parameter %q", spec.ParameterName),
		}
	}

	key := value.String()

	if spec.Mapping == nil {
		return []string{key}, nil
	}

	dest, ok := spec.Mapping[key]
	if !ok {
		return nil, &Error{
			Mapping: mappingName,
			Reason:  fmt.Sprintf("no mapping entry for parameter value %q", key),
		}
	}

	return []string{dest}, nil
}

// ValidateCustomReferences checks every custom-variant mapping's
// function_id against the registry and aggregates all unresolved
// references into one error, per spec §4.6's startup validation
// ("unresolved references are reported as a single aggregated error
// before services start"). Existence of the destination_resolver id
// itself against the configured resolver table is validated by the
// config package at load time, before specs reach this function.
func ValidateCustomReferences(registry *Registry, mappings map[string]Spec) error {
	var errs []error

	for name, spec := range mappings {
		if spec.Kind != KindCustom {
			continue
		}

		if _, ok := registry.lookup(spec.FunctionID); !ok {
			errs = append(errs, &ConfigError{Mapping: name, ResolverID: spec.FunctionID})
		}
	}

	return errors.Join(errs...)
}
