package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/jobstore"
)

func TestResolveStaticExcludesSourceChain(t *testing.T) {
	spec := Spec{Kind: KindStatic, Destinations: []string{"A", "B"}}

	dests, err := Resolve(nil, "M", spec, jobstore.EventData{}, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, dests)
}

func TestResolveStaticSelfOnlyYieldsEmpty(t *testing.T) {
	spec := Spec{Kind: KindStatic, Destinations: []string{"A"}}

	dests, err := Resolve(nil, "M", spec, jobstore.EventData{}, "A")
	require.NoError(t, err)
	require.Empty(t, dests)
}

func TestResolveEventParameterWithMapping(t *testing.T) {
	spec := Spec{
		Kind:          KindEventParameter,
		ParameterName: "destinationChainId",
		Mapping:       map[string]string{"137": "polygon"},
	}

	event := jobstore.EventData{Args: map[string]jobstore.Value{
		"destinationChainId": jobstore.NewString("137"),
	}}

	dests, err := Resolve(nil, "M", spec, event, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"polygon"}, dests)
}

func TestResolveEventParameterWithoutMappingUsesRawValue(t *testing.T) {
	spec := Spec{Kind: KindEventParameter, ParameterName: "dest"}

	event := jobstore.EventData{Args: map[string]jobstore.Value{
		"dest": jobstore.NewString("chainX"),
	}}

	dests, err := Resolve(nil, "M", spec, event, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"chainX"}, dests)
}

func TestResolveEventParameterMissingParameterErrors(t *testing.T) {
	spec := Spec{Kind: KindEventParameter, ParameterName: "missing"}

	_, err := Resolve(nil, "M", spec, jobstore.EventData{}, "A")
	require.Error(t, err)

	var resolverErr *Error
	require.ErrorAs(t, err, &resolverErr)
}

func TestResolveEventParameterUnmappedValueErrors(t *testing.T) {
	spec := Spec{
		Kind:          KindEventParameter,
		ParameterName: "destinationChainId",
		Mapping:       map[string]string{"137": "polygon"},
	}

	event := jobstore.EventData{Args: map[string]jobstore.Value{
		"destinationChainId": jobstore.NewString("999"),
	}}

	_, err := Resolve(nil, "M", spec, event, "A")
	require.Error(t, err)
}

func TestResolveCustomDispatchesToRegisteredFunction(t *testing.T) {
	registry := NewRegistry()
	registry.Register("double", func(spec Spec, event jobstore.EventData, sourceChain string) ([]string, error) {
		return []string{sourceChain + "-1", sourceChain + "-2"}, nil
	})

	spec := Spec{Kind: KindCustom, FunctionID: "double"}

	dests, err := Resolve(registry, "M", spec, jobstore.EventData{}, "A")
	require.NoError(t, err)
	require.Equal(t, []string{"A-1", "A-2"}, dests)
}

func TestResolveCustomUnregisteredErrors(t *testing.T) {
	registry := NewRegistry()
	spec := Spec{Kind: KindCustom, FunctionID: "missing"}

	_, err := Resolve(registry, "M", spec, jobstore.EventData{}, "A")
	require.Error(t, err)
}

func TestValidateCustomReferencesAggregatesErrors(t *testing.T) {
	registry := NewRegistry()
	registry.Register("known", func(Spec, jobstore.EventData, string) ([]string, error) { return nil, nil })

	mappings := map[string]Spec{
		"M1": {Kind: KindCustom, FunctionID: "known"},
		"M2": {Kind: KindCustom, FunctionID: "unknown1"},
		"M3": {Kind: KindCustom, FunctionID: "unknown2"},
		"M4": {Kind: KindStatic, Destinations: []string{"A"}},
	}

	err := ValidateCustomReferences(registry, mappings)
	require.Error(t, err)
	require.ErrorContains(t, err, "unknown1")
	require.ErrorContains(t, err, "unknown2")
}
