// Package signature parses the human-readable `Name(type1 name1, ...)`
// signatures spec.md §3 uses for both source event schemas and
// destination method schemas, and converts them to and from the
// go-ethereum ABI types the listener and executor packages pack/unpack
// against. Pulled out of the listener package so the executor can share
// the same parser and ABI plumbing without depending on listener.
package signature

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Param is one entry of a parsed event or method signature.
type Param struct {
	Type    string
	Name    string
	Indexed bool
}

// Signature is a parsed human-readable signature of the form
// `Name(type1 name1, type2 name2, ...)` (spec §3); the `indexed`
// qualifier is recognised on event parameters but is otherwise inert.
type Signature struct {
	Name   string
	Params []Param
}

// Parse parses a signature. It is grounded on the teacher's own
// run-time ABI use in eth/txhelper/txhelper.go's EstimateGas
// (bindMetadata.GetAbi() + parsed.Pack), generalized to parse from a raw
// configuration string rather than a code-generated *bind.MetaData.
func Parse(raw string) (*Signature, error) {
	raw = strings.TrimSpace(raw)

	open := strings.Index(raw, "(")
	if open < 0 || !strings.HasSuffix(raw, ")") {
		return nil, fmt.Errorf("signature: malformed signature %q", raw)
	}

	name := strings.TrimSpace(raw[:open])
	if name == "" {
		return nil, fmt.Errorf("signature: signature %q has no name", raw)
	}

	inner := strings.TrimSpace(raw[open+1 : len(raw)-1])

	var params []Param

	if inner != "" {
		for _, part := range strings.Split(inner, ",") {
			param, err := parseParam(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("signature: signature %q: %w", raw, err)
			}

			params = append(params, param)
		}
	}

	return &Signature{Name: name, Params: params}, nil
}

func parseParam(part string) (Param, error) {
	fields := strings.Fields(part)
	if len(fields) < 2 {
		return Param{}, fmt.Errorf("malformed parameter %q", part)
	}

	typ := fields[0]
	rest := fields[1:]
	indexed := false

	if rest[0] == "indexed" {
		indexed = true
		rest = rest[1:]
	}

	if len(rest) != 1 {
		return Param{}, fmt.Errorf("malformed parameter %q", part)
	}

	return Param{Type: typ, Name: rest[0], Indexed: indexed}, nil
}

// String renders the signature back to its human-readable form. Parse ∘
// String is the identity up to whitespace, per spec §8's round-trip law.
func (s *Signature) String() string {
	parts := make([]string, len(s.Params))

	for i, p := range s.Params {
		if p.Indexed {
			parts[i] = fmt.Sprintf("%s indexed %s", p.Type, p.Name)
		} else {
			parts[i] = fmt.Sprintf("%s %s", p.Type, p.Name)
		}
	}

	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(parts, ", "))
}

// canonical renders the signature in the type-only form EVM topic0
// hashing expects.
func (s *Signature) canonical() string {
	types := make([]string, len(s.Params))

	for i, p := range s.Params {
		types[i] = p.Type
	}

	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(types, ","))
}

// Topic0 is the event's log topic, the keccak256 hash of its canonical
// signature.
func (s *Signature) Topic0() common.Hash {
	return crypto.Keccak256Hash([]byte(s.canonical()))
}

// Selector is the 4-byte method selector ABI-encoded calldata is prefixed
// with, the leading bytes of Topic0's same keccak256 hash.
func (s *Signature) Selector() []byte {
	return crypto.Keccak256([]byte(s.canonical()))[:4]
}

// NonIndexedParams returns the parameters not marked `indexed`, in
// signature order.
func (s *Signature) NonIndexedParams() []Param {
	var out []Param

	for _, p := range s.Params {
		if !p.Indexed {
			out = append(out, p)
		}
	}

	return out
}

// IndexedParams returns the parameters marked `indexed`, in signature
// order.
func (s *Signature) IndexedParams() []Param {
	var out []Param

	for _, p := range s.Params {
		if p.Indexed {
			out = append(out, p)
		}
	}

	return out
}

// ABIArguments converts a list of Params into go-ethereum's
// abi.Arguments, used both to unpack log data (listener) and to encode
// destination call parameters (executor).
func ABIArguments(params []Param) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(params))

	for _, p := range params {
		t, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("signature: unsupported type %q for parameter %q: %w", p.Type, p.Name, err)
		}

		args = append(args, abi.Argument{Name: p.Name, Type: t})
	}

	return args, nil
}

// ABIArguments returns the full parameter list (indexed and not) as
// abi.Arguments, in signature order, for callers that encode rather than
// decode (the executor package's destination call).
func (s *Signature) ABIArguments() (abi.Arguments, error) {
	return ABIArguments(s.Params)
}
