package jobstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// Kind tags the dynamic type of a decoded event argument or destination
// call parameter. Event arguments are heterogeneous (DESIGN NOTES §9,
// "Dynamic typing of event arguments → tagged values"); a closed union
// lets EncodeArgs (signature package) be a total function over its cases.
type Kind string

const (
	KindUint    Kind = "uint"
	KindInt     Kind = "int"
	KindAddress Kind = "address"
	KindBool    Kind = "bool"
	KindBytes   Kind = "bytes"
	KindString  Kind = "string"
)

// Value is one decoded/encoded argument value, tagged by Kind so it can
// be serialised to JSON without losing precision (arbitrary-precision
// integers are stringified per spec.md §3) and re-hydrated exactly.
type Value struct {
	Kind  Kind
	Int   *big.Int // KindUint, KindInt
	Bool  bool     // KindBool
	Bytes []byte   // KindBytes, KindAddress (20 bytes)
	Str   string   // KindString
}

func NewUint(v *big.Int) Value  { return Value{Kind: KindUint, Int: v} }
func NewInt(v *big.Int) Value   { return Value{Kind: KindInt, Int: v} }
func NewBool(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func NewBytes(v []byte) Value   { return Value{Kind: KindBytes, Bytes: v} }
func NewString(v string) Value  { return Value{Kind: KindString, Str: v} }
func NewAddress(v []byte) Value { return Value{Kind: KindAddress, Bytes: v} }

// String renders the value for use as a resolver lookup key: event_parameter
// resolution (spec.md §4.6) compares stringified forms.
func (v Value) String() string {
	switch v.Kind {
	case KindUint, KindInt:
		if v.Int == nil {
			return "0"
		}

		return v.Int.String()
	case KindBool:
		if v.Bool {
			return "true"
		}

		return "false"
	case KindBytes, KindAddress:
		return fmt.Sprintf("0x%x", v.Bytes)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

type jsonValue struct {
	Kind  Kind   `json:"kind"`
	Int   string `json:"int,omitempty"`
	Bool  bool   `json:"bool,omitempty"`
	Bytes string `json:"bytes,omitempty"`
	Str   string `json:"str,omitempty"`
}

// MarshalJSON stringifies big integers so arbitrary-precision values
// round-trip through the Job Store without loss (spec.md §3, §8).
func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.Kind, Bool: v.Bool, Str: v.Str}

	if v.Int != nil {
		jv.Int = v.Int.String()
	}

	if v.Bytes != nil {
		jv.Bytes = fmt.Sprintf("0x%x", v.Bytes)
	}

	return json.Marshal(jv)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}

	v.Kind = jv.Kind
	v.Bool = jv.Bool
	v.Str = jv.Str

	if jv.Int != "" {
		n, ok := new(big.Int).SetString(jv.Int, 10)
		if !ok {
			return fmt.Errorf("jobstore: invalid integer literal %q", jv.Int)
		}

		v.Int = n
	}

	if jv.Bytes != "" {
		b, err := hexDecode(jv.Bytes)
		if err != nil {
			return fmt.Errorf("jobstore: invalid bytes literal %q: %w", jv.Bytes, err)
		}

		v.Bytes = b
	}

	return nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	return hex.DecodeString(s)
}
