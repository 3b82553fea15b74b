package signature

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/polymer-relay/relayer/jobstore"
)

// EncodeArgs selects a value for each of sig's parameters per spec.md
// §4.7's encoding rules and ABI-encodes them, prefixing the 4-byte
// method selector so the result is ready to use directly as a
// transaction's calldata, and returns any zero-value fallback warnings
// raised along the way.
//
// Selection order per parameter: a `bytes` parameter literally named
// `proof` pulls from proofData (failing if proofData is nil); otherwise
// a same-named entry in eventArgs is used; otherwise a type-based zero
// value is substituted and a warning recorded.
func EncodeArgs(sig *Signature, eventArgs map[string]jobstore.Value, proofData *jobstore.ProofData) ([]byte, []string, error) {
	arguments, err := sig.ABIArguments()
	if err != nil {
		return nil, nil, err
	}

	values := make([]interface{}, len(sig.Params))
	warnings := make([]string, 0)

	for i, p := range sig.Params {
		switch {
		case p.Name == "proof" && p.Type == "bytes":
			if proofData == nil {
				return nil, nil, fmt.Errorf("signature: method %s requires proof but none is attached", sig.Name)
			}

			values[i] = proofData.Proof
		case hasArg(eventArgs, p.Name):
			v, err := toABIValue(p.Type, eventArgs[p.Name])
			if err != nil {
				return nil, nil, fmt.Errorf("signature: parameter %q: %w", p.Name, err)
			}

			values[i] = v
		default:
			values[i] = zeroValue(p.Type)
			warnings = append(warnings, fmt.Sprintf("parameter %q not present in event args or proof, using zero value", p.Name))
		}
	}

	packed, err := arguments.Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("signature: could not pack arguments for %s: %w", sig.Name, err)
	}

	calldata := append(sig.Selector(), packed...)

	return calldata, warnings, nil
}

func hasArg(args map[string]jobstore.Value, name string) bool {
	_, ok := args[name]

	return ok
}

func toABIValue(typ string, v jobstore.Value) (interface{}, error) {
	switch {
	case strings.HasPrefix(typ, "uint") || strings.HasPrefix(typ, "int"):
		if v.Int == nil {
			return big.NewInt(0), nil
		}

		return v.Int, nil
	case typ == "address":
		return ethcommon.BytesToAddress(v.Bytes), nil
	case typ == "bool":
		return v.Bool, nil
	case typ == "string":
		return v.Str, nil
	case typ == "bytes":
		return v.Bytes, nil
	case strings.HasPrefix(typ, "bytes"):
		// Fixed-size bytesN packs only from a [N]byte array.
		t, err := abi.NewType(typ, "", nil)
		if err != nil {
			return nil, err
		}

		if len(v.Bytes) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit %s", len(v.Bytes), typ)
		}

		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(v.Bytes))

		return arr.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported ABI type %q", typ)
	}
}

// zeroValue produces the type-based fallback spec.md §4.7 step 2
// mandates: 0 for integers, zero-address, empty bytes (a zeroed array for
// bytesN), empty string, false.
func zeroValue(typ string) interface{} {
	switch {
	case strings.HasPrefix(typ, "uint") || strings.HasPrefix(typ, "int"):
		return big.NewInt(0)
	case typ == "address":
		return ethcommon.Address{}
	case typ == "bool":
		return false
	case typ == "string":
		return ""
	case typ != "bytes" && strings.HasPrefix(typ, "bytes"):
		if t, err := abi.NewType(typ, "", nil); err == nil {
			return reflect.New(t.GetType()).Elem().Interface()
		}

		return []byte{}
	default:
		return []byte{}
	}
}
