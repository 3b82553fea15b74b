package signature

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polymer-relay/relayer/jobstore"
)

// DecodeLog unpacks a log against sig into the tagged-value union
// jobstore persists (DESIGN NOTES §9, "Dynamic typing of event arguments
// → tagged values"). Non-indexed parameters come from log.Data; indexed
// parameters come from log.Topics[1:]. Indexed dynamic types (string,
// bytes) are not recoverable from a topic — only their keccak256 hash is
// present — so they decode to their raw 32-byte topic value; this mirrors
// every EVM indexer's well-known limitation and is not specific to this
// relayer.
func DecodeLog(sig *Signature, log types.Log) (jobstore.EventData, error) {
	args := map[string]jobstore.Value{}

	nonIndexed := sig.NonIndexedParams()
	if len(nonIndexed) > 0 {
		arguments, err := ABIArguments(nonIndexed)
		if err != nil {
			return jobstore.EventData{}, err
		}

		values, err := arguments.Unpack(log.Data)
		if err != nil {
			return jobstore.EventData{}, fmt.Errorf("signature: could not unpack log data for %s: %w", sig.Name, err)
		}

		for i, p := range nonIndexed {
			args[p.Name] = toValue(p.Type, values[i])
		}
	}

	indexed := sig.IndexedParams()
	for i, p := range indexed {
		topicIdx := i + 1
		if topicIdx >= len(log.Topics) {
			return jobstore.EventData{}, fmt.Errorf(
				"signature: log for %s has %d topics, expected at least %d", sig.Name, len(log.Topics), topicIdx+1)
		}

		args[p.Name] = decodeTopic(p.Type, log.Topics[topicIdx])
	}

	return jobstore.EventData{
		Name:             sig.Name,
		Args:             args,
		BlockNumber:      log.BlockNumber,
		TransactionIndex: uint(log.TxIndex),
		LogIndex:         uint(log.Index),
	}, nil
}

func decodeTopic(typ string, topic common.Hash) jobstore.Value {
	switch {
	case strings.HasPrefix(typ, "uint"):
		return jobstore.NewUint(new(big.Int).SetBytes(topic.Bytes()))
	case strings.HasPrefix(typ, "int"):
		return jobstore.NewInt(new(big.Int).SetBytes(topic.Bytes()))
	case typ == "address":
		return jobstore.NewAddress(common.BytesToAddress(topic.Bytes()).Bytes())
	case typ == "bool":
		return jobstore.NewBool(topic.Bytes()[len(topic.Bytes())-1] != 0)
	default:
		return jobstore.NewBytes(topic.Bytes())
	}
}

func toValue(typ string, raw interface{}) jobstore.Value {
	switch {
	case strings.HasPrefix(typ, "uint"):
		return jobstore.NewUint(toBigInt(raw))
	case strings.HasPrefix(typ, "int"):
		return jobstore.NewInt(toBigInt(raw))
	case typ == "address":
		if addr, ok := raw.(common.Address); ok {
			return jobstore.NewAddress(addr.Bytes())
		}

		return jobstore.NewAddress(nil)
	case typ == "bool":
		b, _ := raw.(bool)

		return jobstore.NewBool(b)
	case typ == "string":
		s, _ := raw.(string)

		return jobstore.NewString(s)
	default:
		return jobstore.NewBytes(toBytes(raw))
	}
}

func toBigInt(raw interface{}) *big.Int {
	switch v := raw.(type) {
	case *big.Int:
		return v
	case uint8:
		return new(big.Int).SetUint64(uint64(v))
	case uint16:
		return new(big.Int).SetUint64(uint64(v))
	case uint32:
		return new(big.Int).SetUint64(uint64(v))
	case uint64:
		return new(big.Int).SetUint64(v)
	case int8:
		return big.NewInt(int64(v))
	case int16:
		return big.NewInt(int64(v))
	case int32:
		return big.NewInt(int64(v))
	case int64:
		return big.NewInt(v)
	default:
		return big.NewInt(0)
	}
}

func toBytes(raw interface{}) []byte {
	switch v := raw.(type) {
	case []byte:
		return v
	case [32]byte:
		return v[:]
	case [20]byte:
		return v[:]
	default:
		return nil
	}
}
