package executor

import (
	"math/big"

	"github.com/polymer-relay/relayer/common"
)

// mulFloatUint64 applies the same rounding rule as common.ApplyMultiplier
// to a gas limit, which go-ethereum returns as a uint64 rather than a
// *big.Int.
func mulFloatUint64(v uint64, multiplier float64) uint64 {
	return common.ApplyMultiplier(new(big.Int).SetUint64(v), multiplier).Uint64()
}
