package common

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func IsValidURL(input string) bool {
	_, err := url.ParseRequestURI(input)
	return err == nil
}

func HexToAddress(s string) common.Address {
	return common.HexToAddress(s)
}

func DecodeHex(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}

	return hex.DecodeString(s)
}

// ApplyMultiplier scales v by a rational multiplier (e.g. a configured
// gas_multiplier) and floors the result, matching the rounding rule
// spec.md §4.7 mandates for gas limit estimation.
func ApplyMultiplier(v *big.Int, multiplier float64) *big.Int {
	scaled := new(big.Float).Mul(
		new(big.Float).SetInt(v),
		big.NewFloat(multiplier),
	)

	result, _ := scaled.Int(nil)

	return result
}

// IsContextDoneErr reports whether err originates from a canceled or
// expired context, the same classification the teacher's queue and RPC
// layers use to distinguish shutdown from a genuine failure.
func IsContextDoneErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryForever calls fn on interval until it returns nil or ctx is
// canceled, grounded on the teacher's own retry-until-success use in
// validatorcomponents.go's fixChainsAndAddresses (GetAllRegisteredChains/
// GetValidatorsChainData retried with common.RetryForever). Used by the
// dashboard API's Start to tolerate a not-yet-released listen port.
func RetryForever(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	for {
		if err := fn(ctx); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
