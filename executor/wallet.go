package executor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the signing key for one chain's Executor, grounded on
// eth/txhelper/txwallet.go's EthTxWallet. Per spec §5 ("Per-chain
// signing keys are held by exactly one Executor; no cross-executor
// sharing"), exactly one Wallet is constructed per chain.
type Wallet struct {
	address    common.Address
	privateKey *ecdsa.PrivateKey
}

// NewWallet parses a hex-encoded private key, accepting an optional
// leading 0x (spec §6's `${PRIVATE_KEY}` rewrite always adds one).
func NewWallet(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")

	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("executor: invalid private key: %w", err)
	}

	return &Wallet{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs tx with a London-rules signer, matching
// EthTxWallet.SignTx.
func (w *Wallet) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewLondonSigner(chainID), w.privateKey)
}
