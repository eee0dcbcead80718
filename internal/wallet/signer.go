// Package wallet holds the signing key and nonce state for the agent's hot
// wallet.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

// Signer signs EIP-1559 transactions with a single private key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without the 0x prefix, and
// derives the sender address from it.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// SetAddressOverride replaces the derived sender address. The nonce and the
// profit receiver then track the override instead of the raw key.
func (s *Signer) SetAddressOverride(addr common.Address) {
	s.address = addr
}

// Address returns the transaction sender address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs the fields as a typed EIP-1559 transaction and returns the
// 0x02-prefixed raw payload hex-encoded for eth_sendRawTransaction, plus the
// transaction hash.
func (s *Signer) SignTx(fields entity.TransactionFields) (string, common.Hash, error) {
	if err := fields.Validate(); err != nil {
		return "", common.Hash{}, err
	}
	to := fields.To
	value := fields.Value
	if value == nil {
		value = new(big.Int)
	}
	inner := &types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(fields.ChainID),
		Nonce:     fields.Nonce,
		GasTipCap: fields.MaxPriorityFeePerGas,
		GasFeeCap: fields.MaxFeePerGas,
		Gas:       fields.GasLimit,
		To:        &to,
		Value:     value,
		Data:      fields.Data,
	}
	tx, err := types.SignNewTx(s.key, types.LatestSignerForChainID(inner.ChainID), inner)
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("encoding transaction: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), tx.Hash(), nil
}
