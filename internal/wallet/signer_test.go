package wallet

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

const (
	testKeyHex  = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testKeyAddr = "0x71562b71999873DB5b286dF957af199Ec94617F7"
)

func TestNewSigner(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() != common.HexToAddress(testKeyAddr) {
		t.Errorf("Address = %v, want %s", s.Address(), testKeyAddr)
	}

	prefixed, err := NewSigner("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner with 0x prefix: %v", err)
	}
	if prefixed.Address() != s.Address() {
		t.Error("0x-prefixed key derives a different address")
	}

	if _, err := NewSigner("not-a-key"); err == nil {
		t.Error("NewSigner accepted a malformed key")
	}
	if _, err := NewSigner(""); err == nil {
		t.Error("NewSigner accepted an empty key")
	}
}

func TestSignTx(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	to := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	fields := entity.TransactionFields{
		ChainID:              137,
		Nonce:                7,
		GasLimit:             1_900_000,
		MaxFeePerGas:         big.NewInt(130_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(30_000_000_000),
		To:                   to,
		Data:                 []byte{0xde, 0xad, 0xbe, 0xef},
	}

	rawHex, hash, err := s.SignTx(fields)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	if !strings.HasPrefix(rawHex, "0x02") {
		t.Errorf("raw payload = %.8s..., want 0x02 type prefix", rawHex)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(rawHex, "0x"))
	if err != nil {
		t.Fatalf("decoding raw payload: %v", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if tx.Type() != types.DynamicFeeTxType {
		t.Errorf("tx type = %d, want %d", tx.Type(), types.DynamicFeeTxType)
	}
	if tx.Hash() != hash {
		t.Errorf("hash = %v, want %v", tx.Hash(), hash)
	}
	if tx.ChainId().Uint64() != 137 {
		t.Errorf("chainID = %v, want 137", tx.ChainId())
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != 1_900_000 {
		t.Errorf("gas = %d, want 1900000", tx.Gas())
	}
	if tx.GasFeeCap().Cmp(fields.MaxFeePerGas) != 0 || tx.GasTipCap().Cmp(fields.MaxPriorityFeePerGas) != 0 {
		t.Errorf("fees = %v/%v, want %v/%v", tx.GasFeeCap(), tx.GasTipCap(), fields.MaxFeePerGas, fields.MaxPriorityFeePerGas)
	}
	if *tx.To() != to {
		t.Errorf("to = %v, want %v", tx.To(), to)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if sender != common.HexToAddress(testKeyAddr) {
		t.Errorf("recovered sender = %v, want %s", sender, testKeyAddr)
	}
}

func TestSignTx_RejectsInvertedFees(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	fields := entity.TransactionFields{
		ChainID:              137,
		GasLimit:             21_000,
		MaxFeePerGas:         big.NewInt(10),
		MaxPriorityFeePerGas: big.NewInt(20),
	}
	if _, _, err := s.SignTx(fields); err == nil {
		t.Error("SignTx accepted maxFee below priority fee")
	}
}

func TestSetAddressOverride(t *testing.T) {
	s, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	override := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	s.SetAddressOverride(override)
	if s.Address() != override {
		t.Errorf("Address = %v, want override %v", s.Address(), override)
	}

	// The override changes bookkeeping only; signatures still come from the key.
	rawHex, _, err := s.SignTx(entity.TransactionFields{
		ChainID:              137,
		GasLimit:             21_000,
		MaxFeePerGas:         big.NewInt(2),
		MaxPriorityFeePerGas: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	raw, _ := hex.DecodeString(strings.TrimPrefix(rawHex, "0x"))
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if sender != common.HexToAddress(testKeyAddr) {
		t.Errorf("recovered sender = %v, want key-derived %s", sender, testKeyAddr)
	}
}
