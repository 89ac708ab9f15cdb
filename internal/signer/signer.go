package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces EIP-191 personal_sign signatures from a local key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key (with or without 0x).
func NewSigner(privateKeyHex string) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	if len(privateKeyHex) > 1 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return FromKey(key), nil
}

func FromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// SignPersonal signs keccak256("\x19Ethereum Signed Message:\n" + len + msg).
// The returned signature is 0x-hex with V in {27, 28}.
func (s *Signer) SignPersonal(message []byte) (string, error) {
	signature, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return "", err
	}
	if signature[64] < 27 {
		signature[64] += 27
	}
	return hexutil.Encode(signature), nil
}

func (s *Signer) Address() common.Address {
	return s.address
}
