package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverPersonal returns the address that produced an EIP-191 signature.
func RecoverPersonal(message []byte, signature string) (common.Address, error) {
	if signature == "" {
		return common.Address{}, fmt.Errorf("signature is required")
	}
	rawSig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding")
	}
	if len(rawSig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length")
	}
	// Normalize V to 0/1 for recovery.
	if rawSig[64] >= 27 {
		rawSig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), rawSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonal checks that signature over message was produced by signerAddr.
func VerifyPersonal(message []byte, signature string, signerAddr string) error {
	if !common.IsHexAddress(signerAddr) {
		return fmt.Errorf("invalid signer address")
	}
	recovered, err := RecoverPersonal(message, signature)
	if err != nil {
		return err
	}
	if recovered != common.HexToAddress(signerAddr) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
