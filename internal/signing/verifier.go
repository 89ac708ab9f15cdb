package signing

import (
	"context"
	"errors"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/signer"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Verifier checks that a signature over a message belongs to address. EOA
// recovery is tried first; contract wallets go through EIP-1271 when an RPC
// endpoint is configured.
type Verifier struct {
	contract *ContractVerifier
}

func NewVerifier(contract *ContractVerifier) *Verifier {
	return &Verifier{contract: contract}
}

func (v *Verifier) Verify(ctx context.Context, message, signature, address string) error {
	eoaErr := signer.VerifyPersonal([]byte(message), signature, address)
	if eoaErr == nil {
		return nil
	}
	mismatch := apperrors.New(apperrors.ErrSignatureFailed, "signature does not match wallet", eoaErr)
	if v == nil || !v.contract.Enabled() || !common.IsHexAddress(address) {
		return mismatch
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return mismatch
	}

	digest := common.BytesToHash(accounts.TextHash([]byte(message)))
	ok, err := v.contract.Verify(ctx, common.HexToAddress(address), digest, sig)
	switch {
	case errors.Is(err, ErrNotContract):
		return mismatch
	case err != nil:
		return apperrors.New(apperrors.ErrSignatureFailed, "contract wallet signature check failed", err)
	case !ok:
		return mismatch
	}
	return nil
}
