package identity

import (
	"errors"
	"strings"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
)

// Older provider builds only report SIWE rejections as text.
var siweRejectionText = []string{
	"invalid siwe message",
	"invalid siwe signature",
	"invalid signature",
	"siwe message",
	"signature mismatch",
}

// retryable reports whether a failed SIWE step should move on to the next
// descriptor. Structured provider codes decide when present; the text match
// is a compatibility path for providers that send none.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, apperrors.ErrSignatureFailed) || apperrors.Is(err, apperrors.ErrNoWalletProvider) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code == CodeInvalidSiweMessage || pe.Code == CodeInvalidSiweSignature
	}
	msg := strings.ToLower(err.Error())
	for _, s := range siweRejectionText {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
