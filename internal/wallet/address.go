package wallet

import (
	"regexp"
	"strings"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress trims and lowercases a 20-byte hex address. It is idempotent.
func NormalizeAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if !addressPattern.MatchString(addr) {
		return "", apperrors.New(apperrors.ErrInvalidAddress, "invalid wallet address: "+raw, nil)
	}
	return strings.ToLower(addr), nil
}

// IsAddress reports whether raw is 0x followed by 40 hex characters.
func IsAddress(raw string) bool {
	return addressPattern.MatchString(strings.TrimSpace(raw))
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
