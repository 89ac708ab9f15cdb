package identity

import (
	"context"
	"fmt"
	"strings"
)

// User is the delegated identity provider's view of the signed-in account.
type User struct {
	ID            string   `json:"id"`
	LinkedWallets []string `json:"linked_wallets"`
}

// Links reports whether address is one of the user's linked wallets.
func (u *User) Links(address string) bool {
	if u == nil {
		return false
	}
	for _, w := range u.LinkedWallets {
		if strings.EqualFold(strings.TrimSpace(w), address) {
			return true
		}
	}
	return false
}

// Provider is the delegated identity contract. CurrentUser returns nil, nil
// when there is no session.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
	InitSiwe(ctx context.Context, d WalletDescriptor) (string, error)
	LoginWithSiwe(ctx context.Context, d WalletDescriptor, message, signature string) (*User, error)
	Logout(ctx context.Context) error
	IdentityToken(ctx context.Context) (string, error)
	AccessToken(ctx context.Context) (string, error)
}

// Structured error codes the provider may return for a rejected SIWE attempt.
const (
	CodeInvalidSiweMessage   = "invalid_siwe_message"
	CodeInvalidSiweSignature = "invalid_siwe_signature"
)

// ProviderError is a failure reported by the identity provider.
type ProviderError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}
