package identity

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BuildSiweMessage renders an EIP-4361 message for providers that only hand
// out a nonce.
func BuildSiweMessage(origin string, d WalletDescriptor, nonce string, issuedAt time.Time) string {
	domain := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		domain = u.Host
	}
	chainID := strings.TrimPrefix(d.ChainID, "eip155:")

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n", domain)
	fmt.Fprintf(&b, "%s\n\n", d.Address)
	b.WriteString("By signing, you are proving you own this wallet and logging in.\n\n")
	fmt.Fprintf(&b, "URI: %s\n", origin)
	b.WriteString("Version: 1\n")
	fmt.Fprintf(&b, "Chain ID: %s\n", chainID)
	fmt.Fprintf(&b, "Nonce: %s\n", nonce)
	fmt.Fprintf(&b, "Issued At: %s", issuedAt.Format(time.RFC3339))
	return b.String()
}
