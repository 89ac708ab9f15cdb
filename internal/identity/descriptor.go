package identity

import (
	"strconv"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
)

// WalletDescriptor is the wallet shape sent with a SIWE init and login.
type WalletDescriptor struct {
	Address          string `json:"address"`
	ChainID          string `json:"chain_id"`
	WalletClientType string `json:"wallet_client_type"`
	ConnectorType    string `json:"connector_type"`
}

// Descriptors lists the variants to try for a wallet, vendor-specific first,
// then the generic injected shape. Each is offered with a CAIP-2 chain id and
// with the bare number. Duplicates are removed, order is kept.
func Descriptors(address string, chainID int64, vendor wallet.Vendor) []WalletDescriptor {
	caps := vendor.Capabilities()
	generic := wallet.VendorUnknown.Capabilities()
	chains := []string{chain.FormatCAIP(chainID), strconv.FormatInt(chainID, 10)}

	var out []WalletDescriptor
	seen := make(map[WalletDescriptor]bool)
	for _, c := range []wallet.Capabilities{caps, generic} {
		for _, id := range chains {
			d := WalletDescriptor{
				Address:          address,
				ChainID:          id,
				WalletClientType: c.WalletClientType,
				ConnectorType:    c.ConnectorType,
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
