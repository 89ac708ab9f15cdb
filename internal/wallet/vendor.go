package wallet

import "strings"

// Vendor identifies the wallet family behind a transport.
type Vendor string

const (
	VendorUnknown  Vendor = "unknown"
	VendorMetaMask Vendor = "metamask"
	VendorCoinbase Vendor = "coinbase"
	VendorBrave    Vendor = "brave"
	VendorEmbedded Vendor = "embedded"
)

// Capabilities is what the identity provider and signing adapter need to know
// about a vendor.
type Capabilities struct {
	WalletClientType string
	ConnectorType    string
	// NativeSign means the wallet exposes its own message signing entry point
	// that should be preferred over personal_sign negotiation.
	NativeSign bool
}

var capabilities = map[Vendor]Capabilities{
	VendorUnknown:  {WalletClientType: "unknown", ConnectorType: "injected"},
	VendorMetaMask: {WalletClientType: "metamask", ConnectorType: "injected"},
	VendorCoinbase: {WalletClientType: "coinbase_wallet", ConnectorType: "coinbase_wallet"},
	VendorBrave:    {WalletClientType: "brave_wallet", ConnectorType: "injected"},
	VendorEmbedded: {WalletClientType: "privy", ConnectorType: "embedded", NativeSign: true},
}

// ParseVendor maps a configured name onto the closed vendor set. Unrecognised
// names fall back to VendorUnknown.
func ParseVendor(name string) Vendor {
	switch v := Vendor(strings.ToLower(strings.TrimSpace(name))); v {
	case VendorMetaMask, VendorCoinbase, VendorBrave, VendorEmbedded:
		return v
	case "coinbase_wallet":
		return VendorCoinbase
	case "brave_wallet":
		return VendorBrave
	default:
		return VendorUnknown
	}
}

func (v Vendor) Capabilities() Capabilities {
	if c, ok := capabilities[v]; ok {
		return c
	}
	return capabilities[VendorUnknown]
}

func (v Vendor) String() string {
	return string(v)
}
