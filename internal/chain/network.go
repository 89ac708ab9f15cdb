package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	MainnetChainID int64 = 1
	SepoliaChainID int64 = 11155111

	caipPrefix = "eip155:"
)

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network holds the wallet_addEthereumChain parameters for a chain.
type Network struct {
	ChainID      int64
	Name         string
	RPCURLs      []string
	ExplorerURLs []string
	Currency     NativeCurrency
}

// Sepolia is the one network this client knows how to add to a wallet.
var Sepolia = Network{
	ChainID:      SepoliaChainID,
	Name:         "Sepolia",
	RPCURLs:      []string{"https://rpc.sepolia.org"},
	ExplorerURLs: []string{"https://sepolia.etherscan.io"},
	Currency:     NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
}

// AddChainParams renders the EIP-3085 payload.
func (n Network) AddChainParams() map[string]any {
	return map[string]any{
		"chainId":           FormatHex(n.ChainID),
		"chainName":         n.Name,
		"rpcUrls":           n.RPCURLs,
		"blockExplorerUrls": n.ExplorerURLs,
		"nativeCurrency":    n.Currency,
	}
}

// FormatHex renders a chain id the way wallets report it from eth_chainId.
func FormatHex(chainID int64) string {
	return hexutil.EncodeBig(big.NewInt(chainID))
}

// FormatCAIP renders "eip155:N".
func FormatCAIP(chainID int64) string {
	return caipPrefix + strconv.FormatInt(chainID, 10)
}

// ParseChainID accepts "0x1", "1" and "eip155:1".
func ParseChainID(raw string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, caipPrefix)
	if s == "" {
		return 0, fmt.Errorf("empty chain id")
	}
	if strings.HasPrefix(s, "0x") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return 0, fmt.Errorf("invalid chain id %q: %w", raw, err)
		}
		if !v.IsInt64() || v.Sign() <= 0 {
			return 0, fmt.Errorf("chain id %q out of range", raw)
		}
		return v.Int64(), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	return v, nil
}

// DecodeChainID reads an eth_chainId result, which wallets return as a JSON
// string ("0x1", sometimes "1") or occasionally as a bare number.
func DecodeChainID(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseChainID(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return n, nil
	}
	return 0, fmt.Errorf("unexpected eth_chainId result %s", string(raw))
}
