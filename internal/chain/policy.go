package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
)

// CodeUnrecognizedChain is the EIP-1193 error wallets return when asked to
// switch to a chain they have not been told about.
const CodeUnrecognizedChain = 4902

// Requester is the subset of the wallet transport the policy needs.
type Requester interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Policy decides which network the deployment requires and forces a wallet onto it.
type Policy struct {
	hostname string
	hosts    map[string]int64
	addable  Network
}

func NewPolicy(hostname string, overrides map[string]int64) *Policy {
	hosts := make(map[string]int64, len(overrides))
	for host, id := range overrides {
		hosts[normalizeHost(host)] = id
	}
	return &Policy{
		hostname: normalizeHost(hostname),
		hosts:    hosts,
		addable:  Sepolia,
	}
}

// Hostname returns the deployment host this policy was built for.
func (p *Policy) Hostname() string {
	return p.hostname
}

// RequiredNetwork maps a host to the network it must run on. Hosts without a
// requirement (local development, unknown hosts) return ok=false.
func (p *Policy) RequiredNetwork(hostname string) (int64, bool) {
	host := normalizeHost(hostname)
	if id, ok := p.hosts[host]; ok && id > 0 {
		return id, true
	}
	switch {
	case host == "", host == "localhost", host == "127.0.0.1", host == "::1":
		return 0, false
	case strings.Contains(host, "sepolia"), strings.Contains(host, "testnet"):
		return SepoliaChainID, true
	default:
		return 0, false
	}
}

// Enforce returns the network the wallet is on once the requirement is met.
// A wallet that is still on another network after the switch is a fatal
// CHAIN_MISMATCH for this connection attempt.
func (p *Policy) Enforce(ctx context.Context, provider Requester, current int64) (int64, error) {
	required, ok := p.RequiredNetwork(p.hostname)
	if !ok || current == required {
		return current, nil
	}

	log := logger.With("stage", "chain", "current", current, "required", required)
	log.Info("Switching wallet network")

	_, err := provider.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": FormatHex(required)})
	if err != nil {
		if !isUnrecognizedChain(err) || required != p.addable.ChainID {
			return 0, mismatch(current, required, err)
		}
		log.Info("Wallet does not know the network, adding it", "network", p.addable.Name)
		if _, err := provider.Request(ctx, "wallet_addEthereumChain", p.addable.AddChainParams()); err != nil {
			return 0, mismatch(current, required, err)
		}
	}

	raw, err := provider.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, mismatch(current, required, err)
	}
	after, err := DecodeChainID(raw)
	if err != nil {
		return 0, mismatch(current, required, err)
	}
	if after != required {
		return 0, mismatch(after, required, nil)
	}
	return after, nil
}

func mismatch(current, required int64, cause error) error {
	msg := fmt.Sprintf("wallet is on chain %d, this deployment requires chain %d", current, required)
	return apperrors.New(apperrors.ErrChainMismatch, msg, cause)
}

type codedError interface {
	RPCCode() int
}

func isUnrecognizedChain(err error) bool {
	var coded codedError
	if errors.As(err, &coded) && coded.RPCCode() == CodeUnrecognizedChain {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unrecognized chain") || strings.Contains(msg, "unknown chain")
}

func normalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}
