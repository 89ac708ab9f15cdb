package wallet

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
)

// Connection is the result of a successful connect. Transport is the active
// handle later used for signing.
type Connection struct {
	Address   string
	ChainID   int64
	Vendor    Vendor
	Transport Transport
}

// Source acquires an account and network from a wallet transport.
type Source struct {
	transport Transport
	vendor    Vendor
	policy    *chain.Policy
}

// NewSource accepts a nil transport; Connect then reports NO_WALLET_PROVIDER.
// A nil policy skips network enforcement.
func NewSource(transport Transport, vendor Vendor, policy *chain.Policy) *Source {
	return &Source{transport: transport, vendor: vendor, policy: policy}
}

func (s *Source) Connect(ctx context.Context) (*Connection, error) {
	if s == nil || s.transport == nil {
		return nil, apperrors.New(apperrors.ErrNoWalletProvider, "no wallet provider available", nil)
	}

	raw, err := s.transport.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, apperrors.New(apperrors.ErrNoAccount, "wallet did not return an account", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil || len(accounts) == 0 {
		return nil, apperrors.New(apperrors.ErrNoAccount, "wallet did not return an account", err)
	}
	address, err := NormalizeAddress(accounts[0])
	if err != nil {
		return nil, err
	}

	raw, err = s.transport.Request(ctx, "eth_chainId")
	if err != nil {
		return nil, apperrors.New(apperrors.ErrNoWalletProvider, "wallet did not report a network", err)
	}
	chainID, err := chain.DecodeChainID(raw)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrNoWalletProvider, "wallet reported an invalid network", err)
	}

	if s.policy != nil {
		chainID, err = s.policy.Enforce(ctx, s.transport, chainID)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Wallet connected", "wallet", address, "chain_id", chainID, "vendor", s.vendor)
	return &Connection{
		Address:   address,
		ChainID:   chainID,
		Vendor:    s.vendor,
		Transport: s.transport,
	}, nil
}
