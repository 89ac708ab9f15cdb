package profile

import (
	"github.com/shopspring/decimal"
)

// Custody modes.
const (
	CustodyOperatorWallet = "operator_wallet"
	CustodyUserWallet     = "user_wallet"
	CustodyDualMode       = "dual_mode"
)

// Verification backends.
const (
	BackendEigencloudPrimary = "eigencloud_primary"
	BackendFallbackOnly      = "fallback_only"
)

// Gateway auth schemes.
const (
	SchemeBearer = "bearer"
	SchemeAPIKey = "api_key"
)

// RuntimeConfig is a validated launch profile.
type RuntimeConfig struct {
	ProfileName string `json:"profile_name"`

	ExchangeAPIURL    string `json:"exchange_api_url"`
	ExchangeWSURL     string `json:"exchange_ws_url"`
	CopySourceAddress string `json:"copy_source_address,omitempty"`

	MaxAllocationUSD       decimal.Decimal `json:"max_allocation_usd"`
	PerTradeNotionalCapUSD decimal.Decimal `json:"per_trade_notional_cap_usd"`
	MaxDailyLossUSD        decimal.Decimal `json:"max_daily_loss_usd"`
	CopyLeverage           decimal.Decimal `json:"copy_leverage"`
	MaxLeverage            decimal.Decimal `json:"max_leverage"`
	LeverageCap            decimal.Decimal `json:"leverage_cap"`
	AllowedSymbols         []string        `json:"allowed_symbols"`
	MaxOpenPositions       int             `json:"max_open_positions"`
	SlippageBps            int             `json:"slippage_bps"`

	CustodyMode           string `json:"custody_mode"`
	OperatorWalletAddress string `json:"operator_wallet_address,omitempty"`
	UserWalletAddress     string `json:"user_wallet_address,omitempty"`

	GatewayAuthKey    string `json:"gateway_auth_key"`
	GatewayAuthScheme string `json:"gateway_auth_scheme"`

	VerificationBackend         string `json:"verification_backend"`
	VerificationFallbackEnabled bool   `json:"verification_fallback_enabled"`
	VerificationEndpoint        string `json:"verification_endpoint,omitempty"`
	VerificationTimeoutSeconds  int    `json:"verification_timeout_seconds"`

	StateDir      string `json:"state_dir"`
	LogPath       string `json:"log_path"`
	SignerKeyPath string `json:"signer_key_path,omitempty"`

	PollIntervalSeconds int  `json:"poll_interval_seconds"`
	DryRun              bool `json:"dry_run"`
	ConsentAcknowledged bool `json:"consent_acknowledged"`

	frozen bool
}

// Freeze marks the config as owned by a launch session.
func (c *RuntimeConfig) Freeze() {
	c.frozen = true
}

func (c *RuntimeConfig) Frozen() bool {
	return c != nil && c.frozen
}

// Payload renders the config for the gateway with amounts as JSON numbers.
func (c *RuntimeConfig) Payload() map[string]any {
	return map[string]any{
		"profile_name":                  c.ProfileName,
		"exchange_api_url":              c.ExchangeAPIURL,
		"exchange_ws_url":               c.ExchangeWSURL,
		"copy_source_address":           c.CopySourceAddress,
		"max_allocation_usd":            c.MaxAllocationUSD.InexactFloat64(),
		"per_trade_notional_cap_usd":    c.PerTradeNotionalCapUSD.InexactFloat64(),
		"max_daily_loss_usd":            c.MaxDailyLossUSD.InexactFloat64(),
		"copy_leverage":                 c.CopyLeverage.InexactFloat64(),
		"max_leverage":                  c.MaxLeverage.InexactFloat64(),
		"leverage_cap":                  c.LeverageCap.InexactFloat64(),
		"allowed_symbols":               c.AllowedSymbols,
		"max_open_positions":            c.MaxOpenPositions,
		"slippage_bps":                  c.SlippageBps,
		"custody_mode":                  c.CustodyMode,
		"operator_wallet_address":       c.OperatorWalletAddress,
		"user_wallet_address":           c.UserWalletAddress,
		"gateway_auth_key":              c.GatewayAuthKey,
		"gateway_auth_scheme":           c.GatewayAuthScheme,
		"verification_backend":          c.VerificationBackend,
		"verification_fallback_enabled": c.VerificationFallbackEnabled,
		"verification_endpoint":         c.VerificationEndpoint,
		"verification_timeout_seconds":  c.VerificationTimeoutSeconds,
		"state_dir":                     c.StateDir,
		"log_path":                      c.LogPath,
		"signer_key_path":               c.SignerKeyPath,
		"poll_interval_seconds":         c.PollIntervalSeconds,
		"dry_run":                       c.DryRun,
		"consent_acknowledged":          c.ConsentAcknowledged,
	}
}

func usesOperatorWallet(mode string) bool {
	return mode == CustodyOperatorWallet || mode == CustodyDualMode
}

func usesUserWallet(mode string) bool {
	return mode == CustodyUserWallet || mode == CustodyDualMode
}
