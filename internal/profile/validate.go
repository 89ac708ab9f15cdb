package profile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

const (
	minAuthKeyLen = 16
	maxAuthKeyLen = 128
)

// Fields is an unvalidated profile as drafted by the user or the suggestion
// endpoint. Keys are snake_case field names.
type Fields map[string]any

// Validate checks every invariant in a fixed order and reports the first
// violation only. boundWallet is the wallet bound to the identity session.
func Validate(fields Fields, boundWallet string) (*RuntimeConfig, error) {
	cfg, err := validate(fields, boundWallet)
	if err != nil {
		if appErr := apperrors.Wrap(err); appErr.Field != "" {
			metrics.ValidationRejects.WithLabelValues(appErr.Field).Inc()
		}
		return nil, err
	}
	return cfg, nil
}

func validate(f Fields, boundWallet string) (*RuntimeConfig, error) {
	cfg, err := parse(f)
	if err != nil {
		return nil, err
	}

	// Wallet fields are checked for shape before any business rule.
	for _, w := range []struct {
		field string
		value *string
	}{
		{"operator_wallet_address", &cfg.OperatorWalletAddress},
		{"user_wallet_address", &cfg.UserWalletAddress},
		{"copy_source_address", &cfg.CopySourceAddress},
	} {
		if *w.value == "" {
			continue
		}
		norm, err := wallet.NormalizeAddress(*w.value)
		if err != nil {
			return nil, invalid(w.field, "%s must be 0x followed by 40 hex characters", w.field)
		}
		*w.value = norm
	}

	bound := ""
	if strings.TrimSpace(boundWallet) != "" {
		norm, err := wallet.NormalizeAddress(boundWallet)
		if err != nil {
			return nil, err
		}
		bound = norm
	}
	if cfg.UserWalletAddress == "" {
		cfg.UserWalletAddress = bound
	}

	if cfg.PerTradeNotionalCapUSD.GreaterThan(cfg.MaxAllocationUSD) {
		return nil, invalid("per_trade_notional_cap_usd", "per_trade_notional_cap_usd (%s) must not exceed max_allocation_usd (%s)",
			cfg.PerTradeNotionalCapUSD, cfg.MaxAllocationUSD)
	}
	if cfg.CopyLeverage.GreaterThan(cfg.LeverageCap) {
		return nil, invalid("copy_leverage", "copy_leverage (%s) must not exceed leverage_cap (%s)", cfg.CopyLeverage, cfg.LeverageCap)
	}
	if cfg.MaxLeverage.GreaterThan(cfg.LeverageCap) {
		return nil, invalid("max_leverage", "max_leverage (%s) must not exceed leverage_cap (%s)", cfg.MaxLeverage, cfg.LeverageCap)
	}
	if len(cfg.AllowedSymbols) == 0 {
		return nil, invalid("allowed_symbols", "allowed_symbols must list at least one symbol")
	}
	switch cfg.CustodyMode {
	case CustodyOperatorWallet, CustodyUserWallet, CustodyDualMode:
	default:
		return nil, invalid("custody_mode", "custody_mode must be one of operator_wallet, user_wallet, dual_mode")
	}
	if usesOperatorWallet(cfg.CustodyMode) && cfg.OperatorWalletAddress == "" {
		return nil, invalid("operator_wallet_address", "operator_wallet_address is required for custody_mode %s", cfg.CustodyMode)
	}
	if usesUserWallet(cfg.CustodyMode) {
		if cfg.UserWalletAddress == "" {
			return nil, invalid("user_wallet_address", "user_wallet_address is required for custody_mode %s", cfg.CustodyMode)
		}
		if bound != "" && cfg.UserWalletAddress != bound {
			return nil, invalid("user_wallet_address", "user_wallet_address must match the connected wallet %s", bound)
		}
	}
	if n := utf8.RuneCountInString(cfg.GatewayAuthKey); n < minAuthKeyLen || n > maxAuthKeyLen {
		return nil, invalid("gateway_auth_key", "gateway_auth_key must be between %d and %d characters", minAuthKeyLen, maxAuthKeyLen)
	}
	if strings.IndexFunc(cfg.GatewayAuthKey, unicode.IsSpace) >= 0 {
		return nil, invalid("gateway_auth_key", "gateway_auth_key must not contain whitespace")
	}
	switch cfg.VerificationBackend {
	case BackendEigencloudPrimary, BackendFallbackOnly:
	default:
		return nil, invalid("verification_backend", "verification_backend must be eigencloud_primary or fallback_only")
	}
	if cfg.VerificationBackend == BackendFallbackOnly && !cfg.VerificationFallbackEnabled {
		return nil, invalid("verification_fallback_enabled", "verification_fallback_enabled must be true when verification_backend is fallback_only")
	}
	switch cfg.GatewayAuthScheme {
	case SchemeBearer, SchemeAPIKey:
	default:
		return nil, invalid("gateway_auth_scheme", "gateway_auth_scheme must be bearer or api_key")
	}
	for _, p := range []struct{ field, value string }{
		{"state_dir", cfg.StateDir},
		{"log_path", cfg.LogPath},
		{"signer_key_path", cfg.SignerKeyPath},
		{"exchange_api_url", cfg.ExchangeAPIURL},
		{"exchange_ws_url", cfg.ExchangeWSURL},
		{"verification_endpoint", cfg.VerificationEndpoint},
	} {
		if strings.ContainsAny(p.value, "\r\n") {
			return nil, invalid(p.field, "%s must not contain newline characters", p.field)
		}
	}
	if !cfg.ConsentAcknowledged {
		return nil, invalid("consent_acknowledged", "consent_acknowledged must be true")
	}
	return cfg, nil
}

func invalid(field, format string, args ...any) error {
	return apperrors.NewValidation(field, fmt.Sprintf(format, args...))
}

// parse coerces raw values into typed fields. Path-like fields are kept
// verbatim apart from surrounding spaces.
func parse(f Fields) (*RuntimeConfig, error) {
	p := &parser{f: f}
	cfg := &RuntimeConfig{
		ProfileName:       p.text("profile_name"),
		ExchangeAPIURL:    p.path("exchange_api_url"),
		ExchangeWSURL:     p.path("exchange_ws_url"),
		CopySourceAddress: p.text("copy_source_address"),

		MaxAllocationUSD:       p.amount("max_allocation_usd"),
		PerTradeNotionalCapUSD: p.amount("per_trade_notional_cap_usd"),
		MaxDailyLossUSD:        p.amount("max_daily_loss_usd"),
		CopyLeverage:           p.amount("copy_leverage"),
		MaxLeverage:            p.amount("max_leverage"),
		LeverageCap:            p.amount("leverage_cap"),
		AllowedSymbols:         p.symbols("allowed_symbols"),
		MaxOpenPositions:       p.count("max_open_positions"),
		SlippageBps:            p.count("slippage_bps"),

		CustodyMode:           strings.ToLower(p.text("custody_mode")),
		OperatorWalletAddress: p.text("operator_wallet_address"),
		UserWalletAddress:     p.text("user_wallet_address"),

		GatewayAuthKey:    p.raw("gateway_auth_key"),
		GatewayAuthScheme: strings.ToLower(p.text("gateway_auth_scheme")),

		VerificationBackend:         strings.ToLower(p.text("verification_backend")),
		VerificationFallbackEnabled: p.flag("verification_fallback_enabled"),
		VerificationEndpoint:        p.path("verification_endpoint"),
		VerificationTimeoutSeconds:  p.count("verification_timeout_seconds"),

		StateDir:      p.path("state_dir"),
		LogPath:       p.path("log_path"),
		SignerKeyPath: p.path("signer_key_path"),

		PollIntervalSeconds: p.count("poll_interval_seconds"),
		DryRun:              p.flag("dry_run"),
		ConsentAcknowledged: p.flag("consent_acknowledged"),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// parser records the first coercion failure and ignores later ones.
type parser struct {
	f   Fields
	err error
}

func (p *parser) fail(field, format string, args ...any) {
	if p.err == nil {
		p.err = invalid(field, format, args...)
	}
}

func (p *parser) raw(key string) string {
	v, ok := p.f[key]
	if !ok || v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		p.fail(key, "%s must be a string", key)
		return ""
	}
	return s
}

func (p *parser) text(key string) string {
	return strings.TrimSpace(p.raw(key))
}

func (p *parser) path(key string) string {
	return strings.Trim(p.raw(key), " \t")
}

func (p *parser) amount(key string) decimal.Decimal {
	s := p.text(key)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(key, "%s must be a number", key)
		return decimal.Zero
	}
	return d
}

func (p *parser) count(key string) int {
	v, ok := p.f[key]
	if !ok || v == nil || v == "" {
		return 0
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		p.fail(key, "%s must be a whole number", key)
		return 0
	}
	return n
}

func (p *parser) flag(key string) bool {
	v, ok := p.f[key]
	if !ok || v == nil || v == "" {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		p.fail(key, "%s must be true or false", key)
		return false
	}
	return b
}

// symbols accepts a list or a comma separated string, uppercases and
// removes duplicates.
func (p *parser) symbols(key string) []string {
	v, ok := p.f[key]
	if !ok || v == nil {
		return nil
	}
	var items []string
	if s, isString := v.(string); isString {
		items = strings.Split(s, ",")
	} else {
		var err error
		items, err = cast.ToStringSliceE(v)
		if err != nil {
			p.fail(key, "%s must be a list of symbols", key)
			return nil
		}
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		sym := strings.ToUpper(strings.TrimSpace(item))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
