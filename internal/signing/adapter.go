package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeSigner is implemented by wallets that sign a message through their
// own entry point instead of personal_sign.
type NativeSigner interface {
	SignMessage(ctx context.Context, message string) (string, error)
}

// Candidate is one personal_sign parameter ordering.
type Candidate struct {
	Shape  string
	Params [2]string
}

// Candidates returns the four personal_sign shapes in the order they are tried.
func Candidates(message, address string) []Candidate {
	hexMsg := hexutil.Encode([]byte(message))
	return []Candidate{
		{Shape: "hex_message_address", Params: [2]string{hexMsg, address}},
		{Shape: "address_hex_message", Params: [2]string{address, hexMsg}},
		{Shape: "message_address", Params: [2]string{message, address}},
		{Shape: "address_message", Params: [2]string{address, message}},
	}
}

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

// Sign returns the first non-empty signature produced by the wallet.
func (a *Adapter) Sign(ctx context.Context, transport wallet.Transport, vendor wallet.Vendor, message, address string) (string, error) {
	if transport == nil {
		return "", apperrors.New(apperrors.ErrNoWalletProvider, "no wallet provider available for signing", nil)
	}
	log := logger.With("stage", "sign", "wallet", address, "vendor", vendor)

	if native, ok := transport.(NativeSigner); ok && vendor.Capabilities().NativeSign {
		sig, err := native.SignMessage(ctx, message)
		if err == nil && sig != "" {
			metrics.SigningAttempts.WithLabelValues("native", "ok").Inc()
			return sig, nil
		}
		metrics.SigningAttempts.WithLabelValues("native", "error").Inc()
		log.Warn("Native signing failed, falling back to personal_sign", "error", err)
	}

	var lastErr error
	for _, c := range Candidates(message, address) {
		if err := ctx.Err(); err != nil {
			return "", apperrors.New(apperrors.ErrSignatureFailed, "signing cancelled", err)
		}
		sig, err := requestSignature(ctx, transport, c)
		if err == nil {
			metrics.SigningAttempts.WithLabelValues(c.Shape, "ok").Inc()
			log.Debug("Message signed", "shape", c.Shape)
			return sig, nil
		}
		metrics.SigningAttempts.WithLabelValues(c.Shape, "error").Inc()
		log.Debug("Signing shape rejected", "shape", c.Shape, "error", err)
		lastErr = err
	}
	return "", apperrors.New(apperrors.ErrSignatureFailed, fmt.Sprintf("wallet could not sign the message: %v", lastErr), lastErr)
}

func requestSignature(ctx context.Context, transport wallet.Transport, c Candidate) (string, error) {
	raw, err := transport.Request(ctx, "personal_sign", c.Params[0], c.Params[1])
	if err != nil {
		return "", err
	}
	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return "", fmt.Errorf("unexpected personal_sign result: %s", string(raw))
	}
	if strings.TrimSpace(sig) == "" {
		return "", errors.New("wallet returned an empty signature")
	}
	return sig, nil
}
