package launch

import (
	"context"
	"strings"

	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/session"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
)

// Gateway is the part of the gateway client the protocol drives.
type Gateway interface {
	Challenge(ctx context.Context, req gateway.ChallengeRequest) (*gateway.ChallengeResponse, error)
	Verify(ctx context.Context, req gateway.VerifyRequest) error
}

type Signer interface {
	Sign(ctx context.Context, transport wallet.Transport, vendor wallet.Vendor, message, address string) (string, error)
}

// SignatureVerifier is an optional local check of the challenge signature
// before it is submitted.
type SignatureVerifier interface {
	Verify(ctx context.Context, message, signature, address string) error
}

type Request struct {
	Identity  session.Identity
	Transport wallet.Transport
	Vendor    wallet.Vendor
	Config    *profile.RuntimeConfig
}

// Protocol runs challenge, sign and verify in order. Each step gates the next.
type Protocol struct {
	gw       Gateway
	signer   Signer
	verifier SignatureVerifier
}

func NewProtocol(gw Gateway, signer Signer, verifier SignatureVerifier) *Protocol {
	return &Protocol{gw: gw, signer: signer, verifier: verifier}
}

func (p *Protocol) Run(ctx context.Context, req Request) (*session.LaunchSession, error) {
	if req.Identity.WalletAddress == "" {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "connect a wallet before launching", nil)
	}
	if req.Config == nil {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "validate a configuration before launching", nil)
	}
	log := logger.With("stage", "launch", "wallet", req.Identity.WalletAddress, "profile", req.Config.ProfileName)

	ch, err := p.gw.Challenge(ctx, gateway.ChallengeRequest{
		WalletAddress:   req.Identity.WalletAddress,
		DelegatedUserID: req.Identity.DelegatedUserID,
		ChainID:         req.Identity.ChainID,
	})
	if err != nil {
		metrics.LaunchesTotal.WithLabelValues("challenge_failed").Inc()
		return nil, apperrors.New(apperrors.ErrChallengeFailed, err.Error(), err)
	}
	if strings.TrimSpace(ch.SessionID) == "" || ch.Message == "" {
		metrics.LaunchesTotal.WithLabelValues("challenge_failed").Inc()
		return nil, apperrors.New(apperrors.ErrChallengeFailed, "gateway returned an incomplete challenge", nil)
	}
	log = log.With("session_id", ch.SessionID)
	log.Info("Launch challenge issued", "version", ch.Version)

	signature, err := p.signer.Sign(ctx, req.Transport, req.Vendor, ch.Message, req.Identity.WalletAddress)
	if err != nil {
		metrics.LaunchesTotal.WithLabelValues("signature_failed").Inc()
		return nil, err
	}
	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, ch.Message, signature, req.Identity.WalletAddress); err != nil {
			metrics.LaunchesTotal.WithLabelValues("signature_failed").Inc()
			return nil, err
		}
	}

	err = p.gw.Verify(ctx, gateway.VerifyRequest{
		SessionID:       ch.SessionID,
		WalletAddress:   req.Identity.WalletAddress,
		DelegatedUserID: req.Identity.DelegatedUserID,
		IdentityToken:   req.Identity.IdentityToken,
		AccessToken:     req.Identity.AccessToken,
		Message:         ch.Message,
		Signature:       signature,
		Config:          req.Config.Payload(),
	})
	if err != nil {
		metrics.LaunchesTotal.WithLabelValues("verify_failed").Inc()
		return nil, apperrors.New(apperrors.ErrVerifyFailed, err.Error(), err)
	}

	metrics.LaunchesTotal.WithLabelValues("submitted").Inc()
	log.Info("Launch verified, provisioning started")
	return &session.LaunchSession{
		SessionID:        ch.SessionID,
		ChallengeMessage: ch.Message,
		Status:           gateway.StatusPending,
	}, nil
}
