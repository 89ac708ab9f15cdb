package identity

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateSiwePending     State = "siwe_pending"
	StateAuthenticated   State = "authenticated"
	StateFailed          State = "failed"
)

// SignFunc signs a SIWE message with the bound wallet.
type SignFunc func(ctx context.Context, message string) (string, error)

// Binding is the wallet the session is being authenticated for.
type Binding struct {
	Address string
	ChainID int64
	Vendor  wallet.Vendor
}

// Session is the outcome of a successful sign-in.
type Session struct {
	UserID        string
	IdentityToken string
	AccessToken   string
	// Variant is the 1-based descriptor that logged in, 0 when an existing
	// session was reused.
	Variant int
	Reused  bool
}

// Authenticator runs the SIWE sign-in state machine against a Provider.
type Authenticator struct {
	provider Provider
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func NewAuthenticator(p Provider) *Authenticator {
	return &Authenticator{provider: p, now: time.Now, state: StateUnauthenticated}
}

func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Authenticator) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Reset returns the machine to unauthenticated.
func (a *Authenticator) Reset() {
	a.setState(StateUnauthenticated)
}

// Logout ends the provider session and resets the machine.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.Reset()
	return a.provider.Logout(ctx)
}

func (a *Authenticator) Authenticate(ctx context.Context, b Binding, sign SignFunc) (*Session, error) {
	log := logger.With("stage", "identity", "wallet", b.Address)

	current, err := a.provider.CurrentUser(ctx)
	if err != nil {
		log.Warn("Could not read existing identity session", "error", err)
		current = nil
	}
	if current.Links(b.Address) {
		log.Info("Reusing existing identity session", "user_id", current.ID)
		s, err := a.hydrate(ctx, current.ID)
		if err != nil {
			a.setState(StateFailed)
			return nil, err
		}
		s.Reused = true
		a.setState(StateAuthenticated)
		return s, nil
	}
	if current != nil {
		log.Info("Existing identity session belongs to another wallet, logging out", "user_id", current.ID)
		if err := a.provider.Logout(ctx); err != nil {
			log.Warn("Best-effort logout failed", "error", err)
		}
	}

	a.setState(StateSiwePending)
	var lastErr error
	for i, d := range Descriptors(b.Address, b.ChainID, b.Vendor) {
		variant := strconv.Itoa(i + 1)
		user, err := a.attempt(ctx, d, sign)
		if err != nil {
			if !retryable(err) {
				metrics.SiweAttempts.WithLabelValues(variant, "fatal").Inc()
				a.setState(StateFailed)
				return nil, siweFailure(err)
			}
			metrics.SiweAttempts.WithLabelValues(variant, "rejected").Inc()
			log.Info("SIWE descriptor rejected, trying next", "variant", variant, "chain_id", d.ChainID,
				"wallet_client_type", d.WalletClientType, "error", err)
			lastErr = err
			continue
		}
		metrics.SiweAttempts.WithLabelValues(variant, "ok").Inc()

		userID := ""
		if user != nil {
			userID = user.ID
		}
		s, err := a.hydrate(ctx, userID)
		if err != nil {
			a.setState(StateFailed)
			return nil, err
		}
		s.Variant = i + 1
		a.setState(StateAuthenticated)
		log.Info("Identity session established", "user_id", s.UserID, "variant", variant)
		return s, nil
	}

	a.setState(StateFailed)
	if lastErr != nil {
		return nil, apperrors.New(apperrors.ErrSiweAuthFailed, lastErr.Error(), lastErr)
	}
	return nil, apperrors.New(apperrors.ErrSiweAuthFailed, "sign-in with wallet failed", nil)
}

func (a *Authenticator) attempt(ctx context.Context, d WalletDescriptor, sign SignFunc) (*User, error) {
	message, err := a.provider.InitSiwe(ctx, d)
	if err != nil {
		return nil, err
	}
	signature, err := sign(ctx, message)
	if err != nil {
		return nil, err
	}
	return a.provider.LoginWithSiwe(ctx, d, message, signature)
}

func (a *Authenticator) hydrate(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		if u, err := a.provider.CurrentUser(ctx); err == nil && u != nil {
			userID = u.ID
		}
	}
	tokens := fetchTokens(ctx, a.provider, a.now)
	if tokens.Empty() {
		return nil, apperrors.New(apperrors.ErrTokenRetrievalFailed, "identity provider returned no usable token", nil)
	}
	if userID == "" {
		userID = TokenSubject(tokens.IdentityToken)
	}
	return &Session{
		UserID:        userID,
		IdentityToken: tokens.IdentityToken,
		AccessToken:   tokens.AccessToken,
	}, nil
}

// siweFailure keeps typed errors (signing, cancellation) and wraps the rest.
func siweFailure(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.New(apperrors.ErrSiweAuthFailed, err.Error(), err)
}
