package identity

import (
	"context"
	"strings"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"
)

// Tokens are the portable credentials extracted after sign-in.
type Tokens struct {
	IdentityToken string
	AccessToken   string
}

func (t Tokens) Empty() bool {
	return t.IdentityToken == "" && t.AccessToken == ""
}

// fetchTokens runs both token reads concurrently. A failed or expired token
// is dropped on its own and never fails the other.
func fetchTokens(ctx context.Context, p Provider, now func() time.Time) Tokens {
	var tokens Tokens
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := p.IdentityToken(gctx)
		if err != nil {
			logger.Warn("Identity token unavailable", "error", err)
			return nil
		}
		tokens.IdentityToken = usableToken(tok, now())
		return nil
	})
	g.Go(func() error {
		tok, err := p.AccessToken(gctx)
		if err != nil {
			logger.Warn("Access token unavailable", "error", err)
			return nil
		}
		tokens.AccessToken = usableToken(tok, now())
		return nil
	})
	_ = g.Wait()
	return tokens
}

// usableToken returns tok unless it is blank or a JWT whose exp has passed.
// Opaque tokens are kept as-is.
func usableToken(tok string, now time.Time) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return tok
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return tok
	}
	if !exp.After(now) {
		return ""
	}
	return tok
}

// TokenSubject returns the sub claim of a JWT without verifying it.
func TokenSubject(tok string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
