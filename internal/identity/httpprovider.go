package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPProvider talks to the delegated identity service over REST. The session
// token returned at login is held in memory only.
type HTTPProvider struct {
	baseURL  string
	appID    string
	clientID string
	client   *http.Client

	mu            sync.RWMutex
	accessToken   string
	identityToken string
}

func NewHTTPProvider(baseURL, appID, clientID string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		appID:    appID,
		clientID: clientID,
		client:   &http.Client{Timeout: timeout},
	}
}

type linkedAccount struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

type userResponse struct {
	ID             string          `json:"id"`
	LinkedAccounts []linkedAccount `json:"linked_accounts"`
}

func (u *userResponse) toUser() *User {
	if u == nil || u.ID == "" {
		return nil
	}
	user := &User{ID: u.ID}
	for _, acc := range u.LinkedAccounts {
		if acc.Type == "wallet" && acc.Address != "" {
			user.LinkedWallets = append(user.LinkedWallets, acc.Address)
		}
	}
	return user
}

type siweInitRequest struct {
	WalletDescriptor
}

type siweInitResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type siweLoginRequest struct {
	WalletDescriptor
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type siweLoginResponse struct {
	User          *userResponse `json:"user"`
	Token         string        `json:"token"`
	IdentityToken string        `json:"identity_token"`
}

func (p *HTTPProvider) CurrentUser(ctx context.Context) (*User, error) {
	if p.token() == "" {
		return nil, nil
	}
	var resp userResponse
	status, err := p.do(ctx, http.MethodGet, "/users/me", nil, &resp)
	if status == http.StatusUnauthorized {
		p.clear()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.toUser(), nil
}

func (p *HTTPProvider) InitSiwe(ctx context.Context, d WalletDescriptor) (string, error) {
	var resp siweInitResponse
	if _, err := p.do(ctx, http.MethodPost, "/siwe/init", siweInitRequest{d}, &resp); err != nil {
		return "", err
	}
	if resp.Message != "" {
		return resp.Message, nil
	}
	if resp.Nonce == "" {
		return "", &ProviderError{Code: CodeInvalidSiweMessage, Message: "identity provider returned neither message nor nonce"}
	}
	return BuildSiweMessage(p.baseURL, d, resp.Nonce, time.Now().UTC()), nil
}

func (p *HTTPProvider) LoginWithSiwe(ctx context.Context, d WalletDescriptor, message, signature string) (*User, error) {
	var resp siweLoginResponse
	req := siweLoginRequest{WalletDescriptor: d, Message: message, Signature: signature}
	if _, err := p.do(ctx, http.MethodPost, "/siwe/authenticate", req, &resp); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.accessToken = resp.Token
	p.identityToken = resp.IdentityToken
	p.mu.Unlock()
	return resp.User.toUser(), nil
}

func (p *HTTPProvider) Logout(ctx context.Context) error {
	if p.token() == "" {
		return nil
	}
	_, err := p.do(ctx, http.MethodPost, "/sessions/logout", struct{}{}, nil)
	p.clear()
	return err
}

func (p *HTTPProvider) IdentityToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	tok := p.identityToken
	p.mu.RUnlock()
	if tok != "" {
		return tok, nil
	}
	if p.token() == "" {
		return "", nil
	}
	var resp struct {
		IdentityToken string `json:"identity_token"`
	}
	if _, err := p.do(ctx, http.MethodGet, "/users/me/identity_token", nil, &resp); err != nil {
		return "", err
	}
	return resp.IdentityToken, nil
}

func (p *HTTPProvider) AccessToken(context.Context) (string, error) {
	return p.token(), nil
}

func (p *HTTPProvider) token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accessToken
}

func (p *HTTPProvider) clear() {
	p.mu.Lock()
	p.accessToken = ""
	p.identityToken = ""
	p.mu.Unlock()
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Identity-App-Id", p.appID)
	if p.clientID != "" {
		req.Header.Set("X-Identity-Client-Id", p.clientID)
	}
	if tok := p.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, decodeProviderError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode identity provider response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// decodeProviderError accepts {"error":{"code","message"}}, {"code","error"}
// and {"code","message"} bodies.
func decodeProviderError(status int, raw []byte) error {
	pe := &ProviderError{Status: status}
	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	var flat struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	switch {
	case json.Unmarshal(raw, &nested) == nil && nested.Error.Message != "":
		pe.Code, pe.Message = nested.Error.Code, nested.Error.Message
	case json.Unmarshal(raw, &flat) == nil && (flat.Error != "" || flat.Message != ""):
		pe.Code = flat.Code
		pe.Message = flat.Error
		if pe.Message == "" {
			pe.Message = flat.Message
		}
	default:
		pe.Message = strings.TrimSpace(string(raw))
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}
