package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/middleware"
	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFlow struct {
	sess      *session.Context
	launchErr error
	validated profile.Fields

	mu         sync.Mutex
	sub        poller.Observer
	subscribed chan struct{}
}

func newStubFlow() *stubFlow {
	return &stubFlow{sess: session.New(), subscribed: make(chan struct{}, 1)}
}

func (f *stubFlow) Session() *session.Context { return f.sess }

func (f *stubFlow) Bootstrap(context.Context) (*gateway.Bootstrap, error) {
	return nil, apperrors.New(apperrors.ErrFrontdoorDisabled, "frontdoor is disabled for this deployment", nil)
}

func (f *stubFlow) ConnectWallet(context.Context) (*session.Identity, error) {
	return &session.Identity{WalletAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111", ChainID: 1}, nil
}

func (f *stubFlow) Authenticate(context.Context) (*session.Identity, error) {
	return &session.Identity{WalletAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111", DelegatedUserID: "u1", IdentityToken: "secret"}, nil
}

func (f *stubFlow) SuggestConfig(_ context.Context, intent, authKey string) (*gateway.SuggestResponse, error) {
	cfg := map[string]any{"profile_name": intent}
	if authKey != "" {
		cfg["gateway_auth_key"] = authKey
	}
	return &gateway.SuggestResponse{Config: cfg, Warnings: []string{"paper mode assumed"}}, nil
}

func (f *stubFlow) ValidateConfig(fields profile.Fields) (*profile.RuntimeConfig, error) {
	f.validated = fields
	return &profile.RuntimeConfig{ProfileName: "alpha", GatewayAuthKey: "k3y-0123456789abcdef"}, nil
}

func (f *stubFlow) Launch(context.Context) (*session.LaunchSession, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &session.LaunchSession{SessionID: "s1", ChallengeMessage: "m1", Status: gateway.StatusPending}, nil
}

func (f *stubFlow) Resume(_ context.Context, id string) (*session.LaunchSession, error) {
	return &session.LaunchSession{SessionID: id, Status: gateway.StatusPending}, nil
}

func (f *stubFlow) Status() (*session.LaunchSession, error) {
	return nil, apperrors.New(apperrors.ErrNotFound, "no launch in this session", nil)
}

func (f *stubFlow) History(context.Context, int) ([]*model.LaunchRecord, error) { return nil, nil }

func (f *stubFlow) Onboarding(context.Context) (*gateway.OnboardingState, error) {
	return &gateway.OnboardingState{CurrentStep: "intent"}, nil
}

func (f *stubFlow) OnboardingChat(context.Context, string) (*gateway.ChatResponse, error) {
	return &gateway.ChatResponse{}, nil
}

func (f *stubFlow) Logout(context.Context) error {
	f.sess.Reset()
	return nil
}

func (f *stubFlow) Subscribe(fn poller.Observer) func() {
	f.mu.Lock()
	f.sub = fn
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return func() {}
}

func (f *stubFlow) publish(u poller.Update) {
	f.mu.Lock()
	fn := f.sub
	f.mu.Unlock()
	fn(u)
}

func newRouter(flow Flow) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewFrontdoorHandler(flow)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	v1 := r.Group("/v1", h.Tag())
	v1.GET("/bootstrap", h.Bootstrap)
	v1.GET("/session", h.GetSession)
	v1.POST("/wallet/connect", h.ConnectWallet)
	v1.POST("/identity/login", h.Login)
	v1.POST("/identity/logout", h.Logout)
	v1.POST("/config/suggest", h.SuggestConfig)
	v1.POST("/config/validate", h.ValidateConfig)
	v1.POST("/launch", h.Launch)
	v1.POST("/launch/resume", h.Resume)
	v1.GET("/launch/status", h.Status)
	v1.GET("/launch/history", h.History)
	v1.GET("/launch/stream", h.Stream)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLaunchAccepted(t *testing.T) {
	r := newRouter(newStubFlow())
	w := do(r, http.MethodPost, "/v1/launch", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"s1"`)
}

func TestErrorsRenderTypedCode(t *testing.T) {
	flow := newStubFlow()
	flow.launchErr = apperrors.New(apperrors.ErrVerifyFailed, "auth key rejected", nil)
	r := newRouter(flow)

	w := do(r, http.MethodPost, "/v1/launch", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VERIFY_FAILED", body["code"])
	assert.Equal(t, "auth key rejected", body["message"])

	assert.Equal(t, true, body["retryable"])

	w = do(r, http.MethodGet, "/v1/bootstrap", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "FRONTDOOR_DISABLED")
	assert.Contains(t, w.Body.String(), `"retryable":false`)

	w = do(r, http.MethodGet, "/v1/launch/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuggestConfigOmitsAuthKey(t *testing.T) {
	r := newRouter(newStubFlow())

	w := do(r, http.MethodPost, "/v1/config/suggest", `{"intent":"momentum","gateway_auth_key":"k3y-0123456789abcdef"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "gateway_auth_key")
	assert.NotContains(t, w.Body.String(), "k3y-0123456789abcdef")

	var body gateway.SuggestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "momentum", body.Config["profile_name"])
	assert.Equal(t, []string{"paper mode assumed"}, body.Warnings)
}

func TestValidateConfigBindsFields(t *testing.T) {
	flow := newStubFlow()
	r := newRouter(flow)

	w := do(r, http.MethodPost, "/v1/config/validate", `{"config":{"profile_name":"alpha","max_allocation_usd":10}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alpha", flow.validated["profile_name"])
	assert.NotContains(t, w.Body.String(), "k3y-0123456789abcdef")

	w = do(r, http.MethodPost, "/v1/config/validate", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestLoginHidesTokens(t *testing.T) {
	r := newRouter(newStubFlow())
	w := do(r, http.MethodPost, "/v1/identity/login", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), `"delegated_user_id":"u1"`)
}

func TestLogoutReturnsNewSession(t *testing.T) {
	flow := newStubFlow()
	before := flow.sess.ID()
	r := newRouter(flow)

	w := do(r, http.MethodPost, "/v1/identity/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), before)
	assert.Contains(t, w.Body.String(), flow.sess.ID())
}

func TestResumeWithBodyAndWithout(t *testing.T) {
	r := newRouter(newStubFlow())
	w := do(r, http.MethodPost, "/v1/launch/resume", `{"session_id":"s7"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"s7"`)

	w = do(r, http.MethodPost, "/v1/launch/resume", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHistoryIsNeverNull(t *testing.T) {
	r := newRouter(newStubFlow())
	w := do(r, http.MethodGet, "/v1/launch/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestStreamForwardsUpdatesUntilTerminal(t *testing.T) {
	flow := newStubFlow()
	srv := httptest.NewServer(newRouter(flow))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/launch/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-flow.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never subscribed")
	}

	flow.publish(poller.Update{SessionID: "s1", Status: gateway.StatusProvisioning, Progress: 19})
	flow.publish(poller.Update{SessionID: "s1", Status: gateway.StatusReady, Progress: 100, Terminal: true,
		Destination: "https://x.example/run"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second poller.Update
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, gateway.StatusProvisioning, first.Status)
	assert.Equal(t, 19, first.Progress)
	assert.True(t, second.Terminal)
	assert.Equal(t, "https://x.example/run", second.Destination)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
