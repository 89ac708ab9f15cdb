package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/identity"
	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/repository"
	"github.com/GoPolymarket/frontdoor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletA  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1111"
	walletB  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2222"
	operator = "0x00000000000000000000000000000000000000f0"
)

type fakeGateway struct {
	mu        sync.Mutex
	boot      gateway.Bootstrap
	statuses  []gateway.SessionStatus
	polls     int
	calls     []string
	verifyReq gateway.VerifyRequest
	challErr  error
	// pollErrs fails that many session reads before serving statuses.
	pollErrs int
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	g.calls = append(g.calls, name)
	g.mu.Unlock()
}

func (g *fakeGateway) Bootstrap(context.Context) (*gateway.Bootstrap, error) {
	g.record("bootstrap")
	b := g.boot
	return &b, nil
}

func (g *fakeGateway) SuggestConfig(_ context.Context, req gateway.SuggestRequest) (*gateway.SuggestResponse, error) {
	g.record("suggest")
	return &gateway.SuggestResponse{Config: map[string]any{"profile_name": "draft-" + req.Intent}}, nil
}

func (g *fakeGateway) Challenge(context.Context, gateway.ChallengeRequest) (*gateway.ChallengeResponse, error) {
	g.record("challenge")
	if g.challErr != nil {
		return nil, g.challErr
	}
	return &gateway.ChallengeResponse{SessionID: "s1", Message: "m1"}, nil
}

func (g *fakeGateway) Verify(_ context.Context, req gateway.VerifyRequest) error {
	g.record("verify")
	g.mu.Lock()
	g.verifyReq = req
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Session(context.Context, string) (*gateway.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "session")
	if g.pollErrs > 0 {
		g.pollErrs--
		return nil, errors.New("gateway unavailable")
	}
	i := g.polls
	if i >= len(g.statuses) {
		i = len(g.statuses) - 1
	}
	g.polls++
	st := g.statuses[i]
	return &st, nil
}

func (g *fakeGateway) OnboardingState(_ context.Context, sessionID string) (*gateway.OnboardingState, error) {
	g.record("onboarding:" + sessionID)
	return &gateway.OnboardingState{CurrentStep: "intent"}, nil
}

func (g *fakeGateway) OnboardingChat(_ context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	g.record("chat:" + req.SessionID)
	return &gateway.ChatResponse{}, nil
}

func (g *fakeGateway) networkCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// fakeWallet answers the EIP-1193 calls the flow makes.
type fakeWallet struct {
	address string
	signs   int
}

func (w *fakeWallet) Request(_ context.Context, method string, _ ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{w.address})
	case "eth_chainId":
		return json.RawMessage(`"0x1"`), nil
	case "personal_sign":
		w.signs++
		return json.RawMessage(`"0x` + strings.Repeat("ab", 65) + `"`), nil
	}
	return nil, errors.New("unsupported")
}

type fakeProvider struct {
	mu       sync.Mutex
	user     *identity.User
	logouts  int
	inits    int
	loginErr error
}

func (p *fakeProvider) CurrentUser(context.Context) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, nil
}

func (p *fakeProvider) InitSiwe(context.Context, identity.WalletDescriptor) (string, error) {
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	return "frontdoor wants you to sign in", nil
}

func (p *fakeProvider) LoginWithSiwe(_ context.Context, d identity.WalletDescriptor, _, _ string) (*identity.User, error) {
	if p.loginErr != nil {
		return nil, p.loginErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = &identity.User{ID: "did:user1", LinkedWallets: []string{d.Address}}
	return p.user, nil
}

func (p *fakeProvider) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts++
	p.user = nil
	return nil
}

func (p *fakeProvider) IdentityToken(context.Context) (string, error) { return "id-token", nil }
func (p *fakeProvider) AccessToken(context.Context) (string, error)   { return "access-token", nil }

func profileFields(mode, userWallet string) profile.Fields {
	return profile.Fields{
		"profile_name":               "alpha",
		"max_allocation_usd":         1000,
		"per_trade_notional_cap_usd": 250,
		"copy_leverage":              2,
		"max_leverage":               3,
		"leverage_cap":               5,
		"allowed_symbols":            "btc,eth",
		"custody_mode":               mode,
		"operator_wallet_address":    operator,
		"user_wallet_address":        userWallet,
		"gateway_auth_key":           "k3y-0123456789abcdef",
		"gateway_auth_scheme":        "bearer",
		"verification_backend":       "eigencloud_primary",
		"consent_acknowledged":       true,
	}
}

// hookedStore runs beforeSave ahead of each SaveLaunch.
type hookedStore struct {
	*repository.MemoryLaunchRepo
	beforeSave func()
}

func (s *hookedStore) SaveLaunch(ctx context.Context, rec *model.LaunchRecord) error {
	if s.beforeSave != nil {
		s.beforeSave()
	}
	return s.MemoryLaunchRepo.SaveLaunch(ctx, rec)
}

type harness struct {
	gw        *fakeGateway
	wallet    *fakeWallet
	provider  *fakeProvider
	store     *repository.MemoryLaunchRepo
	hooks     *hookedStore
	active    *repository.MemoryActiveCache
	orch      *Orchestrator
	mu        sync.Mutex
	navigated []string
}

func newHarness(t *testing.T, statuses ...gateway.SessionStatus) *harness {
	t.Helper()
	h := &harness{
		gw: &fakeGateway{
			boot:     gateway.Bootstrap{Enabled: true, RequireDelegatedIdentity: true, IdentityAppID: "app1"},
			statuses: statuses,
		},
		wallet:   &fakeWallet{address: walletA},
		provider: &fakeProvider{},
		store:    repository.NewMemoryLaunchRepo(),
		active:   repository.NewMemoryActiveCache(),
	}
	h.hooks = &hookedStore{MemoryLaunchRepo: h.store}
	h.orch = NewOrchestrator(Deps{
		Gateway:   h.gw,
		Identity:  func(appID, _ string) identity.Provider { return h.provider },
		Transport: h.wallet,
		Policy:    chain.NewPolicy("localhost", nil),
		Store:     h.hooks,
		Active:    h.active,
		Poll:      poller.Options{Interval: 5 * time.Millisecond, MinInterval: time.Millisecond},
		Navigate: func(url string) {
			h.mu.Lock()
			h.navigated = append(h.navigated, url)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) navigations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigated...)
}

func TestLaunchFlowReachesReadyAndNavigatesOnce(t *testing.T) {
	h := newHarness(t,
		gateway.SessionStatus{Status: gateway.StatusProvisioning},
		gateway.SessionStatus{Status: gateway.StatusReady, InstanceURL: "https://x.example/run"},
	)
	ctx := context.Background()

	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	id, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, walletA, id.WalletAddress)
	assert.Equal(t, int64(1), id.ChainID)

	id, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "did:user1", id.DelegatedUserID)
	assert.Equal(t, 1, h.provider.inits)

	_, err = h.orch.ValidateConfig(profileFields("dual_mode", walletA))
	require.NoError(t, err)

	ls, err := h.orch.Launch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", ls.SessionID)

	res, err := h.orch.WaitForTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusReady, res.Status)
	assert.Equal(t, "https://x.example/run", res.Destination)
	assert.Equal(t, []string{"https://x.example/run"}, h.navigations())

	st, err := h.orch.Status()
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusReady, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.True(t, h.orch.Session().Snapshot().Config.Frozen())

	assert.Equal(t, "m1", h.gw.verifyReq.Message)
	assert.Equal(t, "id-token", h.gw.verifyReq.IdentityToken)
	assert.Equal(t, "alpha", h.gw.verifyReq.Config["profile_name"])

	rec, err := h.store.GetLaunch(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "ready", rec.Status)
	active, err := h.active.GetActive(ctx, walletA)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestReadyWithUnsafeURLNeverNavigates(t *testing.T) {
	h := newHarness(t, gateway.SessionStatus{Status: gateway.StatusReady, InstanceURL: "javascript:alert(1)"})
	ctx := context.Background()
	h.gw.boot.RequireDelegatedIdentity = false

	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	assert.Zero(t, h.provider.inits)
	_, err = h.orch.ValidateConfig(profileFields("operator_wallet", ""))
	require.NoError(t, err)
	_, err = h.orch.Launch(ctx)
	require.NoError(t, err)

	_, err = h.orch.WaitForTerminal(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRedirect))
	assert.Empty(t, h.navigations())
}

func TestBlankUserWalletFillsFromBoundWallet(t *testing.T) {
	h := newHarness(t)
	h.wallet.address = walletB
	ctx := context.Background()

	_, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	cfg, err := h.orch.ValidateConfig(profileFields("user_wallet", ""))
	require.NoError(t, err)
	assert.Equal(t, walletB, cfg.UserWalletAddress)
}

func TestPerTradeCapViolationMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t)
	fields := profileFields("operator_wallet", "")
	fields["per_trade_notional_cap_usd"] = 5000

	_, err := h.orch.ValidateConfig(fields)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, h.gw.networkCalls())
	assert.Zero(t, h.wallet.signs)
}

func TestBootstrapFatalConditions(t *testing.T) {
	h := newHarness(t)
	h.gw.boot.Enabled = false
	_, err := h.orch.Bootstrap(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrFrontdoorDisabled))
	assert.True(t, apperrors.Fatal(err))

	h.gw.boot = gateway.Bootstrap{Enabled: true, RequireDelegatedIdentity: true}
	_, err = h.orch.Bootstrap(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrIdentityAppMissing))
}

func TestLaunchRequiresSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.ValidateConfig(profileFields("dual_mode", walletA))
	require.NoError(t, err)

	_, err = h.orch.Launch(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrPrerequisite))
	assert.NotContains(t, h.gw.networkCalls(), "challenge")
}

func TestChallengeFailureIsRetryable(t *testing.T) {
	h := newHarness(t, gateway.SessionStatus{Status: gateway.StatusReady, InstanceURL: "https://x.example/run"})
	ctx := context.Background()
	h.gw.boot.RequireDelegatedIdentity = false
	h.gw.challErr = &gateway.Error{StatusCode: 409, Message: "wallet already has a running launch"}

	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	_, err = h.orch.ValidateConfig(profileFields("operator_wallet", ""))
	require.NoError(t, err)

	_, err = h.orch.Launch(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrChallengeFailed))
	assert.Equal(t, "wallet already has a running launch", err.Error())

	h.gw.challErr = nil
	_, err = h.orch.Launch(ctx)
	require.NoError(t, err)
	_, err = h.orch.WaitForTerminal(ctx)
	require.NoError(t, err)
}

func TestWalletSwitchIsRefused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)

	h.wallet.address = walletB
	_, err = h.orch.ConnectWallet(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrWalletMismatch))
}

func TestLogoutResetsEverything(t *testing.T) {
	h := newHarness(t, gateway.SessionStatus{Status: gateway.StatusProvisioning})
	ctx := context.Background()

	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	_, err = h.orch.ValidateConfig(profileFields("dual_mode", walletA))
	require.NoError(t, err)
	_, err = h.orch.Launch(ctx)
	require.NoError(t, err)

	before := h.orch.Session().ID()
	require.NoError(t, h.orch.Logout(ctx))

	st := h.orch.Session().Snapshot()
	assert.NotEqual(t, before, st.ID)
	assert.Empty(t, st.Identity.WalletAddress)
	assert.Empty(t, st.Identity.IdentityToken)
	assert.Nil(t, st.Config)
	assert.Nil(t, st.Launch)
	assert.Nil(t, st.Bootstrap)
	assert.Equal(t, 1, h.provider.logouts)
	assert.Equal(t, poller.StateIdle, h.orch.poller.State())
	assert.Empty(t, h.navigations())

	// The next user can connect a different wallet.
	h.wallet.address = walletB
	id, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, walletB, id.WalletAddress)
}

func TestResumeFromActiveCache(t *testing.T) {
	h := newHarness(t, gateway.SessionStatus{Status: gateway.StatusReady, VerifyURL: "https://x.example/verify"})
	ctx := context.Background()
	require.NoError(t, h.active.PutActive(ctx, &model.ActiveLaunch{SessionID: "s9", WalletAddress: walletA, ProfileName: "beta"}))
	require.NoError(t, h.store.SaveLaunch(ctx, &model.LaunchRecord{SessionID: "s9", WalletAddress: walletA, Status: "pending"}))

	_, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	ls, err := h.orch.Resume(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "s9", ls.SessionID)
	assert.Equal(t, "beta", ls.ProfileName)

	res, err := h.orch.WaitForTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/verify", res.Destination)

	gone, err := h.active.GetActive(ctx, walletA)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestResumeWithoutActiveLaunch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Resume(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOnboardingUsesLaunchSessionWhenPresent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid := h.orch.Session().ID()

	_, err := h.orch.Onboarding(ctx)
	require.NoError(t, err)
	_, err = h.orch.OnboardingChat(ctx, "copy the top trader")
	require.NoError(t, err)
	_, err = h.orch.OnboardingChat(ctx, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	assert.Equal(t, []string{"onboarding:" + sid, "chat:" + sid}, h.gw.networkCalls())
}

func TestSubscribersSeeTerminalUpdate(t *testing.T) {
	h := newHarness(t, gateway.SessionStatus{Status: gateway.StatusFailed, Error: "enclave boot failed"})
	ctx := context.Background()
	h.gw.boot.RequireDelegatedIdentity = false

	var mu sync.Mutex
	var seen []poller.Update
	cancel := h.orch.Subscribe(func(u poller.Update) {
		mu.Lock()
		seen = append(seen, u)
		mu.Unlock()
	})
	defer cancel()

	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	_, err = h.orch.ValidateConfig(profileFields("operator_wallet", ""))
	require.NoError(t, err)
	_, err = h.orch.Launch(ctx)
	require.NoError(t, err)

	res, err := h.orch.WaitForTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusFailed, res.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.True(t, last.Terminal)
	assert.Equal(t, "enclave boot failed", last.Error)
	assert.Empty(t, h.navigations())
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.orch.Bootstrap(ctx)
	require.NoError(t, err)
	_, err = h.orch.ConnectWallet(ctx)
	require.NoError(t, err)
	_, err = h.orch.Authenticate(ctx)
	require.NoError(t, err)
	_, err = h.orch.ValidateConfig(profileFields("dual_mode", walletA))
	require.NoError(t, err)
}

func TestLogoutBeforePollStartsLeavesNoPoll(t *testing.T) {
	h := newHarness(t,
		gateway.SessionStatus{Status: gateway.StatusProvisioning},
	)
	ctx := context.Background()
	h.signIn(t)

	h.hooks.beforeSave = func() { require.NoError(t, h.orch.Logout(ctx)) }
	_, err := h.orch.Launch(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrStaleSession), "%v", err)
	assert.Equal(t, poller.StateIdle, h.orch.poller.State())

	h.hooks.beforeSave = nil
	h.signIn(t)
	ls, err := h.orch.Launch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", ls.SessionID)
}

func TestPollingErrorEndsLaunchAndAllowsRetry(t *testing.T) {
	h := newHarness(t,
		gateway.SessionStatus{Status: gateway.StatusReady, InstanceURL: "https://x.example/run"},
	)
	h.gw.pollErrs = 1
	ctx := context.Background()
	h.signIn(t)

	_, err := h.orch.Launch(ctx)
	require.NoError(t, err)
	_, err = h.orch.WaitForTerminal(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrPolling))

	st, err := h.orch.Status()
	require.NoError(t, err)
	assert.Equal(t, session.StatusPollError, st.Status)
	assert.False(t, st.Active())

	rec, err := h.store.GetLaunch(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "poll_error", rec.Status)

	_, err = h.orch.ValidateConfig(profileFields("dual_mode", walletA))
	require.NoError(t, err)
	_, err = h.orch.Launch(ctx)
	require.NoError(t, err)
	res, err := h.orch.WaitForTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/run", res.Destination)
}
