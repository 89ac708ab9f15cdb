package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/identity"
	"github.com/GoPolymarket/frontdoor/internal/launch"
	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/session"
	"github.com/GoPolymarket/frontdoor/internal/signing"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
)

// Gateway is the backend surface the orchestrator drives.
type Gateway interface {
	launch.Gateway
	poller.Fetcher
	Bootstrap(ctx context.Context) (*gateway.Bootstrap, error)
	SuggestConfig(ctx context.Context, req gateway.SuggestRequest) (*gateway.SuggestResponse, error)
	OnboardingState(ctx context.Context, sessionID string) (*gateway.OnboardingState, error)
	OnboardingChat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
}

// ProviderFactory builds the identity provider for the app announced by bootstrap.
type ProviderFactory func(appID, clientID string) identity.Provider

type LaunchStore interface {
	SaveLaunch(ctx context.Context, rec *model.LaunchRecord) error
	UpdateLaunch(ctx context.Context, rec *model.LaunchRecord) error
	GetLaunch(ctx context.Context, sessionID string) (*model.LaunchRecord, error)
	ListLaunches(ctx context.Context, wallet string, limit int) ([]*model.LaunchRecord, error)
}

// ActiveCache remembers the launch a wallet is waiting on.
type ActiveCache interface {
	PutActive(ctx context.Context, rec *model.ActiveLaunch) error
	GetActive(ctx context.Context, wallet string) (*model.ActiveLaunch, error)
	DeleteActive(ctx context.Context, wallet string) error
}

// Navigator receives the sanitized destination of a ready launch.
type Navigator func(url string)

type Deps struct {
	Gateway   Gateway
	Identity  ProviderFactory
	Transport wallet.Transport
	Vendor    wallet.Vendor
	Policy    *chain.Policy
	Signer    launch.Signer
	Verifier  launch.SignatureVerifier
	Store     LaunchStore
	Active    ActiveCache
	Poll      poller.Options
	Navigate  Navigator
}

// Orchestrator runs wallet, identity, config, launch and poll in order over
// one session context. Each stage refuses to run until the previous one has
// completed.
type Orchestrator struct {
	deps     Deps
	sess     *session.Context
	poller   *poller.Poller
	protocol *launch.Protocol

	mu       sync.Mutex
	auth     *identity.Authenticator
	pollGen  uint64
	pollCtx  context.Context
	stopPoll context.CancelFunc
	subs     map[int]poller.Observer
	nextSub  int
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Signer == nil {
		deps.Signer = signing.NewAdapter()
	}
	if deps.Policy == nil {
		deps.Policy = chain.NewPolicy("", nil)
	}
	if deps.Vendor == "" {
		deps.Vendor = wallet.VendorUnknown
	}
	pollCtx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:     deps,
		sess:     session.New(),
		poller:   poller.New(deps.Gateway, deps.Poll),
		protocol: launch.NewProtocol(deps.Gateway, deps.Signer, deps.Verifier),
		pollCtx:  pollCtx,
		stopPoll: stop,
		subs:     make(map[int]poller.Observer),
	}
	o.poller.Subscribe(o.onPollUpdate)
	return o
}

func (o *Orchestrator) Session() *session.Context {
	return o.sess
}

// Close stops any poll in progress.
func (o *Orchestrator) Close() {
	o.stopPoll()
	o.poller.Stop()
}

// Subscribe registers an observer for poll updates and returns its cancel func.
func (o *Orchestrator) Subscribe(fn poller.Observer) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Bootstrap loads the deployment capabilities. A disabled deployment and a
// missing identity app id are fatal.
func (o *Orchestrator) Bootstrap(ctx context.Context) (*gateway.Bootstrap, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()
	log := logger.With("stage", "bootstrap", "session_id", o.sess.ID())

	boot, err := o.deps.Gateway.Bootstrap(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	if !boot.Enabled {
		return nil, apperrors.New(apperrors.ErrFrontdoorDisabled, "frontdoor is disabled for this deployment", nil)
	}
	if boot.RequireDelegatedIdentity && boot.IdentityAppID == "" {
		return nil, apperrors.New(apperrors.ErrIdentityAppMissing, "deployment requires delegated identity but announced no identity app id", nil)
	}
	if boot.PollIntervalMs > 0 {
		o.poller.SetInterval(time.Duration(boot.PollIntervalMs) * time.Millisecond)
	}

	var auth *identity.Authenticator
	if boot.RequireDelegatedIdentity {
		if o.deps.Identity == nil {
			return nil, apperrors.New(apperrors.ErrIdentityAppMissing, "no identity provider is configured", nil)
		}
		auth = identity.NewAuthenticator(o.deps.Identity(boot.IdentityAppID, boot.IdentityClientID))
	}

	err = o.sess.Apply(gen, func(s *session.State) error {
		s.Bootstrap = boot
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.auth = auth
	o.mu.Unlock()

	log.Info("Bootstrap loaded", "require_delegated_identity", boot.RequireDelegatedIdentity,
		"poll_interval_ms", boot.PollIntervalMs)
	return boot, nil
}

// ConnectWallet requests accounts, enforces the deployment network and binds
// the wallet to the session.
func (o *Orchestrator) ConnectWallet(ctx context.Context) (*session.Identity, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	conn, err := wallet.NewSource(o.deps.Transport, o.deps.Vendor, o.deps.Policy).Connect(ctx)
	if err != nil {
		return nil, err
	}

	var id session.Identity
	err = o.sess.Apply(gen, func(s *session.State) error {
		if err := s.BindWallet(conn); err != nil {
			return err
		}
		id = s.Identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Authenticate signs the wallet into the delegated identity provider. When
// the deployment does not require delegated identity the wallet alone is
// enough.
func (o *Orchestrator) Authenticate(ctx context.Context) (*session.Identity, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	st := o.sess.Snapshot()
	if st.Bootstrap == nil {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "load the deployment bootstrap first", nil)
	}
	if st.Identity.WalletAddress == "" {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "connect a wallet before signing in", nil)
	}

	var result *identity.Session
	if st.Bootstrap.RequireDelegatedIdentity {
		o.mu.Lock()
		auth := o.auth
		o.mu.Unlock()
		if auth == nil {
			return nil, apperrors.New(apperrors.ErrIdentityAppMissing, "no identity provider is configured", nil)
		}
		sign := func(ctx context.Context, message string) (string, error) {
			return o.deps.Signer.Sign(ctx, st.Transport, st.Vendor, message, st.Identity.WalletAddress)
		}
		result, err = auth.Authenticate(ctx, identity.Binding{
			Address: st.Identity.WalletAddress,
			ChainID: st.Identity.ChainID,
			Vendor:  st.Vendor,
		}, sign)
		if err != nil {
			return nil, err
		}
	}

	var id session.Identity
	err = o.sess.Apply(gen, func(s *session.State) error {
		if !wallet.SameAddress(s.Identity.WalletAddress, st.Identity.WalletAddress) {
			return apperrors.New(apperrors.ErrWalletMismatch, "wallet changed during sign-in", nil)
		}
		if result != nil {
			s.Identity.DelegatedUserID = result.UserID
			s.Identity.IdentityToken = result.IdentityToken
			s.Identity.AccessToken = result.AccessToken
		}
		s.Authenticated = true
		id = s.Identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// SuggestConfig asks the backend for a draft configuration.
func (o *Orchestrator) SuggestConfig(ctx context.Context, intent, authKey string) (*gateway.SuggestResponse, error) {
	st := o.sess.Snapshot()
	resp, err := o.deps.Gateway.SuggestConfig(ctx, gateway.SuggestRequest{
		WalletAddress:  st.Identity.WalletAddress,
		Intent:         intent,
		GatewayAuthKey: authKey,
	})
	if err != nil {
		return nil, upstream(err)
	}
	return resp, nil
}

// ValidateConfig checks fields against the bound wallet and stores the
// result. No network call is made.
func (o *Orchestrator) ValidateConfig(fields profile.Fields) (*profile.RuntimeConfig, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	st := o.sess.Snapshot()
	cfg, err := profile.Validate(fields, st.Identity.WalletAddress)
	if err != nil {
		return nil, err
	}
	err = o.sess.Apply(gen, func(s *session.State) error {
		return s.SetConfig(cfg)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Launch runs the challenge protocol and starts polling the new session.
func (o *Orchestrator) Launch(ctx context.Context) (*session.LaunchSession, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	st := o.sess.Snapshot()
	if st.Bootstrap == nil {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "load the deployment bootstrap first", nil)
	}
	if !st.Authenticated {
		return nil, apperrors.New(apperrors.ErrPrerequisite, "sign in before launching", nil)
	}
	if st.Launch.Active() {
		return nil, apperrors.New(apperrors.ErrFlowInProgress, "a launch is already in progress", nil)
	}

	ls, err := o.protocol.Run(ctx, launch.Request{
		Identity:  st.Identity,
		Transport: st.Transport,
		Vendor:    st.Vendor,
		Config:    st.Config,
	})
	if err != nil {
		return nil, err
	}
	ls.ProfileName = st.Config.ProfileName

	err = o.sess.Apply(gen, func(s *session.State) error {
		s.Config.Freeze()
		s.Launch = ls
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.remember(ctx, st.Identity, ls)
	if err := o.startPoll(gen, ls.SessionID); err != nil {
		return nil, err
	}
	out := *ls
	return &out, nil
}

// Resume re-attaches the poller to a launch started earlier. With no
// session id the wallet's cached active launch is used.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*session.LaunchSession, error) {
	gen, release, err := o.sess.Begin()
	if err != nil {
		return nil, err
	}
	defer release()

	st := o.sess.Snapshot()
	if st.Launch.Active() && o.poller.State() == poller.StatePolling {
		return nil, apperrors.New(apperrors.ErrFlowInProgress, "a launch is already being tracked", nil)
	}

	ls := &session.LaunchSession{SessionID: sessionID, Status: gateway.StatusPending}
	if sessionID == "" {
		if o.deps.Active == nil || st.Identity.WalletAddress == "" {
			return nil, apperrors.New(apperrors.ErrPrerequisite, "connect a wallet or pass a session id to resume", nil)
		}
		active, err := o.deps.Active.GetActive(ctx, st.Identity.WalletAddress)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInternal, "could not read the active launch", err)
		}
		if active == nil {
			return nil, apperrors.New(apperrors.ErrNotFound, "no active launch for this wallet", nil)
		}
		ls.SessionID = active.SessionID
		ls.ProfileName = active.ProfileName
	} else if o.deps.Store != nil {
		if rec, err := o.deps.Store.GetLaunch(ctx, sessionID); err == nil && rec != nil {
			ls.ProfileName = rec.ProfileName
		}
	}

	err = o.sess.Apply(gen, func(s *session.State) error {
		s.Launch = ls
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Resuming launch session", "session_id", ls.SessionID)
	if err := o.startPoll(gen, ls.SessionID); err != nil {
		return nil, err
	}
	out := *ls
	return &out, nil
}

// WaitForTerminal blocks until the current launch reaches a terminal status.
func (o *Orchestrator) WaitForTerminal(ctx context.Context) (*poller.Result, error) {
	res, err := o.poller.Wait(ctx)
	if err != nil {
		if errors.Is(err, poller.ErrStopped) {
			return nil, apperrors.New(apperrors.ErrNotFound, "no launch is being polled", err)
		}
		return nil, err
	}
	return res, res.Err
}

// Status returns the launch session as last seen by the poller.
func (o *Orchestrator) Status() (*session.LaunchSession, error) {
	st := o.sess.Snapshot()
	if st.Launch == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "no launch in this session", nil)
	}
	return st.Launch, nil
}

// History lists persisted launches for the bound wallet.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]*model.LaunchRecord, error) {
	if o.deps.Store == nil {
		return nil, nil
	}
	return o.deps.Store.ListLaunches(ctx, o.sess.Snapshot().Identity.WalletAddress, limit)
}

// Onboarding returns the backend's onboarding state for this session.
func (o *Orchestrator) Onboarding(ctx context.Context) (*gateway.OnboardingState, error) {
	state, err := o.deps.Gateway.OnboardingState(ctx, o.onboardingID())
	if err != nil {
		return nil, upstream(err)
	}
	return state, nil
}

func (o *Orchestrator) OnboardingChat(ctx context.Context, message string) (*gateway.ChatResponse, error) {
	if message == "" {
		return nil, apperrors.NewInvalidRequest("message is required")
	}
	resp, err := o.deps.Gateway.OnboardingChat(ctx, gateway.ChatRequest{SessionID: o.onboardingID(), Message: message})
	if err != nil {
		return nil, upstream(err)
	}
	return resp, nil
}

// Logout stops polling, ends the provider session and resets every piece of
// session state in one step.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.poller.Stop()

	o.mu.Lock()
	auth := o.auth
	o.auth = nil
	o.mu.Unlock()
	if auth != nil {
		if err := auth.Logout(ctx); err != nil {
			logger.Warn("Identity provider logout failed", "error", err)
		}
	}

	prev := o.sess.ID()
	o.sess.Reset()
	logger.Info("Session reset", "previous_session", prev, "session_id", o.sess.ID())
	return nil
}

func (o *Orchestrator) onboardingID() string {
	if st := o.sess.Snapshot(); st.Launch != nil {
		return st.Launch.SessionID
	}
	return o.sess.ID()
}

// startPoll polls sessionID for generation gen. A reset that landed after the
// caller's Apply stops the poll again.
func (o *Orchestrator) startPoll(gen uint64, sessionID string) error {
	o.mu.Lock()
	o.pollGen = gen
	o.mu.Unlock()
	if err := o.poller.Start(o.pollCtx, sessionID); err != nil {
		return err
	}
	if o.sess.Generation() != gen {
		o.poller.Stop()
		return apperrors.New(apperrors.ErrStaleSession, "session was reset before polling started", nil)
	}
	return nil
}

func (o *Orchestrator) remember(ctx context.Context, id session.Identity, ls *session.LaunchSession) {
	if o.deps.Store != nil {
		err := o.deps.Store.SaveLaunch(ctx, &model.LaunchRecord{
			SessionID:       ls.SessionID,
			WalletAddress:   id.WalletAddress,
			DelegatedUserID: id.DelegatedUserID,
			ChainID:         id.ChainID,
			ProfileName:     ls.ProfileName,
			Status:          string(ls.Status),
		})
		if err != nil {
			logger.Warn("Could not persist launch", "session_id", ls.SessionID, "error", err)
		}
	}
	if o.deps.Active != nil {
		err := o.deps.Active.PutActive(ctx, &model.ActiveLaunch{
			SessionID:     ls.SessionID,
			WalletAddress: id.WalletAddress,
			ProfileName:   ls.ProfileName,
			StartedAt:     time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("Could not cache active launch", "session_id", ls.SessionID, "error", err)
		}
	}
}

// onPollUpdate folds a poll result into the session. Updates for a session
// that has since been reset are dropped.
func (o *Orchestrator) onPollUpdate(u poller.Update) {
	o.mu.Lock()
	gen := o.pollGen
	o.mu.Unlock()

	var walletAddr string
	err := o.sess.Apply(gen, func(s *session.State) error {
		if s.Launch == nil || s.Launch.SessionID != u.SessionID {
			return apperrors.New(apperrors.ErrStaleSession, "update for another launch", nil)
		}
		if u.Status != "" {
			s.Launch.Status = u.Status
		}
		if u.Terminal && !u.Status.Terminal() {
			s.Launch.Status = session.StatusPollError
		}
		if u.Progress > s.Launch.Progress {
			s.Launch.Progress = u.Progress
		}
		s.Launch.Detail = u.Detail
		s.Launch.Error = u.Error
		if u.Session != nil {
			s.Launch.InstanceURL = u.Session.InstanceURL
			s.Launch.VerifyURL = u.Session.VerifyURL
			s.Launch.EigenAppID = u.Session.EigenAppID
			if u.Session.ProfileName != "" {
				s.Launch.ProfileName = u.Session.ProfileName
			}
		}
		walletAddr = s.Identity.WalletAddress
		return nil
	})
	if err != nil {
		logger.Debug("Dropping poll update", "session_id", u.SessionID, "error", err)
		return
	}

	if u.Terminal {
		o.settle(u, walletAddr)
	}

	o.mu.Lock()
	subs := make([]poller.Observer, 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func (o *Orchestrator) settle(u poller.Update, walletAddr string) {
	ctx := context.Background()
	if o.deps.Store != nil {
		rec := &model.LaunchRecord{SessionID: u.SessionID, Status: string(u.Status), Detail: u.Detail, Error: u.Error}
		if u.Session != nil {
			rec.InstanceURL = u.Session.InstanceURL
			rec.VerifyURL = u.Session.VerifyURL
			rec.EigenAppID = u.Session.EigenAppID
		}
		if rec.Status == "" {
			rec.Status = string(session.StatusPollError)
		}
		if err := o.deps.Store.UpdateLaunch(ctx, rec); err != nil {
			logger.Warn("Could not update launch record", "session_id", u.SessionID, "error", err)
		}
	}
	if o.deps.Active != nil && walletAddr != "" && u.Status.Terminal() {
		if err := o.deps.Active.DeleteActive(ctx, walletAddr); err != nil {
			logger.Warn("Could not clear active launch", "wallet", walletAddr, "error", err)
		}
	}
	if u.Destination != "" && u.Err == nil && o.deps.Navigate != nil {
		logger.Info("Launch ready, navigating", "session_id", u.SessionID, "destination", u.Destination)
		o.deps.Navigate(u.Destination)
	}
}

// upstream keeps typed errors and the gateway's own text.
func upstream(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.New(apperrors.ErrUpstream, err.Error(), err)
}
