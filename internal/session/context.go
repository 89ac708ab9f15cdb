package session

import (
	"strings"
	"sync"

	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
	"github.com/google/uuid"
)

// Identity is the verified wallet plus delegated identity of a session.
type Identity struct {
	WalletAddress   string `json:"wallet_address"`
	ChainID         int64  `json:"chain_id"`
	DelegatedUserID string `json:"delegated_user_id,omitempty"`
	IdentityToken   string `json:"-"`
	AccessToken     string `json:"-"`
}

// StatusPollError is set locally when the launch status could no longer be
// read. It ends the launch for this session without claiming a backend outcome.
const StatusPollError gateway.Status = "poll_error"

// LaunchSession tracks one backend launch. Status only changes from poll reads.
type LaunchSession struct {
	SessionID        string         `json:"session_id"`
	ChallengeMessage string         `json:"challenge_message"`
	Status           gateway.Status `json:"status"`
	Detail           string         `json:"detail,omitempty"`
	Error            string         `json:"error,omitempty"`
	InstanceURL      string         `json:"instance_url,omitempty"`
	VerifyURL        string         `json:"verify_url,omitempty"`
	ProfileName      string         `json:"profile_name,omitempty"`
	EigenAppID       string         `json:"eigen_app_id,omitempty"`
	Progress         int            `json:"progress"`
}

func (l *LaunchSession) Active() bool {
	return l != nil && !l.Status.Terminal() && l.Status != StatusPollError
}

// State is everything a session owns. Reset clears all of it at once.
type State struct {
	ID            string
	Bootstrap     *gateway.Bootstrap
	Transport     wallet.Transport
	Vendor        wallet.Vendor
	Identity      Identity
	Authenticated bool
	Config        *profile.RuntimeConfig
	Launch        *LaunchSession
}

// BindWallet sets the session wallet. A different wallet than the one
// already bound is refused.
func (s *State) BindWallet(conn *wallet.Connection) error {
	if s.Identity.WalletAddress != "" && !wallet.SameAddress(s.Identity.WalletAddress, conn.Address) {
		return apperrors.New(apperrors.ErrWalletMismatch,
			"connected wallet "+conn.Address+" does not match the session wallet "+s.Identity.WalletAddress, nil)
	}
	s.Identity.WalletAddress = strings.ToLower(conn.Address)
	s.Identity.ChainID = conn.ChainID
	s.Transport = conn.Transport
	s.Vendor = conn.Vendor
	return nil
}

// SetConfig replaces the runtime config unless a launch still owns the
// current one.
func (s *State) SetConfig(cfg *profile.RuntimeConfig) error {
	if s.Launch.Active() && s.Config.Frozen() {
		return apperrors.New(apperrors.ErrFlowInProgress, "configuration is locked while a launch is in progress", nil)
	}
	s.Config = cfg
	s.Launch = nil
	return nil
}

// Context is a session-scoped container with a generation counter. Work
// captures the generation before I/O and applies results through Apply,
// which refuses them once the session has been reset.
type Context struct {
	mu         sync.Mutex
	state      State
	generation uint64
	flow       uint64
	busy       bool
	onReset    []func()
}

func New() *Context {
	return &Context{state: State{ID: uuid.NewString(), Vendor: wallet.VendorUnknown}}
}

func (c *Context) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ID
}

func (c *Context) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Launch != nil {
		l := *s.Launch
		s.Launch = &l
	}
	return s
}

// Begin marks the session busy for one stage and returns the generation the
// stage runs under. A second concurrent stage gets FLOW_IN_PROGRESS.
func (c *Context) Begin() (uint64, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, nil, apperrors.New(apperrors.ErrFlowInProgress, "another step is still running", nil)
	}
	c.busy = true
	c.flow++
	flow := c.flow
	release := func() {
		c.mu.Lock()
		if c.flow == flow {
			c.busy = false
		}
		c.mu.Unlock()
	}
	return c.generation, release, nil
}

// Apply runs fn on the state if the session has not been reset since gen.
func (c *Context) Apply(gen uint64, fn func(*State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return apperrors.New(apperrors.ErrStaleSession, "session was reset while the request was in flight", nil)
	}
	return fn(&c.state)
}

// OnReset registers a hook run on every Reset, outside the lock.
func (c *Context) OnReset(fn func()) {
	c.mu.Lock()
	c.onReset = append(c.onReset, fn)
	c.mu.Unlock()
}

// Reset clears identity, config and launch state in one step and invalidates
// in-flight work.
func (c *Context) Reset() {
	c.mu.Lock()
	c.generation++
	c.flow++
	c.busy = false
	c.state = State{ID: uuid.NewString(), Vendor: wallet.VendorUnknown}
	hooks := append([]func(){}, c.onReset...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
