package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"github.com/GoPolymarket/frontdoor/internal/redirect"
)

type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateTerminal State = "terminal"
)

const (
	DefaultInterval    = 1500 * time.Millisecond
	DefaultMinInterval = 1200 * time.Millisecond

	maxProgress = 95
)

// ErrStopped is returned by Wait when the poll was stopped before a terminal status.
var ErrStopped = errors.New("polling stopped")

// Fetcher reads a launch session status.
type Fetcher interface {
	Session(ctx context.Context, sessionID string) (*gateway.SessionStatus, error)
}

type Options struct {
	Interval    time.Duration
	MinInterval time.Duration
	// Interactive applies MinInterval as a floor.
	Interactive bool
	// MaxConsecutiveErrors fetch failures end the poll with POLLING_ERROR.
	MaxConsecutiveErrors int
	// Origin resolves relative destination URLs.
	Origin string
}

// Update is sent to observers after every poll.
type Update struct {
	SessionID   string                 `json:"session_id"`
	Status      gateway.Status         `json:"status"`
	Progress    int                    `json:"progress"`
	Detail      string                 `json:"detail,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Destination string                 `json:"destination,omitempty"`
	Terminal    bool                   `json:"terminal"`
	Session     *gateway.SessionStatus `json:"-"`
	Err         error                  `json:"-"`
}

// Result is the outcome of a poll that reached a terminal status. Destination
// is set only for ready sessions whose URL passed sanitization.
type Result struct {
	SessionID   string
	Status      gateway.Status
	Destination string
	Session     *gateway.SessionStatus
	Err         error
}

type Observer func(Update)

// Poller is a single-flight status loop: idle -> polling -> terminal. The
// next fetch is scheduled only after the previous one returned.
type Poller struct {
	fetch Fetcher
	opts  Options

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	result    *Result
	observers []Observer
}

func New(fetch Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 1
	}
	return &Poller{fetch: fetch, opts: opts, state: StateIdle}
}

// Interval is the delay between a response and the next fetch.
func (p *Poller) Interval() time.Duration {
	if p.opts.Interactive && p.opts.Interval < p.opts.MinInterval {
		return p.opts.MinInterval
	}
	return p.opts.Interval
}

// SetInterval applies the interval announced by the bootstrap endpoint.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.opts.Interval = d
	p.mu.Unlock()
}

func (p *Poller) Subscribe(o Observer) {
	p.mu.Lock()
	p.observers = append(p.observers, o)
	p.mu.Unlock()
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins polling sessionID. Only one poll runs at a time.
func (p *Poller) Start(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePolling {
		return apperrors.New(apperrors.ErrFlowInProgress, "a launch session is already being polled", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.state = StatePolling
	p.cancel = cancel
	p.result = nil
	p.done = make(chan struct{})
	go p.run(runCtx, sessionID, p.done, p.Interval())
	return nil
}

// Stop cancels a pending or in-flight poll and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current poll ends.
func (p *Poller) Wait(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil, ErrStopped
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return nil, ErrStopped
	}
	return p.result, nil
}

func (p *Poller) run(ctx context.Context, sessionID string, done chan struct{}, interval time.Duration) {
	defer close(done)
	log := logger.With("stage", "poll", "session_id", sessionID)

	timer := time.NewTimer(0)
	defer timer.Stop()

	progress := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			p.settle(nil)
			return
		case <-timer.C:
		}

		st, err := p.fetch.Session(ctx, sessionID)
		if ctx.Err() != nil {
			p.settle(nil)
			return
		}
		if err != nil {
			failures++
			metrics.PollsTotal.WithLabelValues("error").Inc()
			log.Warn("Session poll failed", "error", err, "failures", failures)
			if failures >= p.opts.MaxConsecutiveErrors {
				perr := apperrors.New(apperrors.ErrPolling, err.Error(), err)
				p.finish(Update{SessionID: sessionID, Progress: progress, Terminal: true, Err: perr, Error: perr.Error()},
					&Result{SessionID: sessionID, Err: perr})
				return
			}
			p.notify(Update{SessionID: sessionID, Progress: progress, Err: err, Error: err.Error()})
			timer.Reset(interval)
			continue
		}
		failures = 0
		metrics.PollsTotal.WithLabelValues(string(st.Status)).Inc()

		if st.Status.Terminal() {
			res := p.terminal(sessionID, st)
			u := Update{
				SessionID:   sessionID,
				Status:      st.Status,
				Progress:    progress,
				Detail:      st.Detail,
				Error:       st.Error,
				Destination: res.Destination,
				Terminal:    true,
				Session:     st,
				Err:         res.Err,
			}
			if res.Err != nil {
				u.Error = res.Err.Error()
			} else if st.Status == gateway.StatusReady {
				u.Progress = 100
			}
			log.Info("Launch session reached terminal status", "status", st.Status)
			p.finish(u, res)
			return
		}

		progress = advance(progress)
		p.notify(Update{SessionID: sessionID, Status: st.Status, Progress: progress, Detail: st.Detail, Session: st})
		p.mu.Lock()
		interval = p.Interval()
		p.mu.Unlock()
		timer.Reset(interval)
	}
}

// terminal resolves the destination for ready sessions. A ready session with
// no usable URL is a provisioning anomaly and is never navigated to.
func (p *Poller) terminal(sessionID string, st *gateway.SessionStatus) *Result {
	res := &Result{SessionID: sessionID, Status: st.Status, Session: st}
	if st.Status != gateway.StatusReady {
		return res
	}
	raw := st.InstanceURL
	if raw == "" {
		raw = st.VerifyURL
	}
	dest, ok := redirect.Sanitize(p.opts.Origin, raw)
	if !ok {
		res.Err = apperrors.New(apperrors.ErrInvalidRedirect, "launch is ready but returned an unsafe or missing destination URL", nil)
		return res
	}
	res.Destination = dest
	return res
}

// advance moves progress a fraction of the remaining distance so it never
// reaches 100 before the session is ready.
func advance(progress int) int {
	step := (maxProgress - progress) / 5
	if step < 1 {
		step = 1
	}
	if progress+step > maxProgress {
		return maxProgress
	}
	return progress + step
}

func (p *Poller) notify(u Update) {
	p.mu.Lock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.Unlock()
	for _, o := range observers {
		o(u)
	}
}

func (p *Poller) finish(u Update, res *Result) {
	p.settle(res)
	p.notify(u)
}

// settle records the result and leaves the polling state. A nil result
// means the poll was stopped.
func (p *Poller) settle(res *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = res
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if res != nil {
		p.state = StateTerminal
	} else {
		p.state = StateIdle
	}
}
