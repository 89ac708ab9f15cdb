package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/middleware"
	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/profile"
	"github.com/GoPolymarket/frontdoor/internal/session"
	"github.com/gin-gonic/gin"
)

// Flow is the orchestration surface exposed over HTTP.
type Flow interface {
	Session() *session.Context
	Bootstrap(ctx context.Context) (*gateway.Bootstrap, error)
	ConnectWallet(ctx context.Context) (*session.Identity, error)
	Authenticate(ctx context.Context) (*session.Identity, error)
	SuggestConfig(ctx context.Context, intent, authKey string) (*gateway.SuggestResponse, error)
	ValidateConfig(fields profile.Fields) (*profile.RuntimeConfig, error)
	Launch(ctx context.Context) (*session.LaunchSession, error)
	Resume(ctx context.Context, sessionID string) (*session.LaunchSession, error)
	Status() (*session.LaunchSession, error)
	History(ctx context.Context, limit int) ([]*model.LaunchRecord, error)
	Onboarding(ctx context.Context) (*gateway.OnboardingState, error)
	OnboardingChat(ctx context.Context, message string) (*gateway.ChatResponse, error)
	Logout(ctx context.Context) error
	Subscribe(fn poller.Observer) func()
}

type FrontdoorHandler struct {
	flow Flow
}

func NewFrontdoorHandler(flow Flow) *FrontdoorHandler {
	return &FrontdoorHandler{flow: flow}
}

// Tag records the session and wallet on the request for the audit log.
func (h *FrontdoorHandler) Tag() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := h.flow.Session().Snapshot()
		c.Set(middleware.ContextSessionKey, st.ID)
		c.Set(middleware.ContextWalletKey, st.Identity.WalletAddress)
		c.Next()
	}
}

// SessionScope keys idempotent requests by session context.
func (h *FrontdoorHandler) SessionScope(*gin.Context) string {
	return h.flow.Session().ID()
}

type sessionView struct {
	SessionID     string                 `json:"session_id"`
	Bootstrap     *gateway.Bootstrap     `json:"bootstrap,omitempty"`
	Vendor        string                 `json:"vendor"`
	Identity      session.Identity       `json:"identity"`
	Authenticated bool                   `json:"authenticated"`
	HasToken      bool                   `json:"has_token"`
	Config        map[string]any         `json:"config,omitempty"`
	Launch        *session.LaunchSession `json:"launch,omitempty"`
}

func (h *FrontdoorHandler) GetSession(c *gin.Context) {
	st := h.flow.Session().Snapshot()
	view := sessionView{
		SessionID:     st.ID,
		Bootstrap:     st.Bootstrap,
		Vendor:        st.Vendor.String(),
		Identity:      st.Identity,
		Authenticated: st.Authenticated,
		HasToken:      st.Identity.IdentityToken != "" || st.Identity.AccessToken != "",
		Launch:        st.Launch,
	}
	if st.Config != nil {
		view.Config = st.Config.Payload()
		delete(view.Config, "gateway_auth_key")
	}
	c.JSON(http.StatusOK, view)
}

func (h *FrontdoorHandler) Bootstrap(c *gin.Context) {
	boot, err := h.flow.Bootstrap(c.Request.Context())
	if err != nil {
		h.fail(c, "bootstrap", err)
		return
	}
	c.JSON(http.StatusOK, boot)
}

func (h *FrontdoorHandler) ConnectWallet(c *gin.Context) {
	id, err := h.flow.ConnectWallet(c.Request.Context())
	if err != nil {
		h.fail(c, "wallet", err)
		return
	}
	c.Set(middleware.ContextWalletKey, id.WalletAddress)
	middleware.TagAudit(c, "wallet", "")
	c.JSON(http.StatusOK, id)
}

func (h *FrontdoorHandler) Login(c *gin.Context) {
	id, err := h.flow.Authenticate(c.Request.Context())
	if err != nil {
		h.fail(c, "identity", err)
		return
	}
	middleware.TagAudit(c, "identity", "")
	c.JSON(http.StatusOK, gin.H{
		"identity":      id,
		"authenticated": true,
	})
}

func (h *FrontdoorHandler) Logout(c *gin.Context) {
	middleware.TagAudit(c, "logout", "")
	if err := h.flow.Logout(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": h.flow.Session().ID()})
}

type suggestRequest struct {
	Intent         string `json:"intent" binding:"required"`
	GatewayAuthKey string `json:"gateway_auth_key"`
}

func (h *FrontdoorHandler) SuggestConfig(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.flow.SuggestConfig(c.Request.Context(), req.Intent, req.GatewayAuthKey)
	if err != nil {
		h.fail(c, "suggest", err)
		return
	}
	out := *resp
	out.Config = make(map[string]any, len(resp.Config))
	for k, v := range resp.Config {
		if k != "gateway_auth_key" {
			out.Config[k] = v
		}
	}
	c.JSON(http.StatusOK, out)
}

type validateRequest struct {
	Config profile.Fields `json:"config" binding:"required"`
}

func (h *FrontdoorHandler) ValidateConfig(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	cfg, err := h.flow.ValidateConfig(req.Config)
	if err != nil {
		h.fail(c, "config", err)
		return
	}
	payload := cfg.Payload()
	delete(payload, "gateway_auth_key")
	c.JSON(http.StatusOK, gin.H{"valid": true, "config": payload})
}

func (h *FrontdoorHandler) Launch(c *gin.Context) {
	ls, err := h.flow.Launch(c.Request.Context())
	if err != nil {
		h.fail(c, "launch", err)
		return
	}
	middleware.TagAudit(c, "launch", ls.SessionID)
	c.JSON(http.StatusAccepted, ls)
}

type resumeRequest struct {
	SessionID string `json:"session_id"`
}

func (h *FrontdoorHandler) Resume(c *gin.Context) {
	var req resumeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
	}
	ls, err := h.flow.Resume(c.Request.Context(), req.SessionID)
	if err != nil {
		h.fail(c, "resume", err)
		return
	}
	middleware.TagAudit(c, "resume", ls.SessionID)
	c.JSON(http.StatusAccepted, ls)
}

func (h *FrontdoorHandler) Status(c *gin.Context) {
	ls, err := h.flow.Status()
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ls)
}

func (h *FrontdoorHandler) History(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	records, err := h.flow.History(c.Request.Context(), limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	if records == nil {
		records = []*model.LaunchRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *FrontdoorHandler) OnboardingState(c *gin.Context) {
	state, err := h.flow.Onboarding(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *FrontdoorHandler) OnboardingChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.flow.OnboardingChat(c.Request.Context(), req.Message)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FrontdoorHandler) fail(c *gin.Context, stage string, err error) {
	middleware.TagAudit(c, stage, "")
	c.Error(err)
}
