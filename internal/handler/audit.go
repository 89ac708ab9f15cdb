package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/GoPolymarket/frontdoor/internal/service"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc     *service.AuditService
	session func() string
}

// NewAuditHandler lists audit entries. Without a session_id query the
// current session is used.
func NewAuditHandler(svc *service.AuditService, session func() string) *AuditHandler {
	return &AuditHandler{svc: svc, session: session}
}

func (h *AuditHandler) List(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" && h.session != nil {
		sessionID = h.session()
	}
	if sessionID == "*" {
		sessionID = ""
	}

	q := model.AuditQuery{SessionID: sessionID, Stage: c.Query("stage")}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			q.Limit = parsed
		}
	}
	for param, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewValidation(param, err.Error()))
			return
		}
		*dst = &t
	}

	records, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor unix seconds", raw)
}
