package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct{ entries []*model.AuditLog }

func (r *recorded) Record(e *model.AuditLog) { r.entries = append(r.entries, e) }

func newAuditRouter(rec AuditRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Audit(rec), ErrorHandler())
	r.Use(func(c *gin.Context) {
		c.Set(ContextSessionKey, "sess-1")
		c.Next()
	})
	r.POST("/v1/launch", func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		TagAudit(c, "launch", "ls-9")
		c.JSON(http.StatusAccepted, gin.H{"session_id": "ls-9", "identity_token": "tok"})
	})
	r.POST("/v1/config/validate", func(c *gin.Context) {
		TagAudit(c, "config", "")
		c.Error(apperrors.NewValidation("leverage_cap", "leverage_cap must be between 1 and 3"))
	})
	return r
}

func TestAuditRecordsStageAndMasksSecrets(t *testing.T) {
	rec := &recorded{}
	r := newAuditRouter(rec)

	req := httptest.NewRequest(http.MethodPost, "/v1/launch", strings.NewReader(`{"signature":"0xdead","config":{"gateway_auth_key":"k","mode":"paper"}}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, w.Header().Get(HeaderRequestID), e.ID)
	assert.Equal(t, "POST /v1/launch", e.Route)
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, "launch", e.Stage)
	assert.Equal(t, "ls-9", e.LaunchSessionID)
	assert.Equal(t, http.StatusAccepted, e.Status)
	assert.Empty(t, e.ErrorCode)
	assert.JSONEq(t, `{"signature":"***","config":{"gateway_auth_key":"***","mode":"paper"}}`, e.Request)
	assert.JSONEq(t, `{"session_id":"ls-9","identity_token":"***"}`, e.Response)
}

func TestAuditCapturesRenderedValidationError(t *testing.T) {
	rec := &recorded{}
	r := newAuditRouter(rec)

	req := httptest.NewRequest(http.MethodPost, "/v1/config/validate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "leverage_cap", body["field"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, w.Header().Get(HeaderRequestID), body["request_id"])

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "config", e.Stage)
	assert.Equal(t, "VALIDATION_ERROR", e.ErrorCode)
	assert.Equal(t, "leverage_cap must be between 1 and 3", e.ErrorMessage)
	assert.Contains(t, e.Response, `"field":"leverage_cap"`)
}

func TestRedactBody(t *testing.T) {
	assert.Equal(t, "", redactBody(nil))
	assert.Equal(t, "", redactBody([]byte("  ")))
	assert.Equal(t, "[8 bytes, not json]", redactBody([]byte("not-json")))
	assert.JSONEq(t, `[{"Access_Token":"***"},{"ok":1}]`, redactBody([]byte(`[{"Access_Token":"a"},{"ok":1}]`)))
	assert.Equal(t, "[16384+ bytes, truncated]", redactBody([]byte(strings.Repeat("x", maxAuditBody+1))))
}
