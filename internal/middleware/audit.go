package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/model"
	"github.com/GoPolymarket/frontdoor/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	ContextRequestID = "frontdoor_request_id"
	ContextWalletKey = "frontdoor_wallet"

	contextAuditEntry = "frontdoor_audit"
	maxAuditBody      = 16 << 10
)

// secretKeys are masked wherever they appear in a recorded body.
var secretKeys = map[string]bool{
	"signature":        true,
	"identity_token":   true,
	"access_token":     true,
	"token":            true,
	"gateway_auth_key": true,
	"private_key":      true,
	"api_key":          true,
}

type AuditRecorder interface {
	Record(entry *model.AuditLog)
}

// captureWriter keeps the first maxAuditBody bytes of the response.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if room := maxAuditBody - w.buf.Len(); room > 0 {
		w.buf.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Audit records one entry per request. Register it before ErrorHandler so the
// rendered error is part of the entry.
func Audit(rec AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := &model.AuditLog{
			ID:        uuid.NewString(),
			Route:     c.Request.Method + " " + c.Request.URL.Path,
			CreatedAt: start.UTC(),
		}
		c.Header(HeaderRequestID, entry.ID)
		c.Set(ContextRequestID, entry.ID)
		c.Set(contextAuditEntry, entry)

		if c.Request.Method != http.MethodGet && c.Request.Body != nil {
			raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody+1))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
			entry.Request = redactBody(raw)
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		entry.SessionID = c.GetString(ContextSessionKey)
		entry.Wallet = c.GetString(ContextWalletKey)
		entry.Status = w.Status()
		entry.LatencyMs = time.Since(start).Milliseconds()
		entry.Response = redactBody(w.buf.Bytes())
		if len(c.Errors) > 0 {
			appErr := apperrors.Wrap(c.Errors.Last().Err)
			entry.ErrorCode = string(appErr.Type)
			entry.ErrorMessage = appErr.Message
		}
		rec.Record(entry)
	}
}

// TagAudit names the flow stage a request belongs to and, when known, the
// launch session it touched.
func TagAudit(c *gin.Context, stage, launchSessionID string) {
	v, ok := c.Get(contextAuditEntry)
	if !ok {
		return
	}
	entry := v.(*model.AuditLog)
	if stage != "" {
		entry.Stage = stage
	}
	if launchSessionID != "" {
		entry.LaunchSessionID = launchSessionID
	}
}

// redactBody masks secretKeys in JSON bodies. Anything else is recorded by
// size only.
func redactBody(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	if len(body) > maxAuditBody {
		return fmt.Sprintf("[%d+ bytes, truncated]", maxAuditBody)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Sprintf("[%d bytes, not json]", len(body))
	}
	out, err := json.Marshal(redact(v))
	if err != nil {
		return fmt.Sprintf("[%d bytes]", len(body))
	}
	return string(out)
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if secretKeys[strings.ToLower(k)] {
				t[k] = "***"
			} else {
				t[k] = redact(val)
			}
		}
	case []any:
		for i := range t {
			t[i] = redact(t[i])
		}
	}
	return v
}
