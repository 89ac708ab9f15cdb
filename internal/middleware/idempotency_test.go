package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIdempotencyReplaysResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(IdempotencyMiddleware(NewInMemIdempotencyStore(0), func(*gin.Context) string { return "ctx1" }))
	r.POST("/v1/launch", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusAccepted, gin.H{"n": calls})
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/launch", nil)
		req.Header.Set(HeaderIdempotencyKey, "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyServerErrorStaysRetryable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(IdempotencyMiddleware(NewInMemIdempotencyStore(0), nil))
	r.POST("/v1/launch", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusBadGateway, gin.H{"error": "down"})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/launch", nil)
		req.Header.Set(HeaderIdempotencyKey, "k1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestInMemStoreReportsInFlight(t *testing.T) {
	s := NewInMemIdempotencyStore(0)
	_, hit := s.GetOrLock("a")
	assert.False(t, hit)
	rec, hit := s.GetOrLock("a")
	assert.True(t, hit)
	assert.True(t, rec.Processing)
}
