package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"engagement_backend/platform/apperr"
	"engagement_backend/platform/config"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newSecretRouter(secret string) *gin.Engine {
	r := gin.New()
	r.Use(WebhookSecret(&config.Config{WebhookSecret: secret}))
	r.POST("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestWebhookSecretRejectsMismatch(t *testing.T) {
	r := newSecretRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(HeaderWebhookSecret, "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookSecretAcceptsMatch(t *testing.T) {
	r := newSecretRouter("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(HeaderWebhookSecret, "s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestWebhookSecretDisabledWhenUnset(t *testing.T) {
	r := newSecretRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequestIDPropagatesInboundHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("missing contact id"), http.StatusBadRequest},
		{apperr.Upstream("reply generation failed", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("pg: connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		HandleError(c, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}
