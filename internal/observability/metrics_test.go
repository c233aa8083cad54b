package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("linkctl", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrame("sent", 4)
	RecordFrame("received", 30)
	RecordStateTransition("listening")
	SetPeers(2)
	RecordWriteFailure()

	log.Info().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestRequestIDIsGeneratedAndEchoed(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(log.Logger), RequestMetricsMiddleware("linkctl-test"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if _, err := uuid.Parse(rr.Header().Get(RequestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", rr.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("caller request id should be echoed, got %q", got)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
