package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("progress", "applied")
	m.Recovery("recovered")
	m.Enrollment()
	m.Profile("hot")
	m.EmailEvent("open", "applied")
	m.Notification("sent")
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestTransitionCounter(t *testing.T) {
	m := New()
	m.Transition("progress", "applied")
	m.Transition("progress", "applied")
	m.Transition("progress", "noop")

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("progress", "applied")); got != 2 {
		t.Fatalf("expected 2 applied transitions, got %v", got)
	}
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/deals/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/deals/abc", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `route="/deals/:id"`) {
		t.Fatalf("expected route template label in output")
	}
}
