package scanner

import (
	"net/http/httptest"
	"testing"

	"github.com/MegaAntiCheat/masterbase/internal/metrics"
)

// newMetricsSnapshot renders the collector's registry to Prometheus text
// exposition format.
func newMetricsSnapshot(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
