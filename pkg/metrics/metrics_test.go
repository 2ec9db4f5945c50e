package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.DocsIndexedTotal.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.DocsIndexedTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DocsIndexedTotal))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.CrawlFetchesTotal.WithLabelValues("visited").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `inforet_crawl_fetches_total{outcome="visited"} 1`)
}
