package stats

import (
	"expvar"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdaterCounters(t *testing.T) {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 16),
	}
	su.RegisterMetric("ActiveConnections")
	su.Run()
	defer su.Stop()

	su.Incr("ActiveConnections")
	su.Incr("ActiveConnections")
	su.Decr("ActiveConnections")

	assert.Eventually(t, func() bool {
		return su.vars.Get("ActiveConnections").String() == "1"
	}, time.Second, 10*time.Millisecond, "expected counter to settle at 1")
}
