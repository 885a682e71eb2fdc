package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("Following", true, false)
	m.Observe("Following", true, false)
	m.Observe("Following", false, true)
	m.Observe("friendships/create", false, false)

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("Following", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Following", OutcomeRateLimited)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("friendships/create", OutcomeError)))
	n, err := testutil.GatherAndCount(reg, "xgraph_api_requests_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestNewWithoutRegisterer(t *testing.T) {
	m := New(nil)
	m.Observe("UserByScreenName", true, false)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("UserByScreenName", OutcomeSuccess)))
}
