package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Search("welders", "live")
	r.Search("welders", "live")
	r.Search("welders", "cache")
	r.Upsert("ok")
	r.Subscription("contact", "incomplete")
	r.PlacesRequest(120*time.Millisecond, nil)
	r.PlacesRequest(time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.searches.WithLabelValues("welders", "live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.searches.WithLabelValues("welders", "cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.upserts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.subscriptions.WithLabelValues("contact", "incomplete")))

	n, err := testutil.GatherAndCount(reg, "upkeep_places_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Search("mechanics", "live")
		r.PlacesRequest(time.Second, nil)
		r.Upsert("ok")
		r.Subscription("verified", "active")
	})
}
