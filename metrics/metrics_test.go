package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	r := New()
	r.ConnAccepted()
	r.ConnAccepted()
	r.ConnDropped()

	snap := r.Snapshot()
	assert.Equal(t, 2.0, snap.ConnAccepted)
	assert.Equal(t, 1.0, snap.ConnDropped)
}

func TestRegistryTrackInProgress(t *testing.T) {
	r := New()
	done1 := r.TrackInProgress()
	done2 := r.TrackInProgress()
	require.Equal(t, 2.0, r.ConnActive())

	done1()
	assert.Equal(t, 1.0, r.ConnActive())

	// Calling the closer twice must not double-decrement.
	done1()
	assert.Equal(t, 1.0, r.ConnActive())

	done2()
	assert.Equal(t, 0.0, r.ConnActive())
}

func TestLabeledCounter(t *testing.T) {
	r := New()
	r.RequestReceived("GET", "/foo", 120, 0)
	r.RequestReceived("GET", "/foo", 150, 0)
	r.RequestReceived("POST", "/bar", 80, 64)

	snap := r.Snapshot()
	assert.Equal(t, 2.0, snap.RequestsTotal["GET\x1f/foo"])
	assert.Equal(t, 1.0, snap.RequestsTotal["POST\x1f/bar"])
}

func TestRegistryMarshalJSON(t *testing.T) {
	r := New()
	r.ConnAccepted()
	b, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}
