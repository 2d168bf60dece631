package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRelayCollectors(t *testing.T) {
	m := NewRelay(prometheus.NewRegistry())
	m.Published(100)
	m.Published(20)
	m.DecodeStop("BAD_MAGIC")
	m.Throttled(1500 * time.Millisecond)
	m.CheckpointSaved(3, 4096)

	require.Equal(t, 2.0, testutil.ToFloat64(m.published))
	require.Equal(t, 120.0, testutil.ToFloat64(m.publishedBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("BAD_MAGIC")))
	require.Equal(t, 1.5, testutil.ToFloat64(m.throttleSeconds))
	require.Equal(t, 3.0, testutil.ToFloat64(m.checkpointFile))
	require.Equal(t, 4096.0, testutil.ToFloat64(m.checkpointOffset))
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var r *Relay
	r.Published(1)
	r.TransportError()
	var w *Writer
	w.Written(1)
	w.Dropped("x")
}

func TestWriterCollectors(t *testing.T) {
	m := NewWriter(prometheus.NewRegistry())
	m.Written(12)
	m.Dropped("TRUNCATED")
	m.Dropped("TRUNCATED")
	require.Equal(t, 12.0, testutil.ToFloat64(m.writtenBytes))
	require.Equal(t, 2.0, testutil.ToFloat64(m.dropped.WithLabelValues("TRUNCATED")))
}
