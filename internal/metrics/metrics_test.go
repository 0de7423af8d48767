package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r)
	assert.NotNil(t, r.PagesScanned)
	assert.NotNil(t, r.RowsRecovered)
	assert.NotNil(t, r.PhaseDuration)
	assert.NotNil(t, r.registry)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRecordRows(t *testing.T) {
	r := NewRegistry()
	r.RecordRows("users", "regular", 3)
	r.RecordRows("users", "deleted-in-page", 1)
	r.RecordRows("users", "regular", 2)

	c, err := r.RowsRecovered.GetMetricWithLabelValues("users", "regular")
	require.NoError(t, err)
	assert.Equal(t, 5.0, counterValue(t, c))

	c, err = r.RowsRecovered.GetMetricWithLabelValues("users", "deleted-in-page")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c))
}

func TestRecordCounters(t *testing.T) {
	r := NewRegistry()
	r.RecordPage("carve")
	r.RecordPage("carve")
	r.RecordFailure("freelist")
	r.RecordAnomaly("freelist_cycle")
	r.RecordCarved(40)
	r.RecordFrame("wal", true)
	r.RecordFrame("wal", false)
	r.RecordPhase("carve", 20*time.Millisecond)

	c, _ := r.PagesScanned.GetMetricWithLabelValues("carve")
	assert.Equal(t, 2.0, counterValue(t, c))
	c, _ = r.TaskFailures.GetMetricWithLabelValues("freelist")
	assert.Equal(t, 1.0, counterValue(t, c))
	c, _ = r.Anomalies.GetMetricWithLabelValues("freelist_cycle")
	assert.Equal(t, 1.0, counterValue(t, c))
	assert.Equal(t, 40.0, counterValue(t, r.CarvedBytes))
	c, _ = r.LogFrames.GetMetricWithLabelValues("wal", "false")
	assert.Equal(t, 1.0, counterValue(t, c))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "sqlforensic_phase_duration_seconds" {
			found = true
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "phase histogram not gathered")
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordPage("discovery")
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `sqlforensic_pages_scanned_total{phase="discovery"} 1`))
}
