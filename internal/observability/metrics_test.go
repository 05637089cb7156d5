package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("Should count requests, errors and directory activity", func(t *testing.T) {
		m := NewMetrics()
		m.RecordRequest("/members/:id", "PATCH", 403, 5*time.Millisecond)
		m.RecordRequest("/members/:id", "PATCH", 403, 5*time.Millisecond)
		m.RecordError("/members/:id", "PATCH", "FORBIDDEN")
		m.RecordDirectoryOp("approve", "ok")
		m.RecordSnapshot(map[string]int{"active": 3, "pending": 1})
		m.RecordSnapshot(map[string]int{"active": 4})

		assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("PATCH", "/members/:id", "403")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("PATCH", "/members/:id", "FORBIDDEN")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.directoryOps.WithLabelValues("approve", "ok")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.snapshots))
		assert.Equal(t, 4.0, testutil.ToFloat64(m.directoryCounts.WithLabelValues("active")))
		assert.Equal(t, 1, testutil.CollectAndCount(m.directoryCounts))
	})
	t.Run("Should tolerate a nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordRequest("/", "GET", 200, time.Millisecond)
			m.RecordError("/", "GET", "X")
			m.RecordDirectoryOp("edit", "ok")
			m.RecordSnapshot(nil)
		})
	})
}
