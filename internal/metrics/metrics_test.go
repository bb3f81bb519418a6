package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.Submitted("python", true)
	rec.Submitted("cobol", false)
	rec.RunFinished("python", "succeeded", 120*time.Millisecond)
	rec.Reaped(3, 1)

	done := rec.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.activeRuns))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.activeRuns))

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.submissions.WithLabelValues("cobol", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("python", "succeeded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.reaperRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.reaperFailed))
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var rec *Recorder
	rec.Submitted("python", true)
	rec.RunFinished("python", "failed", time.Second)
	rec.Reaped(1, 1)
	rec.RunStarted()()
}

func TestHandlerServesExposition(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	rec.Submitted("python", true)

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "cortex_submissions_total"))
}
