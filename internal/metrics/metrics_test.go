package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordTurn("ok")
	c.RecordTurn("ok")
	c.RecordTurn("gateway")
	c.RecordGatewayCall(200*time.Millisecond, 5)
	c.RecordGatewayCall(100*time.Millisecond, 0)
	c.RecordMessage("user")
	c.RecordClear()
	c.RecordBackup("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("gateway")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.tokensTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesAppended.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsCleared))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backupsTotal.WithLabelValues("error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.gatewayDuration))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTurn("ok")
		c.RecordGatewayCall(time.Second, 3)
		c.RecordMessage("assistant")
		c.RecordClear()
		c.RecordBackup("ok")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(nil)
	c.RecordTurn("ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatbot_turns_total{status="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
