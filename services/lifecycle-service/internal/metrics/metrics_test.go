package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsAndServes(t *testing.T) {
	c := NewCollector()
	c.ObserveTick("completed", 120*time.Millisecond)
	c.ObserveTick("skipped", 0)
	c.Transition("CONFIRMED", "IN_PROGRESS", "automatic")
	c.Reminder("24h")
	c.Notification("sent")
	c.Notification("sent")

	require.Equal(t, 1.0, testutil.ToFloat64(c.TicksTotal.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.TransitionsTotal.WithLabelValues("CONFIRMED", "IN_PROGRESS", "automatic")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.NotificationsTotal.WithLabelValues("sent")))
	require.Equal(t, 1, testutil.CollectAndCount(c.TickDuration))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "lifecycle_appointments_reminders_total"))
}
