package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/delegation-marketplace/stx-delegator/config"
)

func TestNewStub(t *testing.T) {
	require := require.New(t)

	config.GlobalConfig = config.DefaultConfig()
	require.False(Enabled())

	svc, err := New()
	require.NoError(err, "New")
	require.NoError(svc.Start(), "Start")
	svc.Stop()
	<-svc.Quit()
	svc.Cleanup()
}

func TestNewUnsupportedMode(t *testing.T) {
	config.GlobalConfig = config.DefaultConfig()
	config.GlobalConfig.Metrics.Mode = "carrier-pigeon"
	defer func() { config.GlobalConfig = config.DefaultConfig() }()

	_, err := New()
	require.Error(t, err, "unsupported mode should be rejected")
}

func TestPushRequiresInstance(t *testing.T) {
	config.GlobalConfig = config.DefaultConfig()
	config.GlobalConfig.Metrics.Mode = MetricsModePush
	config.GlobalConfig.Metrics.JobName = "delegator"
	defer func() { config.GlobalConfig = config.DefaultConfig() }()

	_, err := New()
	require.Error(t, err, "push mode without instance label")
}

func TestPullService(t *testing.T) {
	require := require.New(t)

	config.GlobalConfig = config.DefaultConfig()
	config.GlobalConfig.Metrics.Mode = MetricsModePull
	config.GlobalConfig.Metrics.Address = "127.0.0.1:0"
	config.GlobalConfig.Metrics.Interval = 50 * time.Millisecond
	defer func() { config.GlobalConfig = config.DefaultConfig() }()

	svc, err := New()
	require.NoError(err, "New")
	require.NoError(svc.Start(), "Start")
	defer svc.Cleanup()
	defer svc.Stop()

	MarkUp()

	addr := svc.(*pullService).ln.Addr().String()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(err, "GET /metrics")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(err, "ReadAll")
	require.True(strings.Contains(string(body), MetricUp), "up gauge should be exported")
}
