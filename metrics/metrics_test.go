package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("")

	m.RecordInfo("v1.2.3")
	m.RecordUp()

	m.RecordGasEstimate(KindContract, 50000)
	m.RecordGasEstimate(KindContract, 30000)
	m.RecordCeilingRejection(KindDeploy)

	onDone := m.RecordSubmission(KindTransfer)
	onDone(nil)
	onDone = m.RecordSubmission(KindTransfer)
	onDone(errors.New("test err"))

	m.RecordAttach("typed")
	m.RecordConnectionChange()
	m.RecordConnectionChange()

	c := NewMetricChecker(t, m.Registry())
	prefix := Namespace + "_default_"

	record := c.FindByName(prefix + "info").FindByLabels(map[string]string{"version": "v1.2.3"})
	require.Equal(t, 1.0, record.Gauge.GetValue())

	record = c.FindByName(prefix + "up").FindByLabels(nil)
	require.Equal(t, 1.0, record.Gauge.GetValue())

	record = c.FindByName(prefix + "gas_estimate").FindByLabels(map[string]string{"kind": KindContract})
	require.Equal(t, uint64(2), record.Histogram.GetSampleCount())
	require.Equal(t, 80000.0, record.Histogram.GetSampleSum())

	record = c.FindByName(prefix + "gas_ceiling_rejections_total").FindByLabels(map[string]string{"kind": KindDeploy})
	require.Equal(t, 1.0, record.Counter.GetValue())

	record = c.FindByName(prefix + "submissions_total").FindByLabels(map[string]string{"kind": KindTransfer, "err": "success"})
	require.Equal(t, 1.0, record.Counter.GetValue())
	record = c.FindByName(prefix + "submissions_total").FindByLabels(map[string]string{"kind": KindTransfer, "err": "failed"})
	require.Equal(t, 1.0, record.Counter.GetValue())

	record = c.FindByName(prefix + "submission_duration_seconds").FindByLabels(map[string]string{"kind": KindTransfer})
	require.Equal(t, uint64(2), record.Histogram.GetSampleCount())

	record = c.FindByName(prefix + "attachments_total").FindByLabels(map[string]string{"generation": "typed"})
	require.Equal(t, 1.0, record.Counter.GetValue())

	record = c.FindByName(prefix + "connection_changes_total").FindByLabels(nil)
	require.Equal(t, 2.0, record.Counter.GetValue())
}

func TestNoopMetrics(t *testing.T) {
	m := &NoopMetrics{}
	m.RecordInfo("1234")
	m.RecordUp()
	m.RecordGasEstimate(KindDeploy, 1)
	m.RecordCeilingRejection(KindDeploy)
	onDone := m.RecordSubmission(KindDeploy)
	onDone(errors.New("test err"))
	m.RecordAttach("legacy")
	m.RecordConnectionChange()
}

func TestCLIConfigCheck(t *testing.T) {
	cfg := DefaultCLIConfig()
	require.NoError(t, cfg.Check())
	cfg.Enabled = true
	cfg.ListenPort = 70000
	require.ErrorIs(t, cfg.Check(), ErrInvalidPort)
}

func TestServer(t *testing.T) {
	m := NewMetrics("srv")
	m.RecordUp()
	srv, err := StartServer(m.Registry(), "127.0.0.1", 0)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, srv.Stop(context.Background()))
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "ethtx_srv_up 1")
}
