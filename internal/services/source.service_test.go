package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwatch/internal/models"
)

func newEnvelopeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *APIStatsSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return NewAPIStatsSource(srv.URL+"/api/v1/", "secret-token", time.Second)
}

func TestAPIStatsSourceFetchPointStats(t *testing.T) {
	src := newEnvelopeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/monitor/stats/web-1", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"hostname":"web-1","cpu":{"usage":12.5,"cores":4},"memory":{"total":1024,"usage":50}}}`))
	})

	stats, err := src.FetchPointStats(context.Background(), "web-1")
	require.NoError(t, err)
	assert.Equal(t, "web-1", stats.Hostname)
	require.NotNil(t, stats.CPU)
	assert.Equal(t, 12.5, stats.CPU.Usage)
	assert.Equal(t, 4, stats.CPU.Cores)
	require.NotNil(t, stats.Memory)
	assert.Equal(t, uint64(1024), stats.Memory.Total)
}

func TestAPIStatsSourceFetchCounterSample(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.MetricKind
		filter   string
		wantPath string
	}{
		{"network all", models.MetricNetwork, "", "/api/v1/monitor/stats/net/web-1/all"},
		{"network device", models.MetricNetwork, "eth0", "/api/v1/monitor/stats/net/web-1/eth0"},
		{"disk io", models.MetricDiskIO, "sda", "/api/v1/monitor/stats/io/web-1/sda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newEnvelopeServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				_, _ = w.Write([]byte(`{"code":0,"data":{"devices":["eth0","eth1"],"collectTime":"2024-01-01T00:00:10Z","bytesSent":12345678901,"bytesRecv":"42","name":"ignored","nested":{"a":1}}}`))
			})

			resp, err := src.FetchCounterSample(context.Background(), "web-1", tt.kind, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, []string{"eth0", "eth1"}, resp.Devices)
			assert.True(t, resp.CollectedAt.Equal(baseTime.Add(10*time.Second)))
			assert.Equal(t, map[string]uint64{"bytesSent": 12345678901, "bytesRecv": 42}, resp.Counters)
		})
	}
}

func TestAPIStatsSourceErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"non-200", http.StatusBadGateway, `{"code":0}`, "http status code: 502"},
		{"api error", http.StatusOK, `{"code":40001,"message":"host offline","data":null}`, "host offline"},
		{"bad json", http.StatusOK, `not json`, "decode response envelope failed"},
		{"bad device list", http.StatusOK, `{"code":0,"data":{"devices":{"x":1}}}`, "decode device list failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newEnvelopeServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := src.FetchCounterSample(context.Background(), "web-1", models.MetricNetwork, models.DeviceAll)
			require.Error(t, err)
			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, "web-1", transportErr.HostID)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestAPIStatsSourceHonoursContext(t *testing.T) {
	release := make(chan struct{})
	src := newEnvelopeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.FetchPointStats(ctx, "web-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCounterValue(t *testing.T) {
	raw := map[string]interface{}{
		"a": "17",
		"b": float64(3),
		"c": "-4",
		"d": true,
		"e": nil,
	}
	resp, err := parseCounterPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"a": 17, "b": 3}, resp.Counters)
	assert.True(t, resp.CollectedAt.IsZero())

	_, err = parseCounterPayload(nil)
	assert.Error(t, err)
}
