package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"statwatch/internal/models"
)

// StatsSource fetches raw host statistics. Implementations must honour ctx.
type StatsSource interface {
	FetchPointStats(ctx context.Context, hostID string) (*models.PointStats, error)
	FetchCounterSample(ctx context.Context, hostID string, kind models.MetricKind, deviceFilter string) (*models.CounterResponse, error)
}

// ErrUnknownHost is returned by sources that do not serve the requested host
var ErrUnknownHost = errors.New("unknown host")

// TransportError wraps any failure to obtain stats from a source
type TransportError struct {
	Op     string
	HostID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.HostID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

const maxResponseBytes = 8 << 20

var apiJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// apiEnvelope is the apiserver's response wrapper
type apiEnvelope struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// APIStatsSource reads stats from the apiserver's monitor endpoints
type APIStatsSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPIStatsSource creates a source for baseURL (e.g. http://host:8000/api/v1)
func NewAPIStatsSource(baseURL, token string, timeout time.Duration) *APIStatsSource {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIStatsSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchPointStats returns the host's full resource snapshot
func (a *APIStatsSource) FetchPointStats(ctx context.Context, hostID string) (*models.PointStats, error) {
	var stats models.PointStats
	path := "/monitor/stats/" + url.PathEscape(hostID)
	if err := a.get(ctx, path, &stats); err != nil {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: err}
	}
	return &stats, nil
}

// FetchCounterSample returns the cumulative counters for kind, filtered to one device or "all"
func (a *APIStatsSource) FetchCounterSample(ctx context.Context, hostID string, kind models.MetricKind, deviceFilter string) (*models.CounterResponse, error) {
	segment := "net"
	if kind == models.MetricDiskIO {
		segment = "io"
	}
	if deviceFilter == "" {
		deviceFilter = models.DeviceAll
	}

	path := fmt.Sprintf("/monitor/stats/%s/%s/%s", segment, url.PathEscape(hostID), url.PathEscape(deviceFilter))
	var raw map[string]interface{}
	if err := a.get(ctx, path, &raw); err != nil {
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
	}

	resp, err := parseCounterPayload(raw)
	if err != nil {
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
	}
	return resp, nil
}

func (a *APIStatsSource) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "create request failed")
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrap(err, "read response body failed")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("http status code: %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := apiJSON.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(err, "decode response envelope failed")
	}
	if envelope.Code != 0 {
		msg := envelope.Message
		if msg == "" {
			msg = "request failed"
		}
		return errors.Errorf("api error %d: %s", envelope.Code, msg)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return errors.Wrap(apiJSON.Unmarshal(envelope.Data, out), "decode response data failed")
}

// parseCounterPayload reads the device list, optional collect time and every
// numeric field of a counter payload. Non-numeric fields are ignored.
func parseCounterPayload(raw map[string]interface{}) (*models.CounterResponse, error) {
	if raw == nil {
		return nil, errors.New("empty counter payload")
	}

	resp := &models.CounterResponse{Counters: make(map[string]uint64)}
	for key, value := range raw {
		switch key {
		case "devices":
			devices, err := cast.ToStringSliceE(value)
			if err != nil {
				return nil, errors.Wrap(err, "decode device list failed")
			}
			resp.Devices = devices
		case "collectTime":
			at, err := cast.ToTimeE(value)
			if err != nil {
				return nil, errors.Wrap(err, "decode collect time failed")
			}
			resp.CollectedAt = at
		default:
			if counter, ok := counterValue(value); ok {
				resp.Counters[key] = counter
			}
		}
	}
	return resp, nil
}

func counterValue(value interface{}) (uint64, bool) {
	switch v := value.(type) {
	case nil, bool, map[string]interface{}, []interface{}:
		return 0, false
	case json.Number:
		if n, err := cast.ToUint64E(v.String()); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil || f < 0 {
			return 0, false
		}
		return uint64(f), true
	case string:
		n, err := cast.ToUint64E(strings.TrimSpace(v))
		return n, err == nil
	default:
		n, err := cast.ToUint64E(v)
		return n, err == nil
	}
}
