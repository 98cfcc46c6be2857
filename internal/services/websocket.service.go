package services

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"statwatch/internal/models"
)

// Websocket message types
const (
	MessageActivate        = "activate"
	MessageDeactivate      = "deactivate"
	MessageSwitchKind      = "switch_kind"
	MessageSwitchFilter    = "switch_filter"
	MessageSnapshot        = "snapshot"
	MessageSnapshotMissing = "snapshot_missing"
	MessagePing            = "ping"
	MessagePong            = "pong"
	MessageAck             = "ack"
	MessageError           = "error"
)

// WebSocketMessage is both the client request and the server reply
type WebSocketMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Host      string      `json:"host,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Device    string      `json:"device,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// MonitorChannel is the server side of one websocket connection. Hosts it activates
// stay polled until the client deactivates them or the channel closes.
type MonitorChannel struct {
	id           string
	orchestrator *Orchestrator
	cache        *SnapshotCache
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.Mutex
	hosts  map[string]struct{}
	closed bool
}

// NewMonitorChannel creates the channel state for connection id
func NewMonitorChannel(id string, orchestrator *Orchestrator, cache *SnapshotCache, logger *zap.Logger) *MonitorChannel {
	return &MonitorChannel{
		id:           id,
		orchestrator: orchestrator,
		cache:        cache,
		logger:       logger.With(zap.String("client", id)),
		now:          time.Now,
		hosts:        make(map[string]struct{}),
	}
}

// Handle executes one client request and returns the reply to send back
func (m *MonitorChannel) Handle(msg WebSocketMessage) WebSocketMessage {
	reply := WebSocketMessage{
		Type:      MessageAck,
		RequestID: msg.RequestID,
		Host:      msg.Host,
		Timestamp: m.now(),
	}

	var err error
	switch msg.Type {
	case MessagePing:
		reply.Type = MessagePong
		reply.Host = ""
		return reply
	case MessageActivate:
		err = m.activate(msg.Host)
	case MessageDeactivate:
		err = m.deactivate(msg.Host)
	case MessageSwitchKind:
		err = m.switchKind(msg.Host, msg.Kind)
		reply.Kind = msg.Kind
	case MessageSwitchFilter:
		err = m.switchFilter(msg.Host, msg.Device)
		reply.Device = msg.Device
	case MessageSnapshot:
		if msg.Host == "" {
			err = errors.New("host is required")
			break
		}
		snapshot, ok := m.cache.Get(msg.Host)
		if !ok {
			reply.Type = MessageSnapshotMissing
			return reply
		}
		reply.Type = MessageSnapshot
		reply.Data = snapshot
		return reply
	default:
		err = errors.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		m.logger.Debug("websocket request rejected", zap.String("type", msg.Type), zap.Error(err))
		reply.Type = MessageError
		reply.Error = err.Error()
	}
	return reply
}

func (m *MonitorChannel) activate(hostID string) error {
	if hostID == "" {
		return errors.New("host is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("channel closed")
	}
	if m.orchestrator.Activate(hostID) {
		m.hosts[hostID] = struct{}{}
	}
	return nil
}

func (m *MonitorChannel) deactivate(hostID string) error {
	if hostID == "" {
		return errors.New("host is required")
	}

	m.mu.Lock()
	_, owned := m.hosts[hostID]
	delete(m.hosts, hostID)
	m.mu.Unlock()

	if !owned {
		return errors.Errorf("host %s was not activated on this connection", hostID)
	}
	m.orchestrator.Deactivate(hostID)
	return nil
}

func (m *MonitorChannel) switchKind(hostID, kind string) error {
	parsed, err := models.ParseMetricKind(kind)
	if err != nil {
		return err
	}
	return m.orchestrator.SwitchMetricKind(hostID, parsed)
}

func (m *MonitorChannel) switchFilter(hostID, device string) error {
	return m.orchestrator.SwitchDeviceFilter(hostID, device)
}

// Hosts lists the hosts this channel activated
func (m *MonitorChannel) Hosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	hosts := make([]string, 0, len(m.hosts))
	for hostID := range m.hosts {
		hosts = append(hosts, hostID)
	}
	sort.Strings(hosts)
	return hosts
}

// Close deactivates every host the channel activated. Safe to call twice.
func (m *MonitorChannel) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	hosts := m.hosts
	m.hosts = make(map[string]struct{})
	m.mu.Unlock()

	for hostID := range hosts {
		m.orchestrator.Deactivate(hostID)
	}
	m.logger.Info("websocket channel closed", zap.Int("released_hosts", len(hosts)))
}
