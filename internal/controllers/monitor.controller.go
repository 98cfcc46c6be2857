package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"statwatch/internal/middleware"
	"statwatch/internal/models"
	"statwatch/internal/services"
)

// MonitorController exposes polling sessions and cached snapshots over HTTP
type MonitorController struct {
	orchestrator *services.Orchestrator
	cache        *services.SnapshotCache
	validator    *middleware.InputValidator
	logger       *zap.Logger
}

func NewMonitorController(orchestrator *services.Orchestrator, cache *services.SnapshotCache, logger *zap.Logger) *MonitorController {
	return &MonitorController{
		orchestrator: orchestrator,
		cache:        cache,
		validator:    middleware.NewInputValidator(),
		logger:       logger,
	}
}

type switchKindRequest struct {
	Kind string `json:"kind" binding:"required"`
}

type switchFilterRequest struct {
	Device string `json:"device"`
}

// hostParam reads and validates the :host path parameter, answering 400 on failure
func (mc *MonitorController) hostParam(c *gin.Context) (string, bool) {
	host := c.Param("host")
	if !mc.validator.ValidateHostID(host) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid host id"})
		return "", false
	}
	return host, true
}

func (mc *MonitorController) sessionState(c *gin.Context, host string, status int, extra gin.H) {
	body := gin.H{"host": host, "active": false}
	if kind, device, ok := mc.orchestrator.Selection(host); ok {
		body["active"] = true
		body["kind"] = kind
		body["device"] = device
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// ActivateSession starts polling a host.
// POST /sessions/:host -> 201 when started, 200 when already active
func (mc *MonitorController) ActivateSession(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}

	status := http.StatusOK
	started := mc.orchestrator.Activate(host)
	if started {
		status = http.StatusCreated
	}
	mc.sessionState(c, host, status, gin.H{"started": started})
}

// DeactivateSession stops polling a host; the cached snapshot is kept.
// DELETE /sessions/:host
func (mc *MonitorController) DeactivateSession(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}
	mc.orchestrator.Deactivate(host)
	c.Status(http.StatusNoContent)
}

// ListSessions returns the hosts being polled
// GET /sessions
func (mc *MonitorController) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hosts": mc.orchestrator.ActiveHosts()})
}

// SwitchKind changes the charted metric kind of an active host.
// PUT /sessions/:host/kind {"kind": "network"|"disk-io"}
func (mc *MonitorController) SwitchKind(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}

	var req switchKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	kind, err := models.ParseMetricKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := mc.orchestrator.SwitchMetricKind(host, kind); err != nil {
		mc.switchError(c, err)
		return
	}
	mc.sessionState(c, host, http.StatusOK, nil)
}

// SwitchFilter changes the charted device of an active host.
// PUT /sessions/:host/filter {"device": "all"|id}
func (mc *MonitorController) SwitchFilter(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}

	var req switchFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := mc.orchestrator.SwitchDeviceFilter(host, req.Device); err != nil {
		mc.switchError(c, err)
		return
	}
	mc.sessionState(c, host, http.StatusOK, nil)
}

func (mc *MonitorController) switchError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrSessionNotActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// GetSnapshot returns the cached snapshot of a host.
// GET /snapshots/:host -> 404 when absent or expired
func (mc *MonitorController) GetSnapshot(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}

	snapshot, found := mc.cache.Get(host)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for host"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ClearSnapshot drops the cached snapshot of a host.
// DELETE /snapshots/:host
func (mc *MonitorController) ClearSnapshot(c *gin.Context) {
	host, ok := mc.hostParam(c)
	if !ok {
		return
	}
	mc.cache.Clear(host)
	c.Status(http.StatusNoContent)
}

// ClearAllSnapshots drops every cached snapshot.
// DELETE /snapshots
func (mc *MonitorController) ClearAllSnapshots(c *gin.Context) {
	mc.cache.ClearAll()
	mc.logger.Info("snapshot cache cleared")
	c.Status(http.StatusNoContent)
}

// Health reports liveness
func (mc *MonitorController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active_hosts": len(mc.orchestrator.ActiveHosts()),
		"timestamp":    time.Now(),
	})
}
