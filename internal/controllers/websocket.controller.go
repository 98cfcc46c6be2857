package controllers

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"statwatch/internal/middleware"
	"statwatch/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
	wsSendBuffer = 64
)

// WebSocketController serves the client-driven monitoring channel
type WebSocketController struct {
	auth         *services.AuthService
	orchestrator *services.Orchestrator
	cache        *services.SnapshotCache
	secLog       *middleware.SecurityLogger
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	validator    *middleware.InputValidator
	nextID       atomic.Uint64
}

func NewWebSocketController(
	auth *services.AuthService,
	orchestrator *services.Orchestrator,
	cache *services.SnapshotCache,
	allowedOrigins []string,
	secLog *middleware.SecurityLogger,
	logger *zap.Logger,
) *WebSocketController {
	return &WebSocketController{
		auth:         auth,
		orchestrator: orchestrator,
		cache:        cache,
		secLog:       secLog,
		logger:       logger.Named("ws"),
		validator:    middleware.NewInputValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no origin
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
		},
	}
}

// HandleWebSocket authenticates ?token= and upgrades the connection.
// GET /ws?token=...
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if !wc.validator.ValidateToken(token) {
		wc.secLog.LogFailedAuth(c.ClientIP(), "missing or malformed websocket token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := wc.auth.ValidateToken(token)
	if err != nil {
		wc.secLog.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	clientID := claims.User + "-" + strconv.FormatUint(wc.nextID.Add(1), 10)
	wc.secLog.LogWebSocketConnected(c.ClientIP(), claims.User)

	client := &wsClient{
		id:      clientID,
		ip:      c.ClientIP(),
		conn:    ws,
		send:    make(chan services.WebSocketMessage, wsSendBuffer),
		done:    make(chan struct{}),
		channel: services.NewMonitorChannel(clientID, wc.orchestrator, wc.cache, wc.logger),
	}

	go wc.writePump(client)
	go wc.readPump(client)
}

type wsClient struct {
	id      string
	ip      string
	conn    *websocket.Conn
	send    chan services.WebSocketMessage
	done    chan struct{}
	channel *services.MonitorChannel
}

// readPump answers each client request in order. When the connection ends every
// host activated on it is deactivated.
func (wc *WebSocketController) readPump(client *wsClient) {
	defer func() {
		client.channel.Close()
		close(client.send)
		wc.secLog.LogWebSocketDisconnected(client.ip, client.id)
	}()

	client.conn.SetReadLimit(wsMaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg services.WebSocketMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wc.logger.Warn("read error", zap.String("client", client.id), zap.Error(err))
			}
			return
		}

		select {
		case client.send <- client.channel.Handle(msg):
		case <-client.done:
			return
		}
	}
}

// writePump is the only writer on the connection
func (wc *WebSocketController) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(client.done)
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				wc.logger.Warn("write error", zap.String("client", client.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
