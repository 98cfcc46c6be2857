package routes

import (
	"github.com/gin-gonic/gin"

	"statwatch/internal/controllers"
	"statwatch/internal/middleware"
)

// RegisterAuthRoutes registers the websocket endpoint. It authenticates with its
// own ?token= parameter; tokens are minted from the CLI only.
func RegisterAuthRoutes(r *gin.Engine, wc *controllers.WebSocketController, handshakeLimiter *middleware.RateLimiter, sl *middleware.SecurityLogger) {
	r.GET("/ws", middleware.RateLimitMiddleware(handshakeLimiter, sl), wc.HandleWebSocket)
}
