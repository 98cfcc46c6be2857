package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"statwatch/internal/services"
)

// ClaimsKey is the gin context key holding the caller's token claims
const ClaimsKey = "claims"

// RateLimiter implements token bucket rate limiting per IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

// NewRateLimiter allows limit requests per second per IP with the given burst
func NewRateLimiter(limit float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
}

// GetLimiter gets or creates a limiter for an IP address
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

// RateLimitMiddleware enforces rate limiting per IP
func RateLimitMiddleware(limiter *RateLimiter, sl *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			sl.LogRateLimited(ip, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			return
		}
		c.Next()
	}
}

// NewHandshakeRateLimiter is the stricter limiter guarding websocket handshakes:
// 5 per minute per IP, burst of 10
func NewHandshakeRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(12 * time.Second),
		burst:    10,
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// CORSMiddleware allows the listed origins. An empty list reflects any origin;
// "statwatch://app" admits the desktop dashboard.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")

		if OriginAllowed(origin, allowedOrigins) {
			c.Header("Vary", "Origin")
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether origin matches the allowed list (see CORSMiddleware)
func OriginAllowed(origin string, allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return origin != ""
	}
	for _, o := range allowedOrigins {
		trimmed := strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case trimmed == "":
			continue
		case trimmed == "*" || origin == trimmed:
			return true
		case trimmed == "statwatch://app" && (strings.HasPrefix(origin, "statwatch://") || origin == "null"):
			return true
		case !strings.Contains(trimmed, "://"):
			if parsed, err := url.Parse(origin); err == nil && parsed.Host == trimmed {
				return true
			}
		}
	}
	return false
}

// IPWhitelist restricts access to listed IPs; loopback is always allowed
type IPWhitelist struct {
	ips map[string]bool
}

// NewIPWhitelist creates a new IP whitelist
func NewIPWhitelist(ips []string) *IPWhitelist {
	wl := &IPWhitelist{ips: make(map[string]bool, len(ips))}
	for _, ip := range ips {
		wl.ips[ip] = true
	}
	return wl
}

// IsAllowed checks if an IP is whitelisted
func (wl *IPWhitelist) IsAllowed(ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" || ip == "localhost" {
		return true
	}
	if len(wl.ips) == 0 {
		return true
	}

	ipOnly, _, err := net.SplitHostPort(ip)
	if err != nil {
		ipOnly = ip
	}
	return wl.ips[ipOnly]
}

// IPWhitelistMiddleware enforces IP whitelisting
func IPWhitelistMiddleware(whitelist *IPWhitelist, sl *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !whitelist.IsAllowed(ip) {
			sl.LogAccessDenied(ip)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// BearerAuthMiddleware requires a valid "Authorization: Bearer <token>" header
func BearerAuthMiddleware(auth *services.AuthService, sl *SecurityLogger) gin.HandlerFunc {
	validator := NewInputValidator()
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !validator.ValidateToken(token) {
			sl.LogFailedAuth(c.ClientIP(), "missing or malformed bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed token"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			sl.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequestLogger logs every request at debug level, and failures at warn
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

// SecurityLogger logs security events
type SecurityLogger struct {
	logger *zap.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *zap.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.Named("security")}
}

// LogFailedAuth logs failed authentication attempts
func (sl *SecurityLogger) LogFailedAuth(ip string, reason string) {
	sl.logger.Warn("failed authentication", zap.String("ip", ip), zap.String("reason", reason))
}

// LogRateLimited logs a rejected request
func (sl *SecurityLogger) LogRateLimited(ip string, path string) {
	sl.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", path))
}

// LogAccessDenied logs a request from a non-whitelisted IP
func (sl *SecurityLogger) LogAccessDenied(ip string) {
	sl.logger.Warn("access denied for non-whitelisted ip", zap.String("ip", ip))
}

// LogWebSocketConnected logs successful WebSocket connections
func (sl *SecurityLogger) LogWebSocketConnected(ip string, user string) {
	sl.logger.Info("websocket connected", zap.String("ip", ip), zap.String("user", user))
}

// LogWebSocketDisconnected logs WebSocket disconnections
func (sl *SecurityLogger) LogWebSocketDisconnected(ip string, clientID string) {
	sl.logger.Info("websocket disconnected", zap.String("ip", ip), zap.String("client", clientID))
}

// InputValidator validates and sanitizes user input
type InputValidator struct{}

// NewInputValidator creates a new input validator
func NewInputValidator() *InputValidator {
	return &InputValidator{}
}

// ValidateToken checks if token format is valid
func (iv *InputValidator) ValidateToken(token string) bool {
	// header.payload.signature
	if len(token) < 20 || len(token) > 4096 {
		return false
	}
	return strings.Count(token, ".") == 2
}

// ValidateHostID checks that a host id is safe to embed in a URL path
func (iv *InputValidator) ValidateHostID(id string) bool {
	if len(id) < 1 || len(id) > 255 {
		return false
	}

	for _, c := range id {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}
