package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultTokenExpiry = 90 * 24 * time.Hour
	minSecretLength    = 32
	secretKeyFileName  = ".statwatch-secret-key"
	tokenIssuer        = "statwatch"
)

// AuthService manages JWT token generation and validation
type AuthService struct {
	secretKey   string
	tokenExpiry time.Duration
	now         func() time.Time
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// NewAuthService creates the token service. With an empty secretKey a generated
// key is loaded from (or persisted to) the user's home directory.
func NewAuthService(secretKey string, tokenExpiry time.Duration, logger *zap.Logger) *AuthService {
	if secretKey == "" {
		secretKey = loadOrCreateSecret(secretKeyPath(), logger)
	}

	if tokenExpiry <= 0 {
		tokenExpiry = defaultTokenExpiry
	}

	secretKey = strings.TrimSpace(secretKey)
	if len(secretKey) < minSecretLength {
		logger.Warn("secret key shorter than recommended, padding",
			zap.Int("length", len(secretKey)), zap.Int("minimum", minSecretLength))
		padding := make([]byte, minSecretLength-len(secretKey))
		_, _ = rand.Read(padding)
		secretKey += hex.EncodeToString(padding)
	}

	return &AuthService{
		secretKey:   secretKey,
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}
}

func secretKeyPath() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		return filepath.Join(os.TempDir(), secretKeyFileName)
	}
	return filepath.Join(homeDir, secretKeyFileName)
}

// loadOrCreateSecret reads the persisted key at keyFile or generates and stores a new one
func loadOrCreateSecret(keyFile string, logger *zap.Logger) string {
	if data, err := os.ReadFile(keyFile); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		logger.Info("loaded persisted secret key", zap.String("file", keyFile))
		return strings.TrimSpace(string(data))
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "statwatch"
	}

	var secret string
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		secret = fmt.Sprintf("statwatch-%s-%d-backup", hostname, time.Now().UnixNano())
		logger.Warn("random generation failed, using fallback key")
	} else {
		secret = fmt.Sprintf("statwatch-%s-%s", hostname, hex.EncodeToString(randomBytes))
	}

	if err := os.WriteFile(keyFile, []byte(secret), 0600); err != nil {
		logger.Warn("could not persist secret key", zap.String("file", keyFile), zap.Error(err))
	} else {
		logger.Info("generated and persisted secret key", zap.String("file", keyFile))
	}
	return secret
}

// GenerateToken creates a signed token for a dashboard user
func (a *AuthService) GenerateToken(user string) (string, error) {
	if user == "" {
		return "", errors.New("user is required")
	}

	now := a.now()
	claims := CustomClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.secretKey))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken verifies and parses a token
func (a *AuthService) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.secretKey), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenExpiry returns when a token minted now would expire
func (a *AuthService) TokenExpiry() time.Time {
	return a.now().Add(a.tokenExpiry)
}
