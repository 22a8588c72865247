package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/benchlab/benchcore/internal/config"
)

// Service implements the single-operator authentication model: one
// account, its argon2id hash carried in the configuration file.
// Refresh tokens live in memory; a server restart simply forces a
// fresh login.
type Service struct {
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	operator       string
	operatorHash   string

	mu            sync.Mutex
	refreshTokens map[string]time.Time // sha256(token) -> expiry
	refreshTTL    time.Duration
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		passwordHasher: NewPasswordHasher(),
		operator:       cfg.OperatorName,
		operatorHash:   cfg.OperatorHash,
		refreshTokens:  make(map[string]time.Time),
		refreshTTL:     cfg.RefreshTokenTTL,
	}
}

// Login authenticates the operator and returns an access/refresh token
// pair. Every failure path returns the same error so the response
// leaks nothing about which part was wrong.
func (a *Service) Login(username, password string) (accessToken, refreshToken string, err error) {
	invalid := fmt.Errorf("invalid credentials")

	if a.operatorHash == "" {
		return "", "", fmt.Errorf("no operator account configured")
	}
	if username != a.operator {
		return "", "", invalid
	}
	valid, err := a.passwordHasher.VerifyPassword(password, a.operatorHash)
	if err != nil || !valid {
		return "", "", invalid
	}

	accessToken, err = a.jwtHandler.GenerateAccessToken(username)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err = a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	a.mu.Lock()
	a.refreshTokens[hashToken(refreshToken)] = time.Now().Add(a.refreshTTL)
	a.mu.Unlock()

	return accessToken, refreshToken, nil
}

// Refresh exchanges a live refresh token for a new access token.
func (a *Service) Refresh(refreshToken string) (string, error) {
	key := hashToken(refreshToken)

	a.mu.Lock()
	expiry, ok := a.refreshTokens[key]
	if ok && time.Now().After(expiry) {
		delete(a.refreshTokens, key)
		ok = false
	}
	a.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("invalid or expired refresh token")
	}
	return a.jwtHandler.GenerateAccessToken(a.operator)
}

// Logout revokes a refresh token.
func (a *Service) Logout(refreshToken string) {
	a.mu.Lock()
	delete(a.refreshTokens, hashToken(refreshToken))
	a.mu.Unlock()
}

// Validate checks an access token and returns its claims.
func (a *Service) Validate(token string) (*Claims, error) {
	return a.jwtHandler.ValidateAccessToken(token)
}

// HashPassword produces an encoded argon2id hash for the config file.
func (a *Service) HashPassword(password string) (string, error) {
	return a.passwordHasher.HashPassword(password)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
