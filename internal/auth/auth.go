// Package auth is a slimmed authentication mechanism for the coordinator's
// HTTP API: a single bcrypt-hashed admin credential that issues short-lived
// JWT bearer tokens, plus a static API-key fallback for service-to-service
// callers. There is no multi-user/role/permission surface — the dedup
// service authorizes callers, it doesn't model them.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Config configures the auth service.
type Config struct {
	AdminUsername      string        `toml:"admin_username"`
	AdminPasswordHash  string        `toml:"admin_password_hash"` // bcrypt hash
	JWTSecret          string        `toml:"jwt_secret"`
	TokenTTL           time.Duration `toml:"token_ttl"`
	APIKeys            []string      `toml:"api_keys"`
}

// Claims is the JWT payload issued to authenticated callers.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Token is a bearer token returned from Login.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service authenticates HTTP callers of the coordinator API.
type Service struct {
	adminUsername     string
	adminPasswordHash string
	jwtSecret         []byte
	tokenTTL          time.Duration
	apiKeys           [][]byte
}

// New builds a Service. If cfg.JWTSecret is empty, a random secret is
// generated — tokens issued by this process will not validate after a
// restart, which is fine for a single embedded coordinator but should be
// set explicitly for a multi-instance deployment.
func New(cfg Config) (*Service, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("auth: generate jwt secret: %w", err)
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return &Service{
		adminUsername:     cfg.AdminUsername,
		adminPasswordHash: cfg.AdminPasswordHash,
		jwtSecret:         secret,
		tokenTTL:          ttl,
		apiKeys:           keys,
	}, nil
}

// Login verifies the admin credential and issues a bearer token.
func (s *Service) Login(username, password string) (*Token, error) {
	if username == "" || password == "" || s.adminUsername == "" {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) != 1 {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(username)
}

func (s *Service) issueToken(subject string) (*Token, error) {
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "onceguard",
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Authorize accepts either a valid JWT bearer token or one of the
// configured static API keys, both compared/validated using
// constant-time or signature-verified paths — never a plain ==.
func (s *Service) Authorize(credential string) error {
	if credential == "" {
		return ErrInvalidCredentials
	}
	for _, key := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(credential), key) == 1 {
			return nil
		}
	}
	return s.validateJWT(credential)
}

func (s *Service) validateJWT(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword bcrypt-hashes a plaintext password for storing in Config.
func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func randomAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateAPIKey creates a fresh random API key for CLI/config tooling.
func GenerateAPIKey() (string, error) { return randomAPIKey() }
