// Package auth issues and validates the bearer tokens that guard the
// control-plane API. Clients authenticate with a pre-shared API key;
// the config file stores only bcrypt hashes of those keys, never the
// keys themselves.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

var (
	// ErrInvalidCredentials is returned when no configured API key
	// matches the one presented at login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for malformed, expired or foreign
	// tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// APIKey pairs a client name with the bcrypt hash of its key.
type APIKey struct {
	Name string
	Hash string
}

// Service implements ports.AuthService on top of a static key list.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	keys   []APIKey
	log    *zap.Logger
}

// NewService creates a new authentication service.
func NewService(secret string, ttl time.Duration, issuer string, keys []APIKey, log *zap.Logger) ports.AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		keys:   keys,
		log:    log,
	}
}

// Login exchanges an API key for a signed bearer token.
func (s *Service) Login(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrInvalidCredentials
	}

	for _, key := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(apiKey)) != nil {
			continue
		}

		token, err := s.generateToken(key.Name)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}

		s.log.Info("api client authenticated", zap.String("client", key.Name))
		return token, nil
	}

	s.log.Warn("login rejected: unknown api key")
	return "", ErrInvalidCredentials
}

// ValidateToken verifies a bearer token and returns the client name it
// was issued to.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if s.issuer != "" {
		issuer, _ := claims["iss"].(string)
		if issuer != s.issuer {
			return "", ErrInvalidToken
		}
	}

	client, _ := claims["sub"].(string)
	if client == "" {
		return "", ErrInvalidToken
	}

	return client, nil
}

func (s *Service) generateToken(client string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  client,
		"iss":  s.issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
		"type": "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// HashKey produces the bcrypt hash of an API key for inclusion in the
// config file.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
