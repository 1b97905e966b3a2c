// Package auth guards the admin API with HS256 bearer tokens or a shared
// secret checked against a bcrypt hash.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminSubject is the only subject accepted in admin tokens.
const AdminSubject = "admin"

const defaultTokenTTL = 24 * time.Hour

var (
	ErrNoSecret      = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrInvalidSecret = errors.New("invalid admin secret")
)

type Service struct {
	jwtSecret []byte
	adminHash []byte
	now       func() time.Time
}

// NewService builds a Service. Either argument may be empty, which disables
// the corresponding credential type.
func NewService(jwtSecret, adminSecretHash string) *Service {
	return &Service{jwtSecret: []byte(jwtSecret), adminHash: []byte(adminSecretHash), now: time.Now}
}

// Enabled reports whether any credential type is configured.
func (s *Service) Enabled() bool {
	return len(s.jwtSecret) > 0 || len(s.adminHash) > 0
}

// IssueToken signs an admin token valid for ttl (24h when ttl <= 0).
func (s *Service) IssueToken(ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   AdminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken accepts only HS256 tokens with sub=admin.
func (s *Service) ValidateToken(tokenString string) error {
	if len(s.jwtSecret) == 0 {
		return ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub != AdminSubject {
		return ErrInvalidToken
	}
	return nil
}

// CheckAdminSecret compares secret with the configured bcrypt hash.
func (s *Service) CheckAdminSecret(secret string) error {
	if len(s.adminHash) == 0 || secret == "" {
		return ErrInvalidSecret
	}
	if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// HashSecret produces the value for ANANSI_ADMIN_SECRET_HASH.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	return string(hash), nil
}
