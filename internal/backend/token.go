package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	serviceTokenTTL    = 15 * time.Minute
	serviceTokenLeeway = time.Minute
)

// serviceClaims identifies this process to the learning platform gateway.
type serviceClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// tokenSource mints HS256 service tokens and reuses each one until it is
// close to expiry.
type tokenSource struct {
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(secret string) *tokenSource {
	return &tokenSource{secret: []byte(secret), now: time.Now}
}

func (s *tokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(serviceTokenLeeway).Before(s.expires) {
		return s.token, nil
	}

	exp := now.Add(serviceTokenTTL)
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "michi",
			Subject:   "michi-assistant",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Scope: "read",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("backend: sign service token: %w", err)
	}
	s.token = signed
	s.expires = exp
	return signed, nil
}
