package token

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Outcomes of verifying a token. Expiry is reported distinctly so the
// verification page can tell the user to request a fresh link.
var (
	ErrTokenExpired = errors.New("verification token has expired")
	ErrTokenInvalid = errors.New("verification token is invalid")
)

// DefaultTTL is how long a verification link stays valid unless
// TOKEN_TTL_MINUTES says otherwise.
const DefaultTTL = 60 * time.Minute

// Claims carried by a verification token: the address being verified plus
// a random nonce. The nonce is not tracked server-side, so a token stays
// valid for any holder until it expires.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies signed verification tokens with a
// server-held symmetric secret.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService errors on an empty secret; a missing signing secret is a
// fatal configuration problem, not something to paper over at runtime.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret must be set")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token binding email to a fresh random nonce.
func (s *Service) Issue(email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the signature and expiry of tokenStr and returns its
// claims. Tampered or malformed tokens yield ErrTokenInvalid; a
// well-formed token past its expiry yields ErrTokenExpired.
func (s *Service) Verify(tokenStr string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if len(claims.Email) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// TTLFromEnv reads TOKEN_TTL_MINUTES, falling back to DefaultTTL when the
// variable is unset or unparseable.
func TTLFromEnv() time.Duration {
	raw := os.Getenv("TOKEN_TTL_MINUTES")
	if len(raw) == 0 {
		return DefaultTTL
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return DefaultTTL
	}
	return time.Duration(minutes) * time.Minute
}
