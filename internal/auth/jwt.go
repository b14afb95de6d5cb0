package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Access tokens are issued by the account service and verified here with a
// shared HS256 secret. The user ID travels in "uid" and the subscription tier
// in "premium". Issuing is kept for tooling and tests.

const (
	// AccessTokenExpiry is the lifetime of tokens from GenerateAccessToken.
	AccessTokenExpiry = time.Hour

	// DefaultLeeway absorbs clock skew between the issuer and this service.
	DefaultLeeway = 30 * time.Second
)

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingUserID      = errors.New("access token has no user id")
	ErrNoSigningKey       = errors.New("no signing key configured")
)

// JWTClaims are the claims of an API access token.
type JWTClaims struct {
	jwt.RegisteredClaims

	UserID  string `json:"uid"`
	Premium bool   `json:"premium,omitempty"`
}

// Principal returns the caller described by the claims.
func (c *JWTClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Premium: c.Premium}
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey signs new tokens and verifies incoming ones.
	SigningKey string

	// PreviousSigningKeys still verify tokens during a key rotation but never sign.
	PreviousSigningKeys []string

	Issuer   string
	Audience string

	// Leeway overrides DefaultLeeway for the exp and nbf checks.
	Leeway time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// JWTService issues and verifies access tokens.
type JWTService struct {
	signingKey []byte
	verifyKeys [][]byte
	parser     *jwt.Parser
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a JWT service. Empty previous keys are ignored.
func NewJWTService(cfg JWTConfig) *JWTService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	s := &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        now,
	}
	for _, key := range append([]string{cfg.SigningKey}, cfg.PreviousSigningKeys...) {
		if key != "" {
			s.verifyKeys = append(s.verifyKeys, []byte(key))
		}
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(now),
	)
	return s
}

// GenerateAccessToken signs a token for p and returns it with its expiry.
func (s *JWTService) GenerateAccessToken(p Principal) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, ErrMissingUserID
	}
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrNoSigningKey
	}

	now := s.now()
	expiresAt := now.Add(AccessTokenExpiry)
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		UserID:  p.UserID,
		Premium: p.Premium,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies the signature against the current and previous
// keys, then the issuer, audience and lifetime, and returns the claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	if len(s.verifyKeys) == 0 {
		return nil, ErrNoSigningKey
	}

	var (
		claims *JWTClaims
		err    error
	)
	for _, key := range s.verifyKeys {
		claims, err = s.parse(tokenString, key)
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	case claims.UserID == "":
		return nil, ErrMissingUserID
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, key []byte) (*JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	return claims, err
}
