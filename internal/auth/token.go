package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrAudienceMismatch signals a token minted for another service.
	ErrAudienceMismatch = errors.New("token audience mismatch")
)

// DefaultAudience is the audience operator tokens are minted for.
const DefaultAudience = "rewind"

// TokenClaims captures the operator identity carried by a control token.
type TokenClaims struct {
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// operatorClaims is the wire shape parsed by the jwt library.
type operatorClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 control tokens against a shared secret.
type TokenVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
	leeway   time.Duration
}

// NewTokenVerifier constructs a verifier for the supplied shared secret and clock skew allowance.
func NewTokenVerifier(secret string, leeway time.Duration) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &TokenVerifier{secret: []byte(secret), audience: DefaultAudience, now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *TokenVerifier) WithClock(clock func() time.Time) {
	if clock != nil {
		v.now = clock
	}
}

// Verify parses the token and validates the signature, audience and expiry.
func (v *TokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	//1.- Signature and algorithm are checked by the library; time claims use our clock below.
	var parsed operatorClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(parsed.Subject) == "" || parsed.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	//2.- Tokens without an audience are accepted; a foreign audience is not.
	if len(parsed.Audience) > 0 && !audienceContains(parsed.Audience, v.audience) {
		return nil, ErrAudienceMismatch
	}
	expiresAt := parsed.ExpiresAt.Time
	if expiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredToken
	}

	claims := &TokenClaims{
		Subject:   parsed.Subject,
		Audience:  []string(parsed.Audience),
		ExpiresAt: expiresAt,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}

// Issue mints a token for subject valid for ttl; used by operator tooling and tests.
func Issue(secret, subject string, issuedAt time.Time, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" || strings.TrimSpace(subject) == "" || ttl <= 0 {
		return "", errors.New("secret, subject and positive ttl are required")
	}
	claims := operatorClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{DefaultAudience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func audienceContains(audience jwt.ClaimStrings, want string) bool {
	for _, candidate := range audience {
		if candidate == want {
			return true
		}
	}
	return false
}
