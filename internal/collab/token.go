package collab

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("collab: invalid session token")
	ErrExpiredToken = errors.New("collab: session token expired")
)

// tokenHeader is the fixed header for the HS256 tokens TokenIssuer signs.
type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// tokenClaims is the signed payload: which user, issued when, expires when.
type tokenClaims struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// TokenIssuer mints and validates the bearer tokens backing Session.Token.
// Grounded on the teacher's internal/auth (HS256 JWT signing), reduced to
// the signing/validation core: the teacher's single hardcoded DJ
// username/password and its per-IP login rate limiter don't carry over
// since collab has real per-user accounts via UserStore instead of one
// operator credential.
type TokenIssuer struct {
	Secret string
	TTL    time.Duration
}

// NewTokenIssuer builds a TokenIssuer with a default 24h TTL if ttl <= 0.
func NewTokenIssuer(secret string, ttl time.Duration) TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return TokenIssuer{Secret: secret, TTL: ttl}
}

// Issue creates a Session for userID with a freshly signed token.
func (t TokenIssuer) Issue(userID uuid.UUID) (Session, error) {
	now := time.Now()
	exp := now.Add(t.TTL)
	claims := tokenClaims{Sub: userID.String(), Iat: now.Unix(), Exp: exp.Unix()}

	signed, err := t.sign(claims)
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     signed,
		ExpiresAt: exp,
	}, nil
}

// Validate parses and verifies a token string, returning the subject
// (user id) it was issued for.
func (t TokenIssuer) Validate(token string) (uuid.UUID, error) {
	if len(token) > 4096 {
		return uuid.UUID{}, ErrInvalidToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return uuid.UUID{}, ErrInvalidToken
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: header", ErrInvalidToken)
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "HS256" {
		return uuid.UUID{}, fmt.Errorf("%w: header", ErrInvalidToken)
	}

	expected := t.computeHMAC(parts[0] + "." + parts[1])
	actual, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: signature", ErrInvalidToken)
	}
	expectedBytes, err := base64.RawURLEncoding.DecodeString(expected)
	if err != nil || !hmac.Equal(expectedBytes, actual) {
		return uuid.UUID{}, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: claims", ErrInvalidToken)
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: claims", ErrInvalidToken)
	}

	if time.Now().Unix() > claims.Exp {
		return uuid.UUID{}, ErrExpiredToken
	}

	return uuid.Parse(claims.Sub)
}

func (t TokenIssuer) sign(claims tokenClaims) (string, error) {
	header := tokenHeader{Alg: "HS256", Typ: "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerB64 + "." + claimsB64

	return signingInput + "." + t.computeHMAC(signingInput), nil
}

func (t TokenIssuer) computeHMAC(input string) string {
	mac := hmac.New(sha256.New, []byte(t.Secret))
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
