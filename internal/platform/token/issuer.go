// Package token issues and verifies the signed bearer tokens handed out on
// registration and login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = time.Hour

// Claims is the payload carried by a token. Subject holds the account id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the account id the token authorizes.
func (c *Claims) SubjectID() string {
	return c.Subject
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// Issuer signs and verifies HS256 tokens with one process-wide key.
type Issuer struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewIssuer builds an Issuer. The key is copied and never exposed again.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret must be provided")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{
		key: append([]byte(nil), secret...),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	return i, nil
}

// TTL returns the validity window of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for subjectID. Registered claims in claims are replaced.
func (i *Issuer) Issue(subjectID string, claims Claims) (string, error) {
	if subjectID == "" {
		return "", errors.New("token: subject must be provided")
	}
	issuedAt := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and then expiry. Every failure is a *Error;
// callers must treat any of them as unauthenticated.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := i.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("missing subject")}
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &Error{Kind: KindBadSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: KindExpired, Err: err}
	default:
		return &Error{Kind: KindMalformed, Err: err}
	}
}
