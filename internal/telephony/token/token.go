// Package token mints and verifies the signed assertions handed to downstream
// telephony systems for a resolved DID.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sovren/internal/telephony/models"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the assertion payload: {did, persona, cnam, iat, exp} plus an
// optional iss.
type Claims struct {
	DID     string `json:"did"`
	Persona string `json:"persona"`
	CNAM    string `json:"cnam"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed assertion.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer signs assertions with a server-held secret.
//
// A bad algorithm or key does not fail construction. It is kept and returned
// from every Sign call so resolution reports "Token generation failed" instead
// of taking the process down; main logs Err() at startup.
type Signer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	ttl       time.Duration
	err       error
}

// NewSigner prepares a signer for algorithm (a JWA name such as HS256). HMAC
// algorithms use secret as raw key bytes; RSA, RSA-PSS, ECDSA and EdDSA parse
// it as a PEM private key.
func NewSigner(secret, algorithm string, ttl time.Duration, issuer string) *Signer {
	s := &Signer{issuer: issuer, ttl: ttl}
	alg := strings.TrimSpace(algorithm)
	s.method = jwt.GetSigningMethod(alg)
	if s.method == nil {
		s.err = fmt.Errorf("unsupported signing algorithm %q", alg)
		return s
	}
	s.signKey, s.verifyKey, s.err = resolveKeys(s.method, secret)
	return s
}

// Err reports a configuration problem that will make every Sign fail.
func (s *Signer) Err() error {
	return s.err
}

// TTL is the lifetime of issued assertions.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Algorithm is the configured JWA name, or "" when it was not recognised.
func (s *Signer) Algorithm() string {
	if s.method == nil {
		return ""
	}
	return s.method.Alg()
}

// Sign issues an assertion for m valid from now until now+TTL.
func (s *Signer) Sign(m models.Mapping, now time.Time) (Issued, error) {
	if s.err != nil {
		return Issued{}, s.err
	}

	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.ttl))
	claims := Claims{
		DID:     m.DID,
		Persona: m.Persona,
		CNAM:    m.CNAM,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, IssuedAt: iat.Time, ExpiresAt: exp.Time}, nil
}

// Parse verifies a token against the wall clock.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	return s.ParseAt(tokenString, time.Now())
}

// ParseAt verifies a token's signature, algorithm and expiry as of now.
func (s *Signer) ParseAt(tokenString string, now time.Time) (*Claims, error) {
	if s.err != nil {
		return nil, s.err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func resolveKeys(method jwt.SigningMethod, secret string) (sign, verify any, err error) {
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if secret == "" {
			return nil, nil, errors.New("signing secret is empty")
		}
		return []byte(secret), []byte(secret), nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s signing key: %w", method.Alg(), err)
		}
		return key, &key.PublicKey, nil
	case *jwt.SigningMethodECDSA:
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s signing key: %w", method.Alg(), err)
		}
		return key, &key.PublicKey, nil
	case *jwt.SigningMethodEd25519:
		key, err := jwt.ParseEdPrivateKeyFromPEM([]byte(secret))
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s signing key: %w", method.Alg(), err)
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("parse %s signing key: not an ed25519 key", method.Alg())
		}
		return edKey, edKey.Public(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported signing algorithm %q", method.Alg())
	}
}
