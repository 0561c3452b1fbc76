package token

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sovren/internal/telephony/models"
)

var (
	fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	mapping  = models.Mapping{DID: "+13105551234", Persona: "exec-1", CNAM: "Exec One"}
)

func TestSignHS256(t *testing.T) {
	s := NewSigner("test-secret", "HS256", 5*time.Minute, "")
	require.NoError(t, s.Err())

	issued, err := s.Sign(mapping, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, issued.ExpiresAt.Sub(issued.IssuedAt))
	assert.Equal(t, fixedNow.Truncate(time.Second), issued.IssuedAt.UTC())

	claims, err := s.ParseAt(issued.Token, fixedNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "+13105551234", claims.DID)
	assert.Equal(t, "exec-1", claims.Persona)
	assert.Equal(t, "Exec One", claims.CNAM)
	assert.Equal(t, int64(300), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
	assert.Empty(t, claims.Issuer)
}

func TestSignWithIssuer(t *testing.T) {
	s := NewSigner("test-secret", "HS512", time.Minute, "sovren")

	issued, err := s.Sign(mapping, fixedNow)
	require.NoError(t, err)

	claims, err := s.ParseAt(issued.Token, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "sovren", claims.Issuer)

	other := NewSigner("test-secret", "HS512", time.Minute, "someone-else")
	_, err = other.ParseAt(issued.Token, fixedNow)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejects(t *testing.T) {
	s := NewSigner("test-secret", "HS256", 5*time.Minute, "")
	issued, err := s.Sign(mapping, fixedNow)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		_, err := s.ParseAt(issued.Token, fixedNow.Add(10*time.Minute))
		require.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSigner("another-secret", "HS256", 5*time.Minute, "")
		_, err := other.ParseAt(issued.Token, fixedNow)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("algorithm mismatch", func(t *testing.T) {
		other := NewSigner("test-secret", "HS384", 5*time.Minute, "")
		_, err := other.ParseAt(issued.Token, fixedNow)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ParseAt("not.a.token", fixedNow)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAsymmetricAlgorithms(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)
	ecPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER})

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	edDER, err := x509.MarshalPKCS8PrivateKey(edKey)
	require.NoError(t, err)
	edPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: edDER})

	tests := []struct {
		alg string
		key []byte
	}{
		{"RS256", rsaPEM},
		{"PS256", rsaPEM},
		{"ES256", ecPEM},
		{"EdDSA", edPEM},
	}
	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			s := NewSigner(string(tt.key), tt.alg, 5*time.Minute, "")
			require.NoError(t, s.Err())
			assert.Equal(t, tt.alg, s.Algorithm())

			issued, err := s.Sign(mapping, fixedNow)
			require.NoError(t, err)

			claims, err := s.ParseAt(issued.Token, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, mapping.DID, claims.DID)
		})
	}
}

func TestMisconfiguredSignerFailsAtSignTime(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		alg    string
	}{
		{"unknown algorithm", "secret", "XX999"},
		{"none", "secret", "none"},
		{"rsa key is not pem", "not-a-pem", "RS256"},
		{"ec key is not pem", "not-a-pem", "ES256"},
		{"empty hmac secret", "", "HS256"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSigner(tt.secret, tt.alg, 5*time.Minute, "")
			require.Error(t, s.Err())

			issued, err := s.Sign(mapping, fixedNow)
			require.Error(t, err)
			assert.Empty(t, issued.Token)
		})
	}
}
