package crypto

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/pkg/logger"
)

func TestPublicKeyToJWK(t *testing.T) {
	ring := newTestRing(newStepClock())
	pair, err := ring.GenerateKey()
	require.NoError(t, err)

	k := PublicKeyToJWK(pair.KID, pair.PublicKey)
	assert.Equal(t, "RSA", k.Kty)
	assert.Equal(t, "sig", k.Use)
	assert.Equal(t, "RS256", k.Alg)
	assert.Equal(t, pair.KID, k.Kid)
	assert.Equal(t, "AQAB", k.E)
	assert.NotContains(t, k.N, "=")
	assert.Len(t, k.N, 342, "2048-bit modulus is 256 bytes, 342 unpadded base64url chars")
}

func TestJWKSPublisher_CacheFollowsRotation(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(newStepClock())
	require.NoError(t, ring.Bootstrap(ctx))
	pub := NewJWKSPublisher(ring, time.Minute)

	body, err := pub.JSON()
	require.NoError(t, err)
	var doc JWKS
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, doc.Keys, 1)

	_, err = ring.Rotate(ctx)
	require.NoError(t, err)

	body, err = pub.JSON()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, doc.Keys, 2)
}

// A third-party JOSE implementation must be able to verify our tokens from the
// published document alone.
func TestJWKSPublisher_InteroperatesWithJWX(t *testing.T) {
	ctx := context.Background()
	ring := NewKeyRing(KeyRingConfig{KeyBits: 2048, Retention: time.Hour}, nil, logger.NewNoopLogger())
	require.NoError(t, ring.Bootstrap(ctx))
	active, err := ring.ActiveKey()
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "authcore",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok.Header["kid"] = active.KID
	signed, err := tok.SignedString(active.PrivateKey)
	require.NoError(t, err)

	body, err := NewJWKSPublisher(ring, time.Minute).JSON()
	require.NoError(t, err)
	set, err := jwk.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	parsed, err := jwxjwt.Parse([]byte(signed), jwxjwt.WithKeySet(set), jwxjwt.WithIssuer("authcore"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.Subject())
}
