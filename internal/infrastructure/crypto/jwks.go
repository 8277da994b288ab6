package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/authcore/pkg/constants"
)

// JWK is the public half of a signing key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the document served at /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicKeyToJWK encodes an RSA public key. n and e are unpadded base64url big-endian
// integers, so the usual exponent 65537 renders as "AQAB".
func PublicKeyToJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: constants.JWKKeyType,
		Use: constants.JWKUseSignature,
		Kid: kid,
		Alg: constants.SigningAlgorithm,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

const jwksCacheKey = "jwks"

// JWKSPublisher renders the key ring as a JWKS document. The rendered JSON is cached
// until the ring changes or the cache TTL passes.
type JWKSPublisher struct {
	ring  *KeyRing
	cache *gocache.Cache
}

// NewJWKSPublisher creates a publisher and subscribes it to ring changes.
func NewJWKSPublisher(ring *KeyRing, ttl time.Duration) *JWKSPublisher {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	p := &JWKSPublisher{ring: ring, cache: gocache.New(ttl, 2*ttl)}
	ring.OnChange(func() { p.cache.Delete(jwksCacheKey) })
	return p
}

// Document returns every verifiable key, oldest first.
func (p *JWKSPublisher) Document() JWKS {
	keys := p.ring.Keys()
	doc := JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, k := range keys {
		doc.Keys = append(doc.Keys, PublicKeyToJWK(k.KID, k.PublicKey))
	}
	return doc
}

// JSON returns the marshalled document.
func (p *JWKSPublisher) JSON() ([]byte, error) {
	if cached, ok := p.cache.Get(jwksCacheKey); ok {
		return cached.([]byte), nil
	}
	body, err := json.Marshal(p.Document())
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(jwksCacheKey, body)
	return body, nil
}
