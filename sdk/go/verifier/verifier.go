// Package verifier lets resource servers validate authcore access tokens offline
// against the published JWKS document.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrKidNotFound  = errors.New("kid not found in JWKS")
	ErrNoKeysFound  = errors.New("no keys found in JWKS response")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the verified content of an authcore token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	JTI       string
	TokenKind string
	TenantID  string
	ClientID  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the client used to fetch the JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.httpClient = c }
}

// WithAudience requires the token's aud claim to contain aud.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithMinRefreshInterval bounds how often an unknown kid can trigger a JWKS fetch.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(v *Verifier) { v.minRefresh = d }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// Verifier validates tokens against a cached JWKS. Safe for concurrent use.
type Verifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client
	minRefresh time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      jwk.Set
	etag      string
	lastFetch time.Time
}

// New creates a Verifier for tokens minted by issuer and published at jwksURL.
func New(jwksURL, issuer string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		minRefresh: 30 * time.Second,
		now:        time.Now,
		keys:       jwk.NewSet(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh fetches the JWKS, honoring ETag revalidation.
func (v *Verifier) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	v.mu.RLock()
	if v.etag != "" {
		req.Header.Set("If-None-Match", v.etag)
	}
	v.mu.RUnlock()

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		v.mu.Lock()
		v.lastFetch = v.now()
		v.mu.Unlock()
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch JWKS: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read JWKS: %w", err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return fmt.Errorf("parse JWKS: %w", err)
	}
	if set.Len() == 0 {
		return ErrNoKeysFound
	}

	v.mu.Lock()
	v.keys = set
	v.etag = resp.Header.Get("ETag")
	v.lastFetch = v.now()
	v.mu.Unlock()
	return nil
}

// Verify checks the signature, issuer, audience and lifetime of token.
// An unknown kid triggers at most one JWKS refresh per refresh interval.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	kid, err := keyID(token)
	if err != nil {
		return nil, err
	}

	keys, found, stale := v.lookup(kid)
	if !found {
		if stale {
			if err := v.Refresh(ctx); err != nil {
				return nil, err
			}
			keys, found, _ = v.lookup(kid)
		}
		if !found {
			return nil, ErrKidNotFound
		}
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFrom(tok), nil
}

func (v *Verifier) lookup(kid string) (jwk.Set, bool, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, found := v.keys.LookupKeyID(kid)
	stale := v.lastFetch.IsZero() || v.now().Sub(v.lastFetch) >= v.minRefresh
	return v.keys, found, stale
}

func keyID(token string) (string, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", fmt.Errorf("%w: expected one signature", ErrInvalidToken)
	}
	kid := sigs[0].ProtectedHeaders().KeyID()
	if kid == "" {
		return "", ErrKidNotFound
	}
	return kid, nil
}

func claimsFrom(tok jwt.Token) *Claims {
	return &Claims{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		Audience:  tok.Audience(),
		JTI:       tok.JwtID(),
		TokenKind: stringClaim(tok, "token_kind"),
		TenantID:  stringClaim(tok, "tenant_id"),
		ClientID:  stringClaim(tok, "client_id"),
		Scope:     stringClaim(tok, "scope"),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
