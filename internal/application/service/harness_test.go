package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/infrastructure/crypto"
	"github.com/turtacn/authcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/authcore/internal/infrastructure/redis"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func (r *recordingAudit) LogEvent(_ context.Context, e *models.AuditEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingAudit) types() []constants.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]constants.AuditEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

var (
	sharedRingOnce sync.Once
	sharedRing     *crypto.KeyRing
)

// testKeyRing generates one RSA key for the whole package run.
func testKeyRing(t *testing.T) *crypto.KeyRing {
	t.Helper()
	sharedRingOnce.Do(func() {
		sharedRing = crypto.NewKeyRing(crypto.KeyRingConfig{
			KeyBits:   constants.MinRSAKeyBits,
			Retention: 48 * time.Hour,
		}, nil, logger.NewNoopLogger())
		if err := sharedRing.Bootstrap(context.Background()); err != nil {
			panic(err)
		}
	})
	return sharedRing
}

var testArgon2 = config.Argon2Config{Time: 1, MemoryKiB: 1024, Threads: 1}

type harness struct {
	db      *gorm.DB
	clock   *fakeClock
	audit   *recordingAudit
	tokens  *domainService.TokenService
	hasher  *SecretHasher
	server  *OAuth2Server
	clients *postgres.ClientRepository
	tenants *postgres.TenantRepository
	creds   *postgres.CredentialRepository
	admins  *postgres.AdminTokenRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := postgres.NewDB(context.Background(), &config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = postgres.Close(db) })

	// The shared key ring was created at wall-clock time; keep the fake clock close to it.
	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
	tokens := domainService.NewTokenService(testKeyRing(t), domainService.TokenConfig{
		Issuer:               "https://auth.test",
		UserTokenTTL:         24 * time.Hour,
		AdminTokenTTL:        30 * 24 * time.Hour,
		AdminTokenMaxTTL:     365 * 24 * time.Hour,
		AccessTokenTTL:       time.Hour,
		ClientCredentialsTTL: time.Hour,
	}, clock, logger.NewNoopLogger(),
		domainService.WithRevocationStore(redis.NewMemoryRevocationStore(clock)))

	hasher, err := NewSecretHasher(testArgon2, nil)
	require.NoError(t, err)

	h := &harness{
		db:      db,
		clock:   clock,
		audit:   &recordingAudit{},
		tokens:  tokens,
		hasher:  hasher,
		clients: postgres.NewClientRepository(db),
		tenants: postgres.NewTenantRepository(db),
		creds:   postgres.NewCredentialRepository(db),
		admins:  postgres.NewAdminTokenRepository(db),
	}
	h.server = NewOAuth2Server(OAuth2Config{
		Issuer:          "https://auth.test",
		BaseURL:         "https://auth.test",
		CodeTTL:         10 * time.Minute,
		ClientSecretTTL: 365 * 24 * time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		DefaultScope:    "fitness:read",
		SupportedScopes: []string{"fitness:read", "fitness:write", "profile"},
	}, h.clients, postgres.NewCodeRepository(db), postgres.NewRefreshTokenRepository(db),
		tokens, hasher, clock, logger.NewNoopLogger(), WithOAuthAudit(h.audit))
	return h
}

func (h *harness) register(t *testing.T, grants ...string) *dto.ClientRegistrationResponse {
	t.Helper()
	resp, err := h.server.RegisterClient(context.Background(), &dto.ClientRegistrationRequest{
		RedirectURIs: []string{"https://app/cb"},
		ClientName:   "Test App",
		GrantTypes:   grants,
		Scope:        "fitness:read profile",
	})
	require.NoError(t, err)
	return resp
}

const testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

func (h *harness) authorize(t *testing.T, client *dto.ClientRegistrationResponse) string {
	t.Helper()
	res, err := h.server.Authorize(context.Background(), &dto.AuthorizeRequest{
		ClientID:            client.ClientID,
		RedirectURI:         "https://app/cb",
		ResponseType:        "code",
		State:               "xyz",
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(testVerifier),
		CodeChallengeMethod: "S256",
	}, AuthenticatedUser{UserID: "user-1", TenantID: "tenant-a"})
	require.NoError(t, err)
	return res.Code
}

func (h *harness) exchange(client *dto.ClientRegistrationResponse, code, verifier string) (*dto.TokenResponse, error) {
	return h.server.Token(context.Background(), &dto.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Code:         code,
		RedirectURI:  "https://app/cb",
		CodeVerifier: verifier,
	})
}
