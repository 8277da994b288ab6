package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// KeyRingConfig configures key generation and retention.
type KeyRingConfig struct {
	KeyBits int

	// Retention is how long a retired key stays verifiable. It must be at least the
	// longest token lifetime, otherwise tokens signed just before a rotation would be
	// rejected before they expire.
	Retention time.Duration

	RotationInterval time.Duration
}

// KeyRing holds the active RSA signing key and the retired keys still inside their
// retention window. Key pairs are never mutated after they are published; rotation
// replaces the map entries with retired copies.
type KeyRing struct {
	cfg     KeyRingConfig
	clock   service.Clock
	rand    io.Reader
	metrics service.Metrics
	logger  logger.Logger

	repo repository.SigningKeyRepository
	mek  *MasterKeyManager

	mu       sync.RWMutex
	active   *models.SigningKeyPair
	keys     map[string]*models.SigningKeyPair
	watchers []func()
}

var _ service.KeyRing = (*KeyRing)(nil)

// KeyRingOption customises a KeyRing.
type KeyRingOption func(*KeyRing)

// WithKeyPersistence stores every generated key in repo, with the private key encrypted
// under the master key.
func WithKeyPersistence(repo repository.SigningKeyRepository, mek *MasterKeyManager) KeyRingOption {
	return func(r *KeyRing) {
		r.repo = repo
		r.mek = mek
	}
}

// WithKeyRingEntropy overrides the randomness used for keys and kids.
func WithKeyRingEntropy(random io.Reader) KeyRingOption {
	return func(r *KeyRing) { r.rand = random }
}

// WithKeyRingMetrics reports rotations and key counts.
func WithKeyRingMetrics(m service.Metrics) KeyRingOption {
	return func(r *KeyRing) { r.metrics = m }
}

// NewKeyRing creates an empty key ring. Call Bootstrap or Rotate before issuing tokens.
func NewKeyRing(cfg KeyRingConfig, clock service.Clock, log logger.Logger, opts ...KeyRingOption) *KeyRing {
	if cfg.KeyBits == 0 {
		cfg.KeyBits = constants.DefaultRSAKeyBits
	}
	if cfg.RotationInterval == 0 {
		cfg.RotationInterval = constants.KeyRotationInterval
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	r := &KeyRing{
		cfg:     cfg,
		clock:   clock,
		rand:    rand.Reader,
		metrics: service.NoopMetrics{},
		logger:  log.WithComponent("KeyRing"),
		keys:    make(map[string]*models.SigningKeyPair),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn to run after every rotation or purge.
func (r *KeyRing) OnChange(fn func()) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

// Bootstrap loads persisted keys, drops those past retention, and generates a first
// key when there is no active one.
func (r *KeyRing) Bootstrap(ctx context.Context) error {
	if r.repo != nil {
		stored, err := r.repo.List(ctx)
		if err != nil {
			return errors.ErrServerError("failed to load signing keys").WithCause(err)
		}

		loaded := make(map[string]*models.SigningKeyPair, len(stored))
		var active *models.SigningKeyPair
		for _, rec := range stored {
			pair, err := r.decodeStored(rec)
			if err != nil {
				return err
			}
			loaded[pair.KID] = pair
			if pair.IsActive {
				active = pair
			}
		}

		r.mu.Lock()
		r.keys = loaded
		r.active = active
		r.mu.Unlock()
		r.logger.Info(ctx, "signing keys loaded", logger.Int("count", len(loaded)))

		r.Purge(ctx)
	}

	if _, err := r.ActiveKey(); err != nil {
		_, err = r.Rotate(ctx)
		return err
	}
	r.reportCount()
	return nil
}

// GenerateKey creates a new RSA key pair with a kid of the form
// key_YYYYMMDD_HHMMSS_<6 hex chars>. It does not install the key.
func (r *KeyRing) GenerateKey() (*models.SigningKeyPair, error) {
	if r.cfg.KeyBits < constants.MinRSAKeyBits {
		return nil, errors.ErrConfiguration(fmt.Sprintf("RSA key size must be at least %d bits", constants.MinRSAKeyBits))
	}

	priv, err := rsa.GenerateKey(r.rand, r.cfg.KeyBits)
	if err != nil {
		return nil, errors.ErrServerError("failed to generate RSA key").WithCause(err)
	}

	suffix := make([]byte, 3)
	if _, err := io.ReadFull(r.rand, suffix); err != nil {
		return nil, errors.ErrServerError("failed to generate key id").WithCause(err)
	}

	now := r.clock.Now().UTC()
	return &models.SigningKeyPair{
		KID:        fmt.Sprintf("key_%s_%s", now.Format("20060102_150405"), hex.EncodeToString(suffix)),
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		CreatedAt:  now,
		IsActive:   true,
	}, nil
}

// Rotate generates a new key and makes it active. The previous active key is retired
// and stays verifiable for the retention window. If persistence fails the ring is left
// unchanged.
func (r *KeyRing) Rotate(ctx context.Context) (*models.SigningKeyPair, error) {
	pair, err := r.GenerateKey()
	if err != nil {
		r.metrics.RecordKeyRotation(false)
		return nil, err
	}
	now := r.clock.Now().UTC()

	if r.repo != nil {
		rec, err := r.encodeForStorage(pair)
		if err != nil {
			r.metrics.RecordKeyRotation(false)
			return nil, err
		}
		if err := r.repo.Rotate(ctx, rec, now); err != nil {
			r.metrics.RecordKeyRotation(false)
			return nil, errors.ErrServerError("failed to persist signing key").WithCause(err)
		}
	}

	r.mu.Lock()
	var previous string
	if r.active != nil {
		retired := *r.active
		retired.IsActive = false
		retired.RetiredAt = now
		r.keys[retired.KID] = &retired
		previous = retired.KID
	}
	r.keys[pair.KID] = pair
	r.active = pair
	r.mu.Unlock()

	r.metrics.RecordKeyRotation(true)
	r.logger.Info(ctx, "signing key rotated",
		logger.String("kid", pair.KID),
		logger.String("previous_kid", previous),
		logger.Int("key_bits", r.cfg.KeyBits),
	)

	r.Purge(ctx)
	r.notify()
	return pair, nil
}

// ActiveKey returns the key that signs new tokens.
func (r *KeyRing) ActiveKey() (*models.SigningKeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, errors.ErrConfiguration("no active signing key")
	}
	return r.active, nil
}

// Key returns the key for kid if it is active or retired within the retention window.
func (r *KeyRing) Key(kid string) (*models.SigningKeyPair, bool) {
	r.mu.RLock()
	pair, ok := r.keys[kid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.expired(pair, r.clock.Now()) {
		return nil, false
	}
	return pair, true
}

// Keys returns every verifiable key, oldest first.
func (r *KeyRing) Keys() []*models.SigningKeyPair {
	now := r.clock.Now()
	r.mu.RLock()
	out := make([]*models.SigningKeyPair, 0, len(r.keys))
	for _, pair := range r.keys {
		if !r.expired(pair, now) {
			out = append(out, pair)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].KID < out[j].KID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ShouldRotate reports whether the active key is older than the rotation interval.
func (r *KeyRing) ShouldRotate(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active == nil || r.active.Age(now) >= r.cfg.RotationInterval
}

// Purge removes retired keys past retention and returns how many were dropped. The
// active key is never purged.
func (r *KeyRing) Purge(ctx context.Context) int {
	now := r.clock.Now()

	r.mu.Lock()
	var purged []string
	for kid, pair := range r.keys {
		if r.expired(pair, now) {
			delete(r.keys, kid)
			purged = append(purged, kid)
		}
	}
	r.mu.Unlock()

	if len(purged) == 0 {
		r.reportCount()
		return 0
	}

	if r.repo != nil {
		if err := r.repo.Delete(ctx, purged...); err != nil {
			r.logger.Warn(ctx, "failed to delete purged signing keys", logger.Err(err), logger.Strings("kids", purged))
		}
	}
	r.logger.Info(ctx, "retired signing keys purged", logger.Strings("kids", purged))
	r.reportCount()
	r.notify()
	return len(purged)
}

func (r *KeyRing) expired(pair *models.SigningKeyPair, now time.Time) bool {
	if pair.IsActive || pair.RetiredAt.IsZero() {
		return false
	}
	return !now.Before(pair.RetiredAt.Add(r.cfg.Retention))
}

func (r *KeyRing) notify() {
	r.mu.RLock()
	watchers := append([]func(){}, r.watchers...)
	r.mu.RUnlock()
	for _, fn := range watchers {
		fn()
	}
}

func (r *KeyRing) reportCount() {
	r.mu.RLock()
	n := len(r.keys)
	r.mu.RUnlock()
	r.metrics.SetSigningKeys(n)
}

// signingKeyAAD binds an encrypted private key to its kid.
func signingKeyAAD(kid string) []byte {
	return []byte("signing-key|" + kid)
}

func (r *KeyRing) encodeForStorage(pair *models.SigningKeyPair) (*models.SigningKey, error) {
	if r.mek == nil {
		return nil, errors.ErrConfiguration("signing key persistence requires a master key")
	}

	der := x509.MarshalPKCS1PrivateKey(pair.PrivateKey)
	defer clear(der)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	defer clear(privPEM)

	encrypted, err := r.mek.EncryptWithAAD(privPEM, signingKeyAAD(pair.KID))
	if err != nil {
		return nil, err
	}

	pubPEM, err := EncodePublicKeyPEM(pair.PublicKey)
	if err != nil {
		return nil, err
	}

	return &models.SigningKey{
		KID:                 pair.KID,
		PublicKeyPEM:        pubPEM,
		EncryptedPrivateKey: encrypted,
		KeyBits:             pair.PublicKey.N.BitLen(),
		IsActive:            true,
		CreatedAt:           pair.CreatedAt,
	}, nil
}

func (r *KeyRing) decodeStored(rec *models.SigningKey) (*models.SigningKeyPair, error) {
	if r.mek == nil {
		return nil, errors.ErrConfiguration("signing key persistence requires a master key")
	}

	privPEM, err := r.mek.DecryptWithAAD(rec.EncryptedPrivateKey, signingKeyAAD(rec.KID))
	if err != nil {
		return nil, errors.ErrDecryptionFailed(fmt.Sprintf("signing key %s cannot be decrypted with the configured master key", rec.KID))
	}
	defer clear(privPEM)

	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, errors.ErrDecryptionFailed(fmt.Sprintf("signing key %s is not PEM encoded", rec.KID))
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	clear(block.Bytes)
	if err != nil {
		return nil, errors.ErrDecryptionFailed(fmt.Sprintf("signing key %s cannot be parsed", rec.KID)).WithCause(err)
	}

	pair := &models.SigningKeyPair{
		KID:        rec.KID,
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		CreatedAt:  rec.CreatedAt.UTC(),
		IsActive:   rec.IsActive,
	}
	if rec.RetiredAt != nil {
		pair.RetiredAt = rec.RetiredAt.UTC()
	}
	return pair, nil
}

// EncodePublicKeyPEM renders pub as a PKIX "PUBLIC KEY" block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.ErrServerError("failed to marshal public key").WithCause(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
