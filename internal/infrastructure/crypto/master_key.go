// Package crypto holds the key material of the service: the master encryption key that
// protects data at rest, the RSA signing key ring and its JWKS export.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// dataKeyAAD binds the wrapped DEK to its purpose so the MEK ciphertext of the DEK
// cannot be replayed as any other MEK-encrypted value.
const dataKeyAAD = "authcore:dek:v1"

// SecretSource supplies the base64 encoded master key. ok is false when no key is
// configured at all.
type SecretSource interface {
	MasterKey(ctx context.Context) (encoded string, ok bool, err error)
}

// MasterKeyOptions controls how a missing master key is handled.
type MasterKeyOptions struct {
	// Production refuses to run with an ephemeral key.
	Production bool

	// DebugLogEphemeralKey writes a generated key at debug level so a developer can
	// pin it for the next run. It has no effect in production.
	DebugLogEphemeralKey bool

	// Rand overrides the entropy source. Defaults to crypto/rand.
	Rand io.Reader
}

// EncryptionContext is bound into field ciphertexts as additional authenticated data,
// so a value encrypted for one tenant or subject cannot be decrypted as another's.
type EncryptionContext struct {
	TenantID string
	Subject  string
	Purpose  string
}

// AAD renders the context. Components are query-escaped so separators inside a value
// cannot forge a different context.
func (ec EncryptionContext) AAD() []byte {
	return []byte("tenant=" + url.QueryEscape(ec.TenantID) +
		"|subject=" + url.QueryEscape(ec.Subject) +
		"|purpose=" + url.QueryEscape(ec.Purpose))
}

// MasterKeyManager performs AES-256-GCM encryption under the master encryption key (MEK)
// and, once InitDataKey has run, under the MEK-wrapped data encryption key (DEK).
//
// Ciphertexts are laid out as nonce(12) || sealed(plaintext) || tag(16).
type MasterKeyManager struct {
	mek       cipher.AEAD
	rand      io.Reader
	ephemeral bool
	logger    logger.Logger

	mu  sync.RWMutex
	dek cipher.AEAD
}

// LoadOrGenerate builds the manager from the configured master key.
//
// Parameters:
//   - src: where the base64 encoded key is read from
//   - opts: production gating and entropy override
//
// Returns a ConfigurationError when the key is not exactly 32 bytes after decoding, or
// when no key is configured in production. Outside production a random key is
// generated and a warning is logged.
func LoadOrGenerate(ctx context.Context, src SecretSource, opts MasterKeyOptions, log logger.Logger) (*MasterKeyManager, error) {
	log = log.WithComponent("MasterKeyManager")
	random := opts.Rand
	if random == nil {
		random = rand.Reader
	}

	encoded, ok, err := src.MasterKey(ctx)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to read master encryption key").WithCause(err)
	}

	encoded = strings.TrimSpace(encoded)
	if !ok || encoded == "" {
		if opts.Production {
			return nil, errors.ErrConfiguration("master encryption key is required in production")
		}

		key := make([]byte, constants.MasterKeyLength)
		if _, err := io.ReadFull(random, key); err != nil {
			return nil, errors.ErrConfiguration("failed to generate ephemeral master key").WithCause(err)
		}
		defer clear(key)

		log.Warn(ctx, "no master encryption key configured, generated an ephemeral one; data encrypted in this run will be unreadable after restart")
		if opts.DebugLogEphemeralKey {
			log.Debug(ctx, "ephemeral master encryption key", logger.String("ephemeral_mek", base64.StdEncoding.EncodeToString(key)))
		}

		m, err := newMasterKeyManager(key, random, log)
		if err != nil {
			return nil, err
		}
		m.ephemeral = true
		return m, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.ErrConfiguration("master encryption key is not valid base64").WithCause(err)
	}
	defer clear(key)
	if len(key) != constants.MasterKeyLength {
		return nil, errors.ErrConfiguration(fmt.Sprintf("master encryption key must decode to %d bytes, got %d", constants.MasterKeyLength, len(key)))
	}

	log.Info(ctx, "master encryption key loaded")
	return newMasterKeyManager(key, random, log)
}

// NewMasterKeyManager wraps a raw 32-byte key. Intended for tooling and tests.
func NewMasterKeyManager(key []byte, log logger.Logger) (*MasterKeyManager, error) {
	if len(key) != constants.MasterKeyLength {
		return nil, errors.ErrConfiguration(fmt.Sprintf("master encryption key must be %d bytes, got %d", constants.MasterKeyLength, len(key)))
	}
	return newMasterKeyManager(key, rand.Reader, log.WithComponent("MasterKeyManager"))
}

// GenerateMasterKey returns a fresh base64 encoded key suitable for AUTHCORE_KEYS_MASTER_KEY.
func GenerateMasterKey() (string, error) {
	key := make([]byte, constants.MasterKeyLength)
	defer clear(key)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func newMasterKeyManager(key []byte, random io.Reader, log logger.Logger) (*MasterKeyManager, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &MasterKeyManager{mek: aead, rand: random, logger: log}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.ErrConfiguration("invalid AES key").WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to initialise AES-GCM").WithCause(err)
	}
	return aead, nil
}

// IsEphemeral reports whether the key was generated for this process only.
func (m *MasterKeyManager) IsEphemeral() bool { return m.ephemeral }

// Encrypt seals plaintext under the MEK with a fresh random nonce.
func (m *MasterKeyManager) Encrypt(plaintext []byte) ([]byte, error) {
	return m.EncryptWithAAD(plaintext, nil)
}

// Decrypt opens a ciphertext produced by Encrypt.
func (m *MasterKeyManager) Decrypt(ciphertext []byte) ([]byte, error) {
	return m.DecryptWithAAD(ciphertext, nil)
}

// EncryptWithAAD seals plaintext under the MEK, authenticating aad alongside it.
func (m *MasterKeyManager) EncryptWithAAD(plaintext, aad []byte) ([]byte, error) {
	return seal(m.mek, m.rand, plaintext, aad)
}

// DecryptWithAAD opens a ciphertext produced by EncryptWithAAD with the same aad.
func (m *MasterKeyManager) DecryptWithAAD(ciphertext, aad []byte) ([]byte, error) {
	return open(m.mek, ciphertext, aad)
}

// InitDataKey loads the active DEK, unwrapping it with the MEK, or creates and stores
// one when none exists yet.
func (m *MasterKeyManager) InitDataKey(ctx context.Context, repo repository.DataKeyRepository) error {
	rec, err := repo.GetActive(ctx)
	if err != nil && !errors.IsNotFound(err) {
		return errors.ErrServerError("failed to load data encryption key").WithCause(err)
	}

	var dek []byte
	if rec != nil {
		dek, err = m.DecryptWithAAD(rec.EncryptedKey, []byte(dataKeyAAD))
		if err != nil {
			return errors.ErrDecryptionFailed("data encryption key cannot be unwrapped with the configured master key").WithCause(err)
		}
		if len(dek) != constants.MasterKeyLength {
			clear(dek)
			return errors.ErrConfiguration("stored data encryption key has the wrong length")
		}
		m.logger.Info(ctx, "data encryption key loaded", logger.String("key_id", rec.ID))
	} else {
		dek = make([]byte, constants.MasterKeyLength)
		if _, err := io.ReadFull(m.rand, dek); err != nil {
			return errors.ErrServerError("failed to generate data encryption key").WithCause(err)
		}
		wrapped, err := m.EncryptWithAAD(dek, []byte(dataKeyAAD))
		if err != nil {
			clear(dek)
			return err
		}
		rec = &models.DataEncryptionKey{ID: uuid.NewString(), EncryptedKey: wrapped, IsActive: true}
		if err := repo.Save(ctx, rec); err != nil {
			clear(dek)
			return errors.ErrServerError("failed to store data encryption key").WithCause(err)
		}
		m.logger.Info(ctx, "data encryption key created", logger.String("key_id", rec.ID))
	}
	defer clear(dek)

	aead, err := newGCM(dek)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.dek = aead
	m.mu.Unlock()
	return nil
}

// EncryptField seals a field value under the DEK, bound to ec.
func (m *MasterKeyManager) EncryptField(plaintext []byte, ec EncryptionContext) ([]byte, error) {
	aead, err := m.dataKey()
	if err != nil {
		return nil, err
	}
	return seal(aead, m.rand, plaintext, ec.AAD())
}

// DecryptField opens a value sealed by EncryptField. A different ec fails authentication.
func (m *MasterKeyManager) DecryptField(ciphertext []byte, ec EncryptionContext) ([]byte, error) {
	aead, err := m.dataKey()
	if err != nil {
		return nil, err
	}
	return open(aead, ciphertext, ec.AAD())
}

func (m *MasterKeyManager) dataKey() (cipher.AEAD, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dek == nil {
		return nil, errors.ErrConfiguration("data encryption key is not initialised")
	}
	return m.dek, nil
}

func seal(aead cipher.AEAD, random io.Reader, plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, errors.ErrServerError("failed to generate nonce").WithCause(err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func open(aead cipher.AEAD, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.ErrDecryptionFailed("ciphertext is too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errors.ErrDecryptionFailed("ciphertext failed authentication")
	}
	return plaintext, nil
}
