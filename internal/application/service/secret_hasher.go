package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/turtacn/authcore/internal/config"
)

const (
	argon2SaltLength = 16
	argon2KeyLength  = 32
)

// SecretHasher hashes client secrets with argon2id and verifies them in constant time.
// Hashes use the PHC string format: $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<hash>.
type SecretHasher struct {
	time    uint32
	memory  uint32
	threads uint8
	rand    io.Reader
	derive  func(secret, salt []byte, p argon2Params, keyLen uint32) []byte
	// dummy is verified against when the client is unknown so that the response
	// time does not reveal whether a client_id exists.
	dummy string
}

// NewSecretHasher creates a hasher with the configured cost parameters.
func NewSecretHasher(cfg config.Argon2Config, random io.Reader) (*SecretHasher, error) {
	if random == nil {
		random = rand.Reader
	}
	if cfg.Time == 0 || cfg.MemoryKiB == 0 || cfg.Threads == 0 {
		return nil, fmt.Errorf("argon2 parameters must be positive")
	}
	h := &SecretHasher{
		time:    cfg.Time,
		memory:  cfg.MemoryKiB,
		threads: cfg.Threads,
		rand:    random,
		derive:  argon2id,
	}
	dummy, err := h.Hash("authcore-dummy-client-secret")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash derives a PHC-encoded argon2id hash of secret with a fresh random salt.
func (h *SecretHasher) Hash(secret string) (string, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := h.derive([]byte(secret), salt, argon2Params{memory: h.memory, time: h.time, threads: h.threads}, argon2KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. Exactly one key derivation runs whatever
// the input, and the result is compared in constant time. A malformed hash is replaced by
// the dummy and verifies as false.
func (h *SecretHasher) Verify(secret, encoded string) bool {
	params, salt, want, ok := decodePHC(encoded)
	if !ok {
		params, salt, want, _ = decodePHC(h.dummy)
	}
	got := h.derive([]byte(secret), salt, params, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1 && ok
}

// VerifyDummy performs a full verification against a hash no secret matches.
func (h *SecretHasher) VerifyDummy(secret string) {
	h.Verify(secret, h.dummy)
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func argon2id(secret, salt []byte, p argon2Params, keyLen uint32) []byte {
	return argon2.IDKey(secret, salt, p.time, p.memory, p.threads, keyLen)
}

func decodePHC(encoded string) (argon2Params, []byte, []byte, bool) {
	var p argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, false
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, false
	}
	return p, salt, key, true
}
