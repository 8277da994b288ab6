package crypto

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

var kidPattern = regexp.MustCompile(`^key_\d{8}_\d{6}_[0-9a-f]{6}$`)

func newTestRing(clock *stepClock, opts ...KeyRingOption) *KeyRing {
	cfg := KeyRingConfig{
		KeyBits:          2048,
		Retention:        48 * time.Hour,
		RotationInterval: 90 * 24 * time.Hour,
	}
	return NewKeyRing(cfg, clock, logger.NewNoopLogger(), opts...)
}

func TestKeyRing_BootstrapAndRotate(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	ring := newTestRing(clock)

	_, err := ring.ActiveKey()
	assert.True(t, errors.IsCode(err, constants.ErrCodeConfiguration))

	require.NoError(t, ring.Bootstrap(ctx))
	first, err := ring.ActiveKey()
	require.NoError(t, err)
	assert.Regexp(t, kidPattern, first.KID)
	assert.Equal(t, "key_20260501_100000_", first.KID[:len("key_20260501_100000_")])
	assert.Equal(t, 2048, first.PublicKey.N.BitLen())

	clock.Advance(time.Hour)
	second, err := ring.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.KID, second.KID)

	active, err := ring.ActiveKey()
	require.NoError(t, err)
	assert.Equal(t, second.KID, active.KID)

	old, ok := ring.Key(first.KID)
	require.True(t, ok, "retired key stays verifiable")
	assert.False(t, old.IsActive)
	assert.Equal(t, clock.Now(), old.RetiredAt)
	assert.True(t, first.IsActive, "published pairs are never mutated")

	assert.Len(t, ring.Keys(), 2)
}

func TestKeyRing_PurgeAfterRetention(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	ring := newTestRing(clock)
	require.NoError(t, ring.Bootstrap(ctx))
	first, _ := ring.ActiveKey()

	_, err := ring.Rotate(ctx)
	require.NoError(t, err)

	clock.Advance(47 * time.Hour)
	_, ok := ring.Key(first.KID)
	assert.True(t, ok)
	assert.Equal(t, 0, ring.Purge(ctx))

	clock.Advance(time.Hour)
	_, ok = ring.Key(first.KID)
	assert.False(t, ok, "expired keys are unverifiable even before purge")
	assert.Equal(t, 1, ring.Purge(ctx))
	assert.Len(t, ring.Keys(), 1)

	// The active key is never purged, however old.
	clock.Advance(365 * 24 * time.Hour)
	assert.Equal(t, 0, ring.Purge(ctx))
	_, err = ring.ActiveKey()
	assert.NoError(t, err)
}

func TestKeyRing_ShouldRotate(t *testing.T) {
	clock := newStepClock()
	ring := newTestRing(clock)
	assert.True(t, ring.ShouldRotate(clock.Now()), "no active key")

	require.NoError(t, ring.Bootstrap(context.Background()))
	assert.False(t, ring.ShouldRotate(clock.Now()))
	assert.False(t, ring.ShouldRotate(clock.Now().Add(89*24*time.Hour)))
	assert.True(t, ring.ShouldRotate(clock.Now().Add(90*24*time.Hour)))
}

func TestKeyRing_RejectsSmallKeys(t *testing.T) {
	ring := NewKeyRing(KeyRingConfig{KeyBits: 1024}, newStepClock(), logger.NewNoopLogger())
	_, err := ring.Rotate(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeConfiguration))
}

func TestKeyRing_Persistence(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	repo := newMemSigningKeys()
	mek := testMEK(t, 0x07)

	ring := newTestRing(clock, WithKeyPersistence(repo, mek))
	require.NoError(t, ring.Bootstrap(ctx))
	clock.Advance(time.Minute)
	_, err := ring.Rotate(ctx)
	require.NoError(t, err)

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, rec := range stored {
		assert.NotContains(t, string(rec.EncryptedPrivateKey), "PRIVATE KEY")
		assert.Contains(t, rec.PublicKeyPEM, "BEGIN PUBLIC KEY")
	}

	restarted := newTestRing(clock, WithKeyPersistence(repo, testMEK(t, 0x07)))
	require.NoError(t, restarted.Bootstrap(ctx))

	want, _ := ring.ActiveKey()
	got, err := restarted.ActiveKey()
	require.NoError(t, err)
	assert.Equal(t, want.KID, got.KID)
	assert.True(t, want.PrivateKey.Equal(got.PrivateKey))
	assert.Len(t, restarted.Keys(), 2)

	wrongMEK := newTestRing(clock, WithKeyPersistence(repo, testMEK(t, 0x08)))
	err = wrongMEK.Bootstrap(ctx)
	assert.True(t, errors.IsCode(err, constants.ErrCodeDecryptionFailed))
}

func TestKeyRing_PersistenceFailureLeavesRingUnchanged(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	repo := newMemSigningKeys()
	ring := newTestRing(clock, WithKeyPersistence(repo, testMEK(t, 0x09)))
	require.NoError(t, ring.Bootstrap(ctx))
	before, _ := ring.ActiveKey()

	repo.failErr = fmt.Errorf("database unavailable")
	_, err := ring.Rotate(ctx)
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))

	after, _ := ring.ActiveKey()
	assert.Equal(t, before.KID, after.KID)
	assert.Len(t, ring.Keys(), 1)
}

func TestKeyRing_OnChange(t *testing.T) {
	ctx := context.Background()
	ring := newTestRing(newStepClock())
	calls := 0
	ring.OnChange(func() { calls++ })

	require.NoError(t, ring.Bootstrap(ctx))
	_, err := ring.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
