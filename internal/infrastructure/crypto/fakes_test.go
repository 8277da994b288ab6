package crypto

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/errors"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type staticSource struct {
	encoded string
	ok      bool
	err     error
}

func (s staticSource) MasterKey(context.Context) (string, bool, error) {
	return s.encoded, s.ok, s.err
}

type memDataKeys struct {
	mu  sync.Mutex
	key *models.DataEncryptionKey
}

func (m *memDataKeys) GetActive(context.Context) (*models.DataEncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, errors.ErrNotFound("data_encryption_key", "active")
	}
	return m.key, nil
}

func (m *memDataKeys) Save(_ context.Context, key *models.DataEncryptionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	return nil
}

type memSigningKeys struct {
	mu      sync.Mutex
	keys    map[string]*models.SigningKey
	failErr error
}

func newMemSigningKeys() *memSigningKeys {
	return &memSigningKeys{keys: make(map[string]*models.SigningKey)}
}

func (m *memSigningKeys) List(context.Context) ([]*models.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SigningKey, 0, len(m.keys))
	for _, k := range m.keys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memSigningKeys) Rotate(_ context.Context, key *models.SigningKey, retiredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	for _, k := range m.keys {
		if k.IsActive {
			k.IsActive = false
			at := retiredAt
			k.RetiredAt = &at
		}
	}
	cp := *key
	m.keys[key.KID] = &cp
	return nil
}

func (m *memSigningKeys) Delete(_ context.Context, kids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kid := range kids {
		delete(m.keys, kid)
	}
	return nil
}
