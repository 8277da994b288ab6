package models

import (
	"crypto/rsa"
	"time"
)

// SigningKey is the persisted form of an RSA signing key pair.
// The private key is stored as a PKCS#1 PEM block encrypted under the master key.
type SigningKey struct {
	// KID is the key identifier carried in the JOSE header of every token it signs.
	KID string `gorm:"primaryKey;column:kid;size:64"`
	// PublicKeyPEM is the PKIX public key in PEM format.
	PublicKeyPEM string `gorm:"type:text;not null"`
	// EncryptedPrivateKey is nonce || AES-GCM ciphertext of the PKCS#1 PEM.
	EncryptedPrivateKey []byte `gorm:"not null"`
	// KeyBits is the RSA modulus size.
	KeyBits int
	// IsActive marks the single key used for signing new tokens.
	IsActive bool `gorm:"index"`
	// CreatedAt is when the key was generated.
	CreatedAt time.Time
	// RetiredAt is set when the key stops signing. Nil while active.
	RetiredAt *time.Time `gorm:"index"`
}

// TableName pins the gorm table name.
func (SigningKey) TableName() string { return "signing_keys" }

// SigningKeyPair is the in-memory key pair owned by the key ring.
type SigningKeyPair struct {
	KID        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
	IsActive   bool
	// RetiredAt is the zero time while the key is active.
	RetiredAt time.Time
}

// Age returns how long the key has existed at now.
func (k *SigningKeyPair) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// DataEncryptionKey is the tier-2 key used for field-level encryption, stored encrypted under the master key.
type DataEncryptionKey struct {
	ID           string `gorm:"primaryKey;size:64"`
	EncryptedKey []byte `gorm:"not null"`
	IsActive     bool   `gorm:"index"`
	CreatedAt    time.Time
}

func (DataEncryptionKey) TableName() string { return "data_encryption_keys" }
