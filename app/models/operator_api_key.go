package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	OperatorRoleViewer   = "viewer"
	OperatorRoleOperator = "operator"
	OperatorRoleAdmin    = "admin"
)

// OperatorAPIKey is a tenant-scoped credential for the operator API.
// The secret is only stored as a bcrypt hash.
type OperatorAPIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	KeyID      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"key_id"`
	SecretHash string     `gorm:"type:varchar(100);not null" json:"-"`
	TenantID   uint       `gorm:"not null;index" json:"tenant_id"`
	Name       string     `gorm:"type:varchar(100)" json:"name"`
	Role       string     `gorm:"type:varchar(16);not null;default:'viewer'" json:"role"`
	ExpiresAt  *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	RevokedAt  *time.Time `gorm:"type:timestamp;default:null" json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewOperatorAPIKey creates a key and returns it together with the plain
// "<key id>.<secret>" token, which is shown once.
func NewOperatorAPIKey(tenantID uint, name, role string, expiresAt *time.Time) (*OperatorAPIKey, string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return nil, "", err
	}
	secret := hex.EncodeToString(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	key := &OperatorAPIKey{
		KeyID:      uuid.NewString(),
		SecretHash: string(hash),
		TenantID:   tenantID,
		Name:       name,
		Role:       role,
		ExpiresAt:  expiresAt,
	}
	return key, key.KeyID + "." + secret, nil
}

// CheckSecret compares a plain secret with the stored hash.
func (k *OperatorAPIKey) CheckSecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.SecretHash), []byte(secret)) == nil
}

// IsUsable reports whether the key is neither revoked nor expired at now.
func (k *OperatorAPIKey) IsUsable(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// CanWrite reports whether the role may change alert state.
func (k *OperatorAPIKey) CanWrite() bool {
	return k.Role == OperatorRoleOperator || k.Role == OperatorRoleAdmin
}
