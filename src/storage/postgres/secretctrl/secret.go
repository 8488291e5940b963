package secretctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"supportkb/src/core/vault"
)

// ProviderCredential is a stored embedding-provider API key. The key is
// encrypted at rest: APIKey holds the ciphertext and APIKeyIV/APIKeyTag the
// GCM nonce and tag, all hex. A row with an empty IV and tag predates
// encryption and is treated as stored in the clear.
type ProviderCredential struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"uniqueIndex;not null" json:"provider"`
	APIKey    string    `gorm:"column:api_key" json:"-"`
	APIKeyIV  string    `gorm:"column:api_key_iv" json:"-"`
	APIKeyTag string    `gorm:"column:api_key_tag" json:"-"`
	IsActive  bool      `gorm:"not null;default:false" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretService stores provider credentials through the vault.
type SecretService struct {
	db    *gorm.DB
	vault *vault.Vault
}

func NewSecretService(db *gorm.DB, v *vault.Vault) *SecretService {
	return &SecretService{
		db:    db,
		vault: v,
	}
}

// Store encrypts and saves a provider's API key, replacing any existing
// credential for that provider.
func (s *SecretService) Store(ctx context.Context, provider, apiKey string) (*ProviderCredential, error) {
	sealed, err := s.vault.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	credential := &ProviderCredential{
		ID:        uuid.NewString(),
		Provider:  provider,
		APIKey:    sealed.Ciphertext,
		APIKeyIV:  sealed.IV,
		APIKeyTag: sealed.Tag,
		IsActive:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider = ?", provider).Delete(&ProviderCredential{}).Error; err != nil {
			return fmt.Errorf("failed to remove old credential: %v", err)
		}
		if err := tx.Create(credential).Error; err != nil {
			return fmt.Errorf("failed to store credential: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// Get returns the decrypted API key for a provider. A credential whose tag
// does not verify is unusable: the error is surfaced so the caller can
// prompt for re-entry, never a best-effort value.
func (s *SecretService) Get(ctx context.Context, provider string) (string, error) {
	var credential ProviderCredential
	result := s.db.WithContext(ctx).Where("provider = ?", provider).First(&credential)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("provider %q: %w", provider, ErrNoCredential)
		}
		return "", fmt.Errorf("failed to load credential: %v", result.Error)
	}

	secret := vault.EncryptedSecret{
		Ciphertext: credential.APIKey,
		IV:         credential.APIKeyIV,
		Tag:        credential.APIKeyTag,
	}
	if !vault.IsEncrypted(secret) {
		// Legacy row stored in the clear.
		return credential.APIKey, nil
	}

	plaintext, err := s.vault.Decrypt(secret)
	if err != nil {
		return "", fmt.Errorf("credential for provider %q is unusable: %w", provider, err)
	}
	return plaintext, nil
}
