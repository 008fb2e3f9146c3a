package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"database/sql"
	"encoding/json"
	"fmt"

	"pricesync-service/internal/models"
)

// GetStoreConfig retrieves one store configuration, nil when absent.
func (s *Store) GetStoreConfig(ctx context.Context, id string) (*models.StoreConfig, error) {
	var cfg models.StoreConfig
	err := s.db.GetContext(ctx, &cfg, "SELECT * FROM store_configs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetAllStoreConfigs retrieves every store configuration.
func (s *Store) GetAllStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	var configs []models.StoreConfig
	err := s.db.SelectContext(ctx, &configs, "SELECT * FROM store_configs ORDER BY id")
	return configs, err
}

// GetEnabledStoreConfigs retrieves the configurations eligible for scheduling.
func (s *Store) GetEnabledStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	var configs []models.StoreConfig
	err := s.db.SelectContext(ctx, &configs, "SELECT * FROM store_configs WHERE enabled ORDER BY id")
	return configs, err
}

// Credentials decrypts the store's credential blob into the tagged
// per-platform credential set. The blob layout is nonce || AES-256-GCM
// ciphertext over the credentials JSON.
func (s *Store) Credentials(cfg *models.StoreConfig) (models.Credentials, error) {
	if len(cfg.Credentials) == 0 {
		return models.Credentials{}, fmt.Errorf("store %s has no credentials", cfg.ID)
	}
	if len(s.credentialsKey) == 0 {
		return models.Credentials{}, fmt.Errorf("credentials key not configured")
	}

	block, err := aes.NewCipher(s.credentialsKey)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to init gcm: %w", err)
	}

	if len(cfg.Credentials) < gcm.NonceSize() {
		return models.Credentials{}, fmt.Errorf("store %s credential blob too short", cfg.ID)
	}
	nonce := cfg.Credentials[:gcm.NonceSize()]
	ciphertext := cfg.Credentials[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to decrypt credentials for store %s: %w", cfg.ID, err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("failed to parse credentials for store %s: %w", cfg.ID, err)
	}
	return creds, nil
}
