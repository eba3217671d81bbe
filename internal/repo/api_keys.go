package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"devhub/internal/dbctx"
	"devhub/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	DB *gorm.DB
}

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(dbc dbctx.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.ActorID == "" {
		return errors.New("actor_id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.DB).Create(&key).Error
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := r.DB.WithContext(ctx).Where("key_hash = ?", hash).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns API keys, optionally filtered by actor ID.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	t := r.DB.WithContext(ctx)
	if actorID != "" {
		t = t.Where("actor_id = ?", actorID)
	}
	keys := []domain.APIKey{}
	if err := t.Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAPIKey deletes an API key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	return r.DB.WithContext(ctx).Where("id = ?", id).Delete(&domain.APIKey{}).Error
}

// PermissionList splits the comma separated permissions stored on a key.
func PermissionList(key domain.APIKey) []string {
	var out []string
	for _, p := range strings.Split(key.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
