package repository

import (
	"context"

	"github.com/timmy/carousel/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManifestRepository stores cache manifest entries in SQL.
// It satisfies cache.Manifest.
type ManifestRepository struct {
	db *gorm.DB
}

// NewManifestRepository creates a new ManifestRepository.
func NewManifestRepository(db *gorm.DB) *ManifestRepository {
	return &ManifestRepository{db: db}
}

// Load returns every recorded entry ordered by key.
func (r *ManifestRepository) Load(ctx context.Context) ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Put creates or replaces the entry with the same key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: committed entry to record.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ManifestRepository) Put(ctx context.Context, entry domain.CacheEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&entry).Error
}

// Delete removes entries by key.
func (r *ManifestRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("key IN ?", keys).Delete(&domain.CacheEntry{}).Error
}

// CountByKind returns the number of entries per kind.
func (r *ManifestRepository) CountByKind(ctx context.Context) (map[domain.EntryKind]int64, error) {
	var rows []struct {
		Kind  domain.EntryKind
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&domain.CacheEntry{}).
		Select("kind, COUNT(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.EntryKind]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Count
	}
	return out, nil
}
