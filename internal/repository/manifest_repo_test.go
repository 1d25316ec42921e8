package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/carousel/internal/config"
	"github.com/timmy/carousel/internal/domain"
)

func newTestRepo(t *testing.T) *ManifestRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "manifest.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewManifestRepository(db)
}

func TestManifestRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	e := domain.CacheEntry{
		Key: "abc", Kind: domain.EntryKindFetched, Hint: "news", Path: "assets/ab/abc.png",
		SourceURL: "https://x/a.png", DownloadedAt: at, Size: 10, Format: "png",
		Width: 300, Height: 200, Status: domain.EntryStatusValid,
	}
	require.NoError(t, repo.Put(ctx, e))

	e.Width = 640
	e.Path = "assets/ab/abc.jpg"
	require.NoError(t, repo.Put(ctx, e))
	require.NoError(t, repo.Put(ctx, domain.CacheEntry{
		Key: "drake", Kind: domain.EntryKindTemplate, Path: "templates/drake.png", DownloadedAt: at, Status: domain.EntryStatusValid,
	}))

	entries, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0].Key)
	assert.Equal(t, 640, entries[0].Width)
	assert.Equal(t, "assets/ab/abc.jpg", entries[0].Path)

	counts, err := repo.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.EntryKindFetched])
	assert.Equal(t, int64(1), counts[domain.EntryKindTemplate])
}

func TestManifestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Put(ctx, domain.CacheEntry{Key: k, Kind: domain.EntryKindFetched, Path: k, Status: domain.EntryStatusValid}))
	}

	require.NoError(t, repo.Delete(ctx))
	require.NoError(t, repo.Delete(ctx, "a", "c", "zzz"))

	entries, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Key)
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	_, err := InitDB(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
