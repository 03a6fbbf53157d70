package state

import (
	"context"
	"encoding/json"
	"testing"

	"adpilot/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestGormStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	doc, err := s.Get(ctx, "ops", "biz")
	require.NoError(t, err)
	assert.Nil(t, doc)

	require.NoError(t, s.Put(ctx, "ops", "biz", json.RawMessage(`{"stage":"PREVIEW"}`)))
	require.NoError(t, s.Put(ctx, "ops", "biz", json.RawMessage(`{"stage":"COMPLETED"}`)))
	require.NoError(t, s.Put(ctx, "ops", "other", json.RawMessage(`{"stage":"PREVIEW"}`)))

	doc, err = s.Get(ctx, "ops", "biz")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"COMPLETED"}`, string(doc))

	keys, err := s.Keys(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, []string{"biz", "other"}, keys)

	require.NoError(t, s.Clear(ctx, "ops", "biz"))
	doc, err = s.Get(ctx, "ops", "biz")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMemoryStoreKeysAreScopedToIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "a", "z", json.RawMessage(`{}`)))
	require.NoError(t, s.Put(ctx, "a", "y", json.RawMessage(`{}`)))
	require.NoError(t, s.Put(ctx, "ab", "x", json.RawMessage(`{}`)))

	keys, err := s.Keys(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, keys)
}
