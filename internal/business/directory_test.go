package business

import (
	"context"
	"errors"
	"testing"

	"adpilot/internal/apperrors"
	"adpilot/internal/database"
	"adpilot/internal/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePages struct {
	pages []meta.Page
	err   error
	token string
}

func (f *fakePages) ListPages(_ context.Context, token string) ([]meta.Page, error) {
	f.token = token
	return f.pages, f.err
}

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

func TestConnectionMissingIsConfigurationError(t *testing.T) {
	d := NewDirectory(newTestDB(t), &fakePages{}, nil)
	_, err := d.Connection(context.Background(), "ghost@example.com")
	assert.True(t, apperrors.Is(err, apperrors.KindConfiguration))
}

func TestLinkThenSyncCachesEligibleAssets(t *testing.T) {
	ctx := context.Background()
	pages := &fakePages{pages: []meta.Page{
		{ID: "p1", Name: "Bakery", Instagram: &meta.InstagramAccount{ID: "ig1", Username: "bakery"}},
		{ID: "p2", Name: "Old Page"},
	}}
	d := NewDirectory(newTestDB(t), pages, nil)

	conn, err := d.Link(ctx, LinkRequest{Identity: "ops@example.com", AccessToken: "tok", AdAccountID: "act_42", OperatorPhone: "+15550001"})
	require.NoError(t, err)
	assert.Equal(t, "42", conn.AdAccountID)
	assert.Equal(t, "act_42", conn.BusinessKey)
	assert.Equal(t, "15550001", conn.OperatorPhone)

	conn, err = d.Sync(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok", pages.token)
	require.Len(t, conn.Assets, 2)
	eligible := Eligible(conn)
	require.Len(t, eligible, 1)
	assert.Equal(t, "ig1", eligible[0].InstagramID)

	// a second sync drops pages no longer returned
	pages.pages = pages.pages[:1]
	conn, err = d.Sync(ctx, "ops@example.com")
	require.NoError(t, err)
	require.Len(t, conn.Assets, 1)
	assert.Equal(t, "p1", conn.PageID)
	assert.Equal(t, "ig1", conn.InstagramActorID)

	byPhone, err := d.ByOperatorPhone(ctx, "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", byPhone.Identity)
}

func TestLinkKeepsStoredValues(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(newTestDB(t), &fakePages{}, nil)
	_, err := d.Link(ctx, LinkRequest{Identity: "a", AccessToken: "tok", PixelID: "px"})
	require.NoError(t, err)

	conn, err := d.Link(ctx, LinkRequest{Identity: "a", AccessToken: "tok2"})
	require.NoError(t, err)
	assert.Equal(t, "px", conn.PixelID)
	assert.Equal(t, "tok2", conn.AccessToken)
	assert.Equal(t, "default", conn.BusinessKey)
}

func TestSyncRemoteFailure(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(newTestDB(t), &fakePages{err: errors.New("token expired")}, nil)
	_, err := d.Link(ctx, LinkRequest{Identity: "a", AccessToken: "tok"})
	require.NoError(t, err)

	_, err = d.Sync(ctx, "a")
	assert.True(t, apperrors.Is(err, apperrors.KindRemoteFatal))
}
