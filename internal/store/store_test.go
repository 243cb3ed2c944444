package store

import (
	"context"
	"testing"

	"ledger-cms/internal/db"
	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDb(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	// one connection so every query sees the same in-memory database
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.MigrateModels(gdb))
	return gdb
}

func articleStore(gdb *gorm.DB) *Store[domain.Article, domain.ArticleRevision] {
	return New(gdb, domain.NewArticleRevision)
}

func TestCreate_AssignsVersionAndDurableID(t *testing.T) {
	s := articleStore(testDb(t))
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Article{Title: "Hello", Body: "World"})
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, uint64(1), created.Version)
	assert.Empty(t, created.Hash)
	assert.Empty(t, created.Lock)
	assert.False(t, created.Timestamp.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	s := articleStore(testDb(t))

	_, err := s.Get(context.Background(), 9999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestArchiveRevision_PreservesFieldsVerbatim(t *testing.T) {
	s := articleStore(testDb(t))
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Article{Title: "Hello", Body: "World", Tags: "t"})
	require.NoError(t, err)
	created.Hash = "h1"
	created.ChainHash = "c1"
	created, err = s.Save(ctx, created)
	require.NoError(t, err)

	rev, err := s.ArchiveRevision(ctx, created)
	require.NoError(t, err)

	assert.Equal(t, created.ID, rev.ID)
	assert.Equal(t, created.Version, rev.Version)
	assert.Equal(t, "Hello", rev.Title)
	assert.Equal(t, "World", rev.Body)
	assert.Equal(t, "h1", rev.Hash)
	assert.Equal(t, "c1", rev.ChainHash)
}

func TestArchiveRevision_DuplicateFails(t *testing.T) {
	s := articleStore(testDb(t))
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Article{Title: "Hello"})
	require.NoError(t, err)

	_, err = s.ArchiveRevision(ctx, created)
	require.NoError(t, err)

	_, err = s.ArchiveRevision(ctx, created)
	require.Error(t, err)
	assert.ErrorIs(t, err, apiError.ErrDuplicateRevision)
}

func TestUpdate_IncrementsVersionAndClearsLock(t *testing.T) {
	s := articleStore(testDb(t))
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Article{Title: "Hello"})
	require.NoError(t, err)
	created.Lock = `{"user_id":1}`
	created, err = s.Save(ctx, created)
	require.NoError(t, err)

	updated, err := s.Update(ctx, created, func(a *domain.Article) {
		a.Title = "Hello Again"
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), updated.Version)
	assert.Equal(t, "Hello Again", updated.Title)
	assert.Empty(t, updated.Lock)

	reread, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello Again", reread.Title)
}

func TestStore_WorksInTransaction(t *testing.T) {
	gdb := testDb(t)
	s := articleStore(gdb)
	ctx := context.Background()

	created, err := s.Create(ctx, &domain.Article{Title: "Keep"})
	require.NoError(t, err)

	// A failing transaction must leave the pre-edit state intact
	err = gdb.Transaction(func(tx *gorm.DB) error {
		txs := s.WithTx(tx)
		if _, err := txs.ArchiveRevision(ctx, created); err != nil {
			return err
		}
		if _, err := txs.Update(ctx, created, func(a *domain.Article) { a.Title = "Lost" }); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	reread, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", reread.Title)
	assert.Equal(t, uint64(1), reread.Version)

	var revCount int64
	require.NoError(t, gdb.Model(&domain.ArticleRevision{}).Count(&revCount).Error)
	assert.Zero(t, revCount)
}
