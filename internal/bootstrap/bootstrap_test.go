package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger-cms/internal/config"
	"ledger-cms/internal/content"
	"ledger-cms/internal/contenttype"
	"ledger-cms/internal/db"
	"ledger-cms/internal/domain"
	"ledger-cms/internal/node"
	"ledger-cms/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testEnv(t *testing.T) (*gorm.DB, *contenttype.Registry, content.Service) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// one connection so every query sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.MigrateModels(gdb))

	nodes := node.NewRegistry(gdb)
	types := contenttype.NewRegistry(gdb, nodes)
	svc := content.NewService(gdb, nodes, types, (*redis.Cache)(nil), nil)
	return gdb, types, svc
}

func TestEnsureContentTypesIsIdempotent(t *testing.T) {
	gdb, types, _ := testEnv(t)
	ctx := context.Background()

	require.NoError(t, EnsureContentTypes(ctx, types))

	before, err := types.LookupByName(ctx, content.TypeArticle)
	require.NoError(t, err)

	require.NoError(t, EnsureContentTypes(ctx, types))

	after, err := types.LookupByName(ctx, content.TypeArticle)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Hash, after.Hash)

	var count int64
	require.NoError(t, gdb.Model(&domain.ContentType{}).Count(&count).Error)
	assert.Equal(t, int64(len(Definitions())), count)
}

func TestEnsureRootUser(t *testing.T) {
	gdb, types, svc := testEnv(t)
	ctx := context.Background()
	require.NoError(t, EnsureContentTypes(ctx, types))

	credFile := filepath.Join(t.TempDir(), "root_credentials")
	config.AppConfig.RootUsername = "root"
	config.AppConfig.RootEmail = "root@example.com"
	config.AppConfig.RootCredentialsFile = credFile

	require.NoError(t, EnsureRootUser(ctx, gdb, svc))

	var user domain.User
	require.NoError(t, gdb.Where("username = ?", "root").First(&user).Error)
	assert.Equal(t, uint64(1), user.Version)
	assert.Equal(t, "admin", user.Roles)
	assert.NotEmpty(t, user.Hash)
	assert.NotZero(t, user.NodeID)

	raw, err := os.ReadFile(credFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "username: root")
	assert.Contains(t, string(raw), "password: ")

	// the file holds the plaintext, the row only the bcrypt hash
	password := passwordFromFile(t, string(raw))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)))
}

func TestEnsureRootUserSkipsWhenUsersExist(t *testing.T) {
	gdb, types, svc := testEnv(t)
	ctx := context.Background()
	require.NoError(t, EnsureContentTypes(ctx, types))

	existing := &domain.User{Username: "alice", Email: "alice@example.com"}
	existing.Version = 1
	require.NoError(t, gdb.Create(existing).Error)

	config.AppConfig.RootCredentialsFile = filepath.Join(t.TempDir(), "root_credentials")
	require.NoError(t, EnsureRootUser(ctx, gdb, svc))

	var count int64
	require.NoError(t, gdb.Model(&domain.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err := os.Stat(config.AppConfig.RootCredentialsFile)
	assert.True(t, os.IsNotExist(err))
}

func passwordFromFile(t *testing.T, raw string) string {
	t.Helper()
	for _, line := range strings.Split(raw, "\n") {
		if after, found := strings.CutPrefix(line, "password: "); found {
			return after
		}
	}
	t.Fatal("credentials file has no password line")
	return ""
}
