package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/habedi/gigsync/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB sets up an in-memory SQLite database for testing purposes.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func TestCredentialRepository_GetReturnsNilWhenEmpty(t *testing.T) {
	repo := db.NewCredentialRepository(setupTestDB(t))

	cred, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialRepository_UpsertInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	repo := db.NewCredentialRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, &db.Credential{
		AccessToken:   "T1",
		SessionCookie: "r1",
		UserID:        7,
		Email:         "band@example.com",
		NickName:      "drummer",
		Role:          "NORMAL",
	}))
	require.NoError(t, repo.Upsert(ctx, &db.Credential{
		AccessToken:   "T2",
		SessionCookie: "r2",
		UserID:        7,
		Email:         "band@example.com",
		NickName:      "drummer",
		Role:          "ADMIN",
	}))

	cred, err := repo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "T2", cred.AccessToken)
	assert.Equal(t, "r2", cred.SessionCookie)
	assert.Equal(t, "ADMIN", cred.Role)
	assert.False(t, cred.UpdatedAt.IsZero())
}

func TestCredentialRepository_UpsertDoesNotMutateInput(t *testing.T) {
	repo := db.NewCredentialRepository(setupTestDB(t))
	in := &db.Credential{AccessToken: "T1"}

	require.NoError(t, repo.Upsert(context.Background(), in))
	assert.Zero(t, in.ID)
	assert.True(t, in.UpdatedAt.IsZero())
}

func TestCredentialRepository_Clear(t *testing.T) {
	ctx := context.Background()
	repo := db.NewCredentialRepository(setupTestDB(t))
	require.NoError(t, repo.Upsert(ctx, &db.Credential{AccessToken: "T1"}))

	require.NoError(t, repo.Clear(ctx))

	cred, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	// Clearing an empty store is not an error.
	require.NoError(t, repo.Clear(ctx))
}

func TestCredentialRepository_Uninitialized(t *testing.T) {
	repo := db.NewCredentialRepository(nil)
	ctx := context.Background()

	_, err := repo.Get(ctx)
	assert.Error(t, err)
	assert.Error(t, repo.Upsert(ctx, &db.Credential{}))
	assert.Error(t, repo.Clear(ctx))
}

func TestCredential_HasToken(t *testing.T) {
	var nilCred *db.Credential
	assert.False(t, nilCred.HasToken())
	assert.False(t, (&db.Credential{}).HasToken())
	assert.True(t, (&db.Credential{AccessToken: "x"}).HasToken())
}

func TestInitDBAndCloseDB(t *testing.T) {
	oldPath := db.Path
	t.Cleanup(func() { db.Path = oldPath })
	db.Path = filepath.Join(t.TempDir(), "nested", "credentials.db")

	require.NoError(t, db.InitDB())
	repo := db.NewCredentialRepository(db.Db)
	require.NoError(t, repo.Upsert(context.Background(), &db.Credential{AccessToken: "T1"}))
	require.NoError(t, db.CloseDB())
}
