package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GolovachevS/cr-dashboard/internal/config"
	"github.com/GolovachevS/cr-dashboard/internal/service"
)

func TestOpenRepositorySQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dashboard.db")

	repo, err := OpenRepository(ctx, config.Database{Driver: config.DriverSQLite, URL: path})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	svc := service.New(repo, nil)
	user, err := svc.CreateUser(ctx, service.CreateUserInput{Name: "Alice Johnson", Email: "alice@company.com"})
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)
}

func TestOpenRepositoryReopensExistingSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dashboard.db")
	cfg := config.Database{Driver: config.DriverSQLite, URL: path}

	first, err := OpenRepository(ctx, cfg)
	require.NoError(t, err)
	_, err = service.New(first, nil).CreateUser(ctx, service.CreateUserInput{Name: "Bob Smith", Email: "bob@company.com"})
	require.NoError(t, err)
	first.Close()

	second, err := OpenRepository(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	users, err := second.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpenRepositoryUnknownDriver(t *testing.T) {
	_, err := OpenRepository(context.Background(), config.Database{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
