package service

import (
	"path/filepath"
	"testing"
	"time"

	"clinicq/internal/database"
	"clinicq/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "clinicq.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupState() *repository.AppState {
	return repository.NewAppState(repository.NewMemoryStateRepository(time.Hour), "test")
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
