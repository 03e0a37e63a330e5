package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clinicq/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.GetOrCreateAccount(ctx, "9999999999")
	require.NoError(t, err)

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	var snapshot string
	t.Run("Snapshot", func(t *testing.T) {
		snapshot, err = s.Snapshot(ctx)
		require.NoError(t, err)
		assert.FileExists(t, snapshot)

		restored, err := NewDB(snapshot, nil)
		require.NoError(t, err)
		defer restored.Close()

		account, err := restored.GetOrCreateAccount(ctx, "9999999999")
		require.NoError(t, err)
		assert.Equal(t, int64(1), account.ID)
	})

	t.Run("Prune", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, snapshotPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		removed := s.Prune()
		assert.Equal(t, []string{snapshotPrefix + "old.db"}, removed)
		assert.FileExists(t, snapshot)
		assert.FileExists(t, foreign)
	})
}

func TestBackupService_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}

func TestBackupService_StopsOnCancel(t *testing.T) {
	db := setupTestDB(t)
	logger := zerolog.Nop()
	s := NewBackupService(db, config.BackupConfig{
		Enabled:     true,
		Interval:    time.Hour,
		StoragePath: filepath.Join(t.TempDir(), "b"),
	}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("backup service did not stop")
	}
}
