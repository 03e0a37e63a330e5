package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "k", []byte(`{"a":1}`)))

		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "k"))
		got, _ := repo.Get(ctx, "k")
		assert.Nil(t, got)
	})

	t.Run("GetDel", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "once", []byte("1")))

		got, err := repo.GetDel(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		got, err = repo.GetDel(ctx, "once")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Incr", func(t *testing.T) {
		n, err := repo.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		require.NoError(t, repo.Set(ctx, "text", []byte("abc")))
		_, err = repo.Incr(ctx, "text")
		assert.Error(t, err)
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Now()
		repo := NewMemoryStateRepository(time.Minute)
		repo.now = func() time.Time { return now }

		require.NoError(t, repo.Set(ctx, "k", []byte("v")))
		now = now.Add(2 * time.Minute)

		got, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
