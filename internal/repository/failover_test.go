package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockRepo) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockRepo) GetDel(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockRepo) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	now := time.Now()
	repo.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Get", ctx, "a").Return([]byte("1"), nil).Once()

		got, err := repo.Get(ctx, "a")
		assert.NoError(t, err)
		assert.Equal(t, []byte("1"), got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Get", ctx, "b").Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, "b").Return([]byte("2"), nil).Once()

		got, err := repo.Get(ctx, "b")
		assert.NoError(t, err)
		assert.Equal(t, []byte("2"), got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWithinInterval", func(t *testing.T) {
		fallback.On("Set", ctx, "c", []byte("3")).Return(nil).Once()

		require.NoError(t, repo.Set(ctx, "c", []byte("3")))
		primary.AssertNotCalled(t, "Set", ctx, "c", []byte("3"))
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Delete", ctx, "d").Return(errors.New("still fail")).Once()
		fallback.On("Delete", ctx, "d").Return(nil).Once()

		assert.NoError(t, repo.Delete(ctx, "d"))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Incr", ctx, "e").Return(int64(7), nil).Once()

		n, err := repo.Incr(ctx, "e")
		assert.NoError(t, err)
		assert.Equal(t, int64(7), n)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("GetDelFailover", func(t *testing.T) {
		primary.On("GetDel", ctx, "f").Return(nil, errors.New("fail")).Once()
		fallback.On("GetDel", ctx, "f").Return(nil, nil).Once()

		got, err := repo.GetDel(ctx, "f")
		assert.NoError(t, err)
		assert.Nil(t, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("IncrAlreadyDown", func(t *testing.T) {
		fallback.On("Incr", ctx, "g").Return(int64(1), nil).Once()

		n, err := repo.Incr(ctx, "g")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)
		fallback.AssertExpectations(t)
	})
}
