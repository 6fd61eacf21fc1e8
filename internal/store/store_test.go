package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ad-tracker/viral-video-detector/internal/models"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Upsert(ctx context.Context, video *models.Video, isViral bool) error {
	args := m.Called(ctx, video, isViral)
	return args.Error(0)
}

func (m *mockRepository) Get(ctx context.Context, videoID string) (*models.Video, error) {
	args := m.Called(ctx, videoID)
	if v := args.Get(0); v != nil {
		return v.(*models.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) ListViral(ctx context.Context, limit int) ([]*models.Video, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockRepository) ListAll(ctx context.Context, limit int) ([]*models.Video, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *mockRepository) Stats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.Stats), args.Error(1)
}

func (m *mockRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRepository) Close() error {
	return m.Called().Error(0)
}

func TestStore_SaveSwallowsErrors(t *testing.T) {
	repo := &mockRepository{}
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(repo, zap.New(core))

	v := &models.Video{VideoID: "x1"}
	repo.On("Upsert", mock.Anything, v, true).Return(errors.New("disk full")).Once()

	var saved bool
	require.NotPanics(t, func() { saved = s.Save(context.Background(), v, true) })

	assert.False(t, saved)
	entries := logs.FilterMessage("failed to save observation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "x1", entries[0].ContextMap()["video_id"])
	assert.Contains(t, entries[0].ContextMap()["error"], "disk full")
	repo.AssertExpectations(t)
}

func TestStore_SavePassesThrough(t *testing.T) {
	repo := &mockRepository{}
	s := New(repo, nil)

	v := &models.Video{VideoID: "x2"}
	repo.On("Upsert", mock.Anything, v, false).Return(nil).Once()

	assert.True(t, s.Save(context.Background(), v, false))
	repo.AssertExpectations(t)
}

func TestStore_SaveRejectsUnidentifiedVideo(t *testing.T) {
	repo := &mockRepository{}
	s := New(repo, nil)

	assert.False(t, s.Save(context.Background(), nil, true))
	assert.False(t, s.Save(context.Background(), &models.Video{}, true))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_ListLimitDefaults(t *testing.T) {
	repo := &mockRepository{}
	s := New(repo, nil)
	ctx := context.Background()

	repo.On("ListViral", ctx, DefaultListLimit).Return([]*models.Video{}, nil).Once()
	repo.On("ListAll", ctx, 5).Return([]*models.Video{}, nil).Once()

	_, err := s.ListViral(ctx, 0)
	require.NoError(t, err)
	_, err = s.ListAll(ctx, 5)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestStore_WithSQLite(t *testing.T) {
	repo := setupSQLite(t)
	s := New(repo, nil)
	ctx := context.Background()

	assert.True(t, s.Save(ctx, sampleVideo("r1", 800000), true))
	assert.True(t, s.Save(ctx, sampleVideo("r2", 50), false))

	viral, err := s.ListViral(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(viral))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCount)
	assert.Equal(t, int64(1), stats.ViralCount)
	assert.NoError(t, s.Ping(ctx))
}
