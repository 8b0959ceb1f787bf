package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/photo-compressor/adapters/storage"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, meta map[string]string) error {
	args := m.Called(ctx, bucket, key, contentType, body, meta)
	return args.Error(0)
}

func (m *mockS3Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

func (m *mockS3Client) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func TestNewS3_RequiresClient(t *testing.T) {
	_, err := storage.NewS3(nil, "photos")
	assert.Error(t, err)
}

func TestS3_PutSplitsContentType(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	store, err := storage.NewS3(client, "photos")
	require.NoError(t, err)

	body := strings.NewReader("jpeg")
	client.On("PutObject", ctx, "photos", "sub/00-a.jpg", "image/jpeg", body,
		map[string]string{"status": "compressed"}).Return(nil).Once()

	err = store.Put(ctx, core.StorageKey{Path: "sub/00-a.jpg"}, body,
		map[string]string{storage.MetaContentType: "image/jpeg", "status": "compressed"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestS3_PutFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	store, _ := storage.NewS3(client, "photos")

	client.On("PutObject", ctx, "archive", "k", "", mock.Anything, mock.Anything).
		Return(errors.New("connection reset")).Once()

	err := store.Put(ctx, core.StorageKey{Bucket: "archive", Path: "k"}, strings.NewReader("x"), nil)
	assert.True(t, apperrors.IsRetryable(err))
	client.AssertExpectations(t)
}

func TestS3_Get(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	store, _ := storage.NewS3(client, "photos")

	client.On("GetObject", ctx, "photos", "found").Return(io.NopCloser(strings.NewReader("data")), nil)
	client.On("GetObject", ctx, "photos", "missing").Return(nil, fmt.Errorf("%w: missing", apperrors.ErrObjectNotFound))
	client.On("GetObject", ctx, "photos", "flaky").Return(nil, errors.New("timeout"))

	rc, err := store.Get(ctx, core.StorageKey{Path: "found"})
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(b))

	_, err = store.Get(ctx, core.StorageKey{Path: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrObjectNotFound)
	assert.False(t, apperrors.IsRetryable(err))

	_, err = store.Get(ctx, core.StorageKey{Path: "flaky"})
	assert.True(t, apperrors.IsRetryable(err))
}

func TestS3_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	store, _ := storage.NewS3(client, "photos")

	client.On("HeadObject", ctx, "photos", "a").Return(true, nil)
	client.On("HeadObject", ctx, "photos", "b").Return(false, nil)
	client.On("DeleteObject", ctx, "photos", "a").Return(nil)

	ok, err := store.Exists(ctx, core.StorageKey{Path: "a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, core.StorageKey{Path: "b"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Delete(ctx, core.StorageKey{Path: "a"}))
	client.AssertExpectations(t)
}
