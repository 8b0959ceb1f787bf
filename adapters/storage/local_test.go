package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/photo-compressor/adapters/storage"
	"github.com/Skryldev/photo-compressor/config"
	"github.com/Skryldev/photo-compressor/core"
	apperrors "github.com/Skryldev/photo-compressor/errors"
)

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := storage.NewLocal(root, 0)
	require.NoError(t, err)

	key := core.StorageKey{Path: "sub-1/00-IMG_1.jpg"}
	meta := map[string]string{storage.MetaContentType: "image/jpeg", "status": "compressed"}
	require.NoError(t, store.Put(ctx, key, strings.NewReader("jpeg bytes"), meta))

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(body))

	gotMeta, err := store.Meta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)

	_, err = os.Stat(filepath.Join(root, "sub-1", "00-IMG_1.jpg"))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(root, "sub-1", "00-IMG_1.jpg.meta.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocal_MissingObject(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = store.Get(ctx, core.StorageKey{Path: "nope.jpg"})
	assert.ErrorIs(t, err, apperrors.ErrObjectNotFound)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStorage))

	meta, err := store.Meta(ctx, core.StorageKey{Path: "nope.jpg"})
	assert.NoError(t, err)
	assert.Nil(t, meta)

	assert.NoError(t, store.Delete(ctx, core.StorageKey{Path: "nope.jpg"}))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	for _, key := range []core.StorageKey{
		{Path: "../outside.jpg"},
		{Path: "a/../../outside.jpg"},
		{Bucket: "..", Path: "x.jpg"},
		{Path: ""},
	} {
		err := store.Put(ctx, key, strings.NewReader("x"), nil)
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStorage), "key %+v: %v", key, err)
	}
}

func TestLocal_BucketIsSubdirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := storage.NewLocal(root, 0)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, core.StorageKey{Bucket: "tenant-a", Path: "m.json"}, strings.NewReader("{}"), nil))
	_, err = os.Stat(filepath.Join(root, "tenant-a", "m.json"))
	assert.NoError(t, err)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	store, err := storage.FromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.Storage = config.StorageLocal
	cfg.Local.RootDir = filepath.Join(t.TempDir(), "uploads")
	store, err = storage.FromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.Local{}, store)

	cfg.Storage = "ftp"
	_, err = storage.FromConfig(ctx, cfg)
	assert.Error(t, err)
}
