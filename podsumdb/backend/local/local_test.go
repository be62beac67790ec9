package local

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podsum/podsum/podsumdb/backend"
)

func TestReadWrite(t *testing.T) {
	r, w, err := New(&Config{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	keypath := backend.KeyPath{"summaries", "show", "abc"}
	payload := []byte(`{"period":"2024-03-01"}`)

	info, err := w.Write(ctx, "object.json", keypath, bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), info.Size)
	assert.NotEmpty(t, info.ETag)

	rc, readInfo, err := r.Read(ctx, "object.json", keypath)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, info.ETag, readInfo.ETag)
}

func TestETagChangesOnRewrite(t *testing.T) {
	r, w, err := New(&Config{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	keypath := backend.KeyPath{"summaries"}

	_, err = w.Write(ctx, "o", keypath, bytes.NewReader([]byte("one")), 3)
	require.NoError(t, err)
	rc, first, err := r.Read(ctx, "o", keypath)
	require.NoError(t, err)
	rc.Close()

	// mtime resolution can be coarse
	time.Sleep(10 * time.Millisecond)

	_, err = w.Write(ctx, "o", keypath, bytes.NewReader([]byte("twoo")), 4)
	require.NoError(t, err)
	rc, second, err := r.Read(ctx, "o", keypath)
	require.NoError(t, err)
	rc.Close()

	assert.NotEqual(t, first.ETag, second.ETag)
}

func TestSizeMismatch(t *testing.T) {
	r, w, err := New(&Config{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	keypath := backend.KeyPath{"audiences"}

	_, err = w.Write(ctx, "short", keypath, bytes.NewReader([]byte("abc")), 10)
	assert.ErrorIs(t, err, backend.ErrSizeMismatch)

	// a failed write leaves nothing behind
	_, _, err = r.Read(ctx, "short", keypath)
	assert.ErrorIs(t, err, backend.ErrDoesNotExist)

	// unknown length is accepted
	_, err = w.Write(ctx, "unsized", keypath, bytes.NewReader([]byte("abc")), -1)
	assert.NoError(t, err)
}

func TestDoesNotExist(t *testing.T) {
	r, _, err := New(&Config{Path: t.TempDir()})
	require.NoError(t, err)

	_, _, err = r.Read(context.Background(), "nope", backend.KeyPath{"summaries"})
	assert.ErrorIs(t, err, backend.ErrDoesNotExist)
}

func TestList(t *testing.T) {
	r, w, err := New(&Config{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()

	// missing prefix lists as empty
	names, err := r.List(ctx, backend.KeyPath{"summaries", "show", "abc"})
	require.NoError(t, err)
	assert.Empty(t, names)

	keypath := backend.KeyPath{"summaries", "show", "abc"}
	for _, name := range []string{"b.json", "a.json"} {
		_, err = w.Write(ctx, name, keypath, bytes.NewReader([]byte("{}")), 2)
		require.NoError(t, err)
	}
	// objects under other prefixes stay invisible
	_, err = w.Write(ctx, "c.json", backend.KeyPath{"summaries", "show", "other"}, bytes.NewReader([]byte("{}")), 2)
	require.NoError(t, err)

	names, err = r.List(ctx, keypath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.json", "b.json"}, names)
}
