package backend

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadJSON(t *testing.T) {
	store := map[string][]byte{}
	w := NewWriter(&MockRawWriter{Objects: store})
	r := NewReader(&MockRawReader{Objects: store})

	ctx := context.Background()
	keypath := KeyPath{"summaries", "show", "abc"}

	type payload struct {
		Period string           `json:"period"`
		Counts map[string]int64 `json:"counts"`
	}
	in := payload{Period: "2024-03", Counts: map[string]int64{"b": 2, "a": 1}}

	_, err := w.WriteJSON(ctx, "o.json", keypath, in)
	require.NoError(t, err)

	// map keys serialize in ascending order
	raw, _, err := r.Read(ctx, "o.json", keypath)
	require.NoError(t, err)
	assert.Less(t, bytes.Index(raw, []byte(`"a"`)), bytes.Index(raw, []byte(`"b"`)))

	var out payload
	_, err = r.ReadJSON(ctx, "o.json", keypath, &out)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStreamWriterSizeContract(t *testing.T) {
	w := NewWriter(&MockRawWriter{})

	ctx := context.Background()
	_, err := w.StreamWriter(ctx, "o", KeyPath{"audiences"}, bytes.NewReader([]byte("abc")), 3)
	assert.NoError(t, err)

	_, err = w.StreamWriter(ctx, "o", KeyPath{"audiences"}, bytes.NewReader([]byte("abc")), 4)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestStreamReaderDoesNotExist(t *testing.T) {
	r := NewReader(&MockRawReader{})

	_, _, err := r.StreamReader(context.Background(), "nope", KeyPath{"summaries"})
	assert.ErrorIs(t, err, ErrDoesNotExist)
}

func TestMockList(t *testing.T) {
	show := uuid.New()
	store := map[string][]byte{
		ObjectFileName(SummaryKeyPath(show), "a.json"):       []byte("{}"),
		ObjectFileName(SummaryKeyPath(show), "b.json"):       []byte("{}"),
		ObjectFileName(SummaryKeyPath(uuid.New()), "c.json"): []byte("{}"),
	}
	r := NewReader(&MockRawReader{Objects: store})

	names, err := r.List(context.Background(), SummaryKeyPath(show))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)
}

func TestObjectFileName(t *testing.T) {
	assert.Equal(t, "summaries/show/abc/o.json", ObjectFileName(KeyPath{"summaries", "show", "abc"}, "o.json"))
	assert.Equal(t, "summaries", ObjectFileName(KeyPath{"summaries"}, ""))
}

func TestKeyPathWithPrefix(t *testing.T) {
	assert.Equal(t, KeyPath{"a", "b"}, KeyPathWithPrefix(KeyPath{"a", "b"}, ""))
	assert.Equal(t, KeyPath{"p", "a", "b"}, KeyPathWithPrefix(KeyPath{"a", "b"}, "p"))
}

func TestRetryableError(t *testing.T) {
	assert.Nil(t, RetryableError(nil))

	base := errors.New("503")
	re := RetryableError(base)
	assert.True(t, IsRetryable(re))
	assert.True(t, IsRetryable(errors.Wrap(re, "outer")))
	assert.ErrorIs(t, re, base)

	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(io.EOF))
}
