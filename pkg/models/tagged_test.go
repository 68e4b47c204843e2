package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/constants"
)

func sampleDocuments() []Document {
	ts := NewTimeStub(time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC))
	ttl := NewTimeStub(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return []Document{
		{
			ID:   "399",
			Coll: Module{Name: "Post"},
			TS:   ts,
			TTL:  &ttl,
			Data: map[string]any{
				"title":    "hello",
				"views":    int64(12),
				"big":      int64(1) << 40,
				"score":    4.5,
				"draft":    false,
				"deleted":  nil,
				"birthday": NewDateStub(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)),
				"author":   DocumentReference{ID: "7", Coll: Module{Name: "User"}},
				"tags": []any{
					DocumentReference{ID: "1", Coll: Module{Name: "Tag"}},
					DocumentReference{ID: "2", Coll: Module{Name: "Tag"}},
				},
				"meta": map[string]any{"@weird": "key", "n": int64(1)},
			},
		},
		{
			Coll: Module{Name: constants.SystemCollection},
			TS:   ts,
			Data: map[string]any{"name": "Post", "fields": map[string]any{}},
		},
	}
}

func TestTaggedCodecs_roundtrip(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name  string
		codec codec.Codec
	}{
		{name: "json", codec: JSONCodec{}},
		{name: "cbor", codec: CBORCodec{}},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			docs := sampleDocuments()
			data, err := EncodeDocuments(tc.codec, docs)
			require.NoError(t, err)

			got, err := DecodeDocuments(tc.codec, data)
			require.NoError(t, err)
			assert.True(t, cmp.Equal(docs, got), cmp.Diff(docs, got))
		})
	}
}

func TestTag_scalars(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{TagInt: "5"}, Tag(5))
	assert.Equal(t, map[string]any{TagLong: "8589934592"}, Tag(int64(1)<<33))
	assert.Equal(t, map[string]any{TagDouble: "1.5"}, Tag(1.5))
	assert.Equal(t, map[string]any{TagMod: "User"}, Tag(Module{Name: "User"}))
	assert.Equal(t, map[string]any{TagDate: "2024-02-29"},
		Tag(NewDateStub(time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC))))
	assert.Equal(t, []any{"a", "b"}, Tag([]string{"a", "b"}))
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("null document", func(t *testing.T) {
		v, err := DecodeJSON([]byte(`{"@ref":{"id":"9","coll":{"@mod":"User"},"exists":false,"cause":"not found"}}`))
		require.NoError(t, err)
		assert.Equal(t, NullDocument{
			Ref:   DocumentReference{ID: "9", Coll: Module{Name: "User"}},
			Cause: "not found",
		}, v)
	})

	t.Run("set", func(t *testing.T) {
		v, err := DecodeJSON([]byte(`{"@set":{"data":[{"@doc":{"id":"1","coll":{"@mod":"User"},"ts":{"@time":"2024-01-01T00:00:00Z"},"age":{"@int":"3"}}}],"after":"abc"}}`))
		require.NoError(t, err)
		page, ok := v.(Page)
		require.True(t, ok)
		assert.Equal(t, "abc", page.After)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "1", page.Data[0].ID)
		assert.Equal(t, int64(3), page.Data[0].Data["age"])
	})

	t.Run("plain numbers", func(t *testing.T) {
		v, err := DecodeJSON([]byte(`{"a":1,"b":2.5}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": int64(1), "b": 2.5}, v)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{
			`{"@int":"x"}`,
			`{"@time":"yesterday"}`,
			`{"@doc":{"id":"1"}}`,
			`{"@ref":{"id":"1"}}`,
			`{`,
		} {
			_, err := DecodeJSON([]byte(in))
			assert.True(t, errors.Is(err, constants.ErrMalformed), in)
		}
	})
}
