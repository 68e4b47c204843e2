package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/models"
)

type store interface {
	Set(ctx context.Context, key string, docs []models.Document) error
	Get(ctx context.Context, key string) ([]models.Document, bool, error)
	Remove(ctx context.Context, key string) error
}

func sampleDocs() []models.Document {
	ttl := models.Now()
	return []models.Document{
		{
			ID:   "1",
			Coll: models.Module{Name: "Product"},
			TS:   models.Now(),
			Data: map[string]any{
				"name":  "cup",
				"price": int64(3),
				"owner": models.DocumentReference{ID: "9", Coll: models.Module{Name: "User"}},
			},
		},
		{
			ID:   "2",
			Coll: models.Module{Name: "Product"},
			TS:   models.Now(),
			TTL:  &ttl,
			Data: map[string]any{"name": "mug", "tags": []any{"a", "b"}},
		},
	}
}

func exerciseStore(t *testing.T, s store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "Product")
	require.NoError(t, err)
	assert.False(t, ok)

	docs := sampleDocs()
	require.NoError(t, s.Set(ctx, "Product", docs))

	got, ok, err := s.Get(ctx, "Product")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cmp.Equal(docs, got), cmp.Diff(docs, got))

	require.NoError(t, s.Set(ctx, "Product", docs[:1]))
	got, _, err = s.Get(ctx, "Product")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.Remove(ctx, "Product"))
	_, ok, err = s.Get(ctx, "Product")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, "Product"))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, 4, m.Writes("Product"))
}

func TestMemory_isolatesCallers(t *testing.T) {
	m := NewMemory()
	docs := sampleDocs()
	require.NoError(t, m.Set(context.Background(), "k", docs))
	docs[0].Data["name"] = "changed"

	got, _, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "cup", got[0].Data["name"])
}

func TestNop(t *testing.T) {
	var n Nop
	require.NoError(t, n.Set(context.Background(), "k", sampleDocs()))
	_, ok, err := n.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFile(t *testing.T) {
	for _, c := range []codec.Codec{models.JSONCodec{}, models.CBORCodec{}} {
		t.Run(c.Ext(), func(t *testing.T) {
			f, err := NewFile(t.TempDir(), WithCodec(c))
			require.NoError(t, err)
			exerciseStore(t, f)
		})
	}
}

func TestFile_escapesKeys(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "a/b", nil))

	_, err = os.Stat(filepath.Join(dir, "a%2Fb.json"))
	assert.NoError(t, err)
}

func TestFile_skipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	raw := `[{"@doc":{"id":"1","coll":{"@mod":"Product"},"ts":{"@time":"2024-01-01T00:00:00Z"},"name":"cup"}},{"@doc":{"id":"2"}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Product.json"), []byte(raw), 0o644))

	got, ok, err := f.Get(context.Background(), "Product")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestFile_rejectsNonArray(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Product.json"), []byte(`{"a":1}`), 0o644))

	_, _, err = f.Get(context.Background(), "Product")
	assert.Error(t, err)
}

func TestNewPostgres_emptyDSN(t *testing.T) {
	_, err := NewPostgres("  ")
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("FAUNA_CACHE_PG_DSN")
	if dsn == "" {
		t.Skip("FAUNA_CACHE_PG_DSN not set")
	}
	p, err := NewPostgres(dsn, WithTable("fauna_cache_test"))
	require.NoError(t, err)
	defer p.Close()
	exerciseStore(t, p)
}
