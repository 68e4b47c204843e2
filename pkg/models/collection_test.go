package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

func TestCollectionFromDocument(t *testing.T) {
	t.Parallel()

	doc := Document{
		Coll: Module{Name: constants.SystemCollection},
		Data: map[string]any{
			"name": "Post",
			"fields": map[string]any{
				"title":  map[string]any{"signature": "String"},
				"author": map[string]any{"signature": "Ref<User>?"},
			},
			"computed_fields": map[string]any{
				"age": map[string]any{"body": "(doc) => 1", "signature": "Number"},
			},
			"history_days": int64(0),
			"ttl_days":     int64(7),
		},
	}

	c, err := CollectionFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "Post", c.Name)
	assert.Equal(t, []string{"author", "title"}, c.FieldNames())
	sig, ok := c.Signature("author")
	require.True(t, ok)
	assert.Equal(t, KindRef, sig.Kind)
	require.NotNil(t, c.TTLDays)
	assert.Equal(t, int64(7), *c.TTLDays)
	assert.Equal(t, map[string]any{"age": int64(0)}, c.ComputedDefaults())

	back, err := CollectionFromDocument(c.ToDocument())
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestCollectionFromDocument_malformed(t *testing.T) {
	t.Parallel()

	_, err := CollectionFromDocument(Document{Data: map[string]any{}})
	assert.True(t, errors.Is(err, constants.ErrMalformed))

	_, err = CollectionFromDocument(Document{Data: map[string]any{
		"name":   "Post",
		"fields": map[string]any{"title": "String"},
	}})
	assert.True(t, errors.Is(err, constants.ErrMalformed))
}

func TestCollection_namedRoundTrip(t *testing.T) {
	t.Parallel()

	named := Collection{Name: "Tag", Named: true, Fields: map[string]Field{}, ComputedFields: map[string]ComputedField{}}
	doc := named.ToDocument()
	assert.Equal(t, true, doc.Data["named"])

	back, err := CollectionFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, named, back)

	plain, err := CollectionFromDocument(Collection{Name: "Post"}.ToDocument())
	require.NoError(t, err)
	assert.False(t, plain.Named)
	assert.NotContains(t, Collection{Name: "Post"}.ToDocument().Data, "named")
}

func TestCollection_systemCollectionsAreNamed(t *testing.T) {
	t.Parallel()

	for _, name := range []string{constants.SystemCollection, "Function", "Role", "AccessProvider"} {
		c, err := CollectionFromDocument(Document{Data: map[string]any{"name": name}})
		require.NoError(t, err)
		assert.True(t, c.Named, name)
		assert.True(t, IsSystemCollection(name))
	}
	assert.False(t, IsSystemCollection("Post"))
}
