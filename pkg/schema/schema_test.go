package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/models"
)

func TestValidator(t *testing.T) {
	t.Parallel()

	def := models.Collection{
		Name: "Post",
		Fields: map[string]models.Field{
			"title":  {Signature: "String"},
			"views":  {Signature: "Int?"},
			"author": {Signature: "Ref<User> | Null"},
			"tags":   {Signature: "Array<Ref<Tag>>?"},
			"when":   {Signature: "Time?"},
			"meta":   {Signature: "{ lang: String, draft: Boolean? }?"},
		},
	}
	v, err := Compile(def)
	require.NoError(t, err)

	valid := models.Document{
		ID:   "1",
		Coll: models.Module{Name: "Post"},
		Data: map[string]any{
			"title":  "hello",
			"views":  int64(3),
			"author": models.DocumentReference{ID: "7", Coll: models.Module{Name: "User"}},
			"tags":   []any{models.DocumentReference{ID: "1", Coll: models.Module{Name: "Tag"}}},
			"when":   models.NewTimeStub(time.Now()),
			"meta":   map[string]any{"lang": "en"},
			"extra":  "allowed",
		},
	}
	assert.NoError(t, v.Validate(valid))

	nullable := valid.Clone()
	nullable.Data["author"] = nil
	nullable.Data["views"] = nil
	assert.NoError(t, v.Validate(nullable))

	invalid := []struct {
		name  string
		patch map[string]any
	}{
		{"wrong type", map[string]any{"title": int64(1)}},
		{"float for int", map[string]any{"views": 1.5}},
		{"ref to other collection", map[string]any{"author": models.DocumentReference{ID: "1", Coll: models.Module{Name: "Tag"}}}},
		{"nested required", map[string]any{"meta": map[string]any{"draft": true}}},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			doc := valid.Clone()
			doc.Data = models.Merge(doc.Data, tc.patch)
			err := v.Validate(doc)
			assert.True(t, errors.Is(err, constants.ErrMalformed), "%v", err)
		})
	}

	t.Run("missing required", func(t *testing.T) {
		doc := valid.Clone()
		delete(doc.Data, "title")
		assert.True(t, errors.Is(v.Validate(doc), constants.ErrMalformed))
	})

	t.Run("other collection", func(t *testing.T) {
		doc := valid.Clone()
		doc.Coll = models.Module{Name: "User"}
		assert.True(t, errors.Is(v.Validate(doc), constants.ErrMalformed))
	})
}

func TestInstance(t *testing.T) {
	t.Parallel()

	day := models.NewDateStub(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, map[string]any{
		"d": "2024-01-02",
		"n": int64(4),
		"l": []any{nil, map[string]any{"id": "1", "coll": "User"}},
	}, Instance(map[string]any{
		"d": day,
		"n": 4,
		"l": []any{models.NullDocument{}, models.DocumentReference{ID: "1", Coll: models.Module{Name: "User"}}},
	}))
}
