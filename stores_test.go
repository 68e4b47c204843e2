package faunatyped_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faunatyped "github.com/Etesie/fauna-typed"
	"github.com/Etesie/fauna-typed/internal/mock"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/models"
	"github.com/Etesie/fauna-typed/pkg/persistence"
)

func TestStores_Register(t *testing.T) {
	stores := faunatyped.New(mock.New(), nil)

	_, err := stores.Register("")
	assert.ErrorIs(t, err, constants.ErrUnknownCollection)

	a, err := stores.Register("A")
	require.NoError(t, err)
	b, err := stores.Register("B")
	require.NoError(t, err)
	again, err := stores.Register("A")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, []string{"A", "B"}, stores.Names())

	got, ok := stores.Store("B")
	assert.True(t, ok)
	assert.Same(t, b, got)
	_, ok = stores.Store("C")
	assert.False(t, ok)

	sys, ok := stores.Store(constants.SystemCollection)
	assert.True(t, ok)
	assert.Same(t, stores.Collections(), sys)
}

func TestStores_closed(t *testing.T) {
	ctx := context.Background()
	stores := faunatyped.New(mock.New(), nil)
	require.NoError(t, stores.Close(ctx))

	_, err := stores.Register("A")
	assert.ErrorIs(t, err, constants.ErrStoresClosed)
	assert.ErrorIs(t, stores.Init(ctx), constants.ErrStoresClosed)
}

func TestStores_registerAfterInitRehydrates(t *testing.T) {
	ctx := context.Background()
	mem := persistence.NewMemory()
	require.NoError(t, mem.Set(ctx, "Item", []models.Document{item("1", 1), item("2", 2)}))

	stores := faunatyped.New(mock.New(), mem)
	require.NoError(t, stores.Init(ctx))
	st, err := stores.Register("Item")
	require.NoError(t, err)

	assert.Equal(t, 2, st.Len())
	assert.False(t, st.CanUndo())
	assert.Equal(t, 1, mem.Writes("Item"))
}

func TestStores_Define(t *testing.T) {
	stores := faunatyped.New(mock.New(), nil)
	st, err := stores.Define(models.Collection{Name: "Tag", Named: true})
	require.NoError(t, err)

	assert.True(t, st.Definition().Named)
	assert.True(t, stores.Collections().ByKey("Tag").Exists())

	h, err := st.Upsert(models.Document{Coll: models.Module{Name: "Tag"}, Data: map[string]any{"name": "red"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "red", h.Key())
}

func TestStores_createInNamedCollection(t *testing.T) {
	ctx := context.Background()
	gw := mock.New()
	stores := faunatyped.New(gw, nil)
	st, err := stores.Define(models.Collection{Name: "Tag", Named: true})
	require.NoError(t, err)

	h, err := st.Create(ctx, models.Fields{"name": "red"})
	require.NoError(t, err)
	assert.Equal(t, "red", h.Key())
	assert.False(t, models.IsTempID(h.Key()))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, st.Wait(waitCtx))
	assert.Equal(t, "red", h.Key())
	_, ok := gw.Remote("Tag", "red")
	assert.True(t, ok)
}

func TestStores_systemCollectionsAreNamed(t *testing.T) {
	stores := faunatyped.New(mock.New(), nil)
	st, err := stores.Register("Function")
	require.NoError(t, err)
	assert.True(t, st.Definition().Named)

	st, err = stores.Register("Post")
	require.NoError(t, err)
	assert.False(t, st.Definition().Named)
}

func TestStores_Destroy(t *testing.T) {
	ctx := context.Background()
	mem := persistence.NewMemory()
	stores := faunatyped.New(mock.New(), mem)
	st, err := stores.Register("Item")
	require.NoError(t, err)
	_, err = st.Upsert(item("1", 1), "")
	require.NoError(t, err)

	_, ok, _ := mem.Get(ctx, "Item")
	require.True(t, ok)

	require.NoError(t, stores.Destroy(ctx))
	assert.Zero(t, st.Len())
	assert.False(t, st.CanUndo())
	_, ok, _ = mem.Get(ctx, "Item")
	assert.False(t, ok)
}
