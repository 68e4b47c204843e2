package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
)

var items = models.Collection{Name: "Item"}

func doc(id string, v int64) models.Document {
	return models.Document{ID: id, Data: map[string]any{"v": v}}
}

func TestPaging(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.SetPageSize(2)
	g.Seed("Item", doc("1", 1), doc("2", 2), doc("3", 3))

	first, err := g.FetchAll(ctx, items)
	require.NoError(t, err)
	assert.Len(t, first.Data, 2)
	assert.Equal(t, "cursor-1", first.After)

	rest, err := g.Paginate(ctx, first.After)
	require.NoError(t, err)
	require.Len(t, rest.Data, 1)
	assert.Equal(t, "3", rest.Data[0].ID)
	assert.Empty(t, rest.After)

	_, err = g.Paginate(ctx, "cursor-9")
	assert.ErrorIs(t, err, constants.ErrNotFound)

	where, err := g.FetchWhere(ctx, items, fql.Eq("v", 2))
	require.NoError(t, err)
	require.Len(t, where.Data, 1)
	assert.Equal(t, "2", where.Data[0].ID)
}

func TestWrites(t *testing.T) {
	ctx := context.Background()
	g := New()

	created, err := g.Create(ctx, items, models.Document{ID: models.NewTempID(), Data: map[string]any{"v": 1}})
	require.NoError(t, err)
	assert.Equal(t, "1001", created.ID)
	assert.Equal(t, int64(1), created.Data["v"])

	updated, err := g.Update(ctx, items, "1001", models.Fields{"w": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": int64(1), "w": "x"}, updated.Data)

	replaced, err := g.Replace(ctx, items, "1001", models.Fields{"w": "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"w": "y"}, replaced.Data)

	require.NoError(t, g.Delete(ctx, items, "1001"))
	assert.Zero(t, g.Count("Item"))
	assert.ErrorIs(t, g.Delete(ctx, items, "1001"), constants.ErrNotFound)

	assert.Len(t, g.Calls(MethodCreate, MethodUpdate, MethodReplace), 3)
	assert.Len(t, g.Calls(), 5)
}

func TestNamedCollections(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.SeedNamed("Tag", models.Document{Data: map[string]any{"name": "red", "hex": "f00"}})
	tags := models.Collection{Name: "Tag", Named: true}

	d, err := g.FetchByName(ctx, tags, "red")
	require.NoError(t, err)
	assert.Empty(t, d.ID)

	replaced, err := g.Replace(ctx, tags, "red", models.Fields{"hex": "ff0000"})
	require.NoError(t, err)
	assert.Equal(t, "red", replaced.Data["name"])
}

func TestReferencesStoredByIdentity(t *testing.T) {
	ctx := context.Background()
	g := New()
	owner := models.Document{ID: "u1", Coll: models.Module{Name: "User"}}

	created, err := g.Create(ctx, items, models.Document{Data: map[string]any{"owner": owner}})
	require.NoError(t, err)
	assert.Equal(t, owner.Reference(), created.Data["owner"])
}

func TestFailAndHold(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Seed("Item", doc("1", 1))
	boom := errors.New("boom")

	g.Fail(MethodFirst, boom, 1)
	_, err := g.First(ctx, items)
	assert.ErrorIs(t, err, boom)
	_, err = g.First(ctx, items)
	assert.NoError(t, err)

	g.Fail(MethodLast, boom, -1)
	for range 3 {
		_, err = g.Last(ctx, items)
		assert.ErrorIs(t, err, boom)
	}
	g.Heal(MethodLast)
	_, err = g.Last(ctx, items)
	assert.NoError(t, err)

	release := g.Hold(MethodFetchByID)
	done := make(chan error, 1)
	go func() {
		_, err := g.FetchByID(ctx, items, "1")
		done <- err
	}()
	require.True(t, g.WaitCalls(MethodFetchByID, 1, time.Second))
	select {
	case <-done:
		t.Fatal("held call returned")
	default:
	}
	release()
	release()
	assert.NoError(t, <-done)
}

func TestChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New()

	ch, err := g.Changes(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Feeds("Item"))

	g.Emit("Item", models.Event{Type: models.EventAdd, Doc: doc("1", 1)})
	ev := <-ch
	assert.Equal(t, models.EventAdd, ev.Type)

	cancel()
	assert.Eventually(t, func() bool { return g.Feeds("Item") == 0 }, time.Second, 5*time.Millisecond)
}
