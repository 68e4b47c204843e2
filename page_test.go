package faunatyped_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faunatyped "github.com/Etesie/fauna-typed"
	"github.com/Etesie/fauna-typed/internal/mock"
	"github.com/Etesie/fauna-typed/internal/testlog"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
	"github.com/Etesie/fauna-typed/pkg/persistence"
)

func pagedStore(t *testing.T, n, size int) (*faunatyped.Store, *mock.Gateway) {
	t.Helper()
	gw := mock.New()
	gw.SetPageSize(size)
	for i := 1; i <= n; i++ {
		gw.Seed("Item", item(fmt.Sprint(i), int64(i%3)))
	}
	stores := faunatyped.New(gw, persistence.NewMemory(), faunatyped.WithLogger(testlog.New().Logger()))
	st, err := stores.Register("Item")
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close(context.Background()) })
	return st, gw
}

func TestPage_afterChain(t *testing.T) {
	ctx := context.Background()
	st, gw := pagedStore(t, 6, 2)

	p0 := st.All(ctx)
	assert.Zero(t, p0.Len())

	p1 := p0.After(ctx)
	require.NotNil(t, p1)
	assert.Equal(t, []string{"3", "4"}, p1.Keys())

	p2 := p1.After(ctx)
	require.NotNil(t, p2)
	assert.Equal(t, []string{"5", "6"}, p2.Keys())
	assert.Nil(t, p2.After(ctx))

	assert.Same(t, p1, p0.After(ctx))
	assert.Same(t, p2, p0.After(ctx).After(ctx))
	assert.Len(t, gw.Calls(mock.MethodPaginate), 2)

	direct, err := gw.Paginate(ctx, gw.Calls(mock.MethodPaginate)[1].Key)
	require.NoError(t, err)
	assert.Equal(t, keysOf(direct.Data), p2.Keys())
	assert.Equal(t, 6, st.Len())
}

func keysOf(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestPage_failedContinuationEndsChain(t *testing.T) {
	ctx := context.Background()
	st, gw := pagedStore(t, 4, 2)

	p0 := st.All(ctx)
	gw.Fail(mock.MethodPaginate, errTransient, 1)
	assert.Nil(t, p0.After(ctx))

	p1 := p0.After(ctx)
	require.NotNil(t, p1)
	assert.Equal(t, []string{"3", "4"}, p1.Keys())
}

func TestPage_failedFetchHasNoContinuation(t *testing.T) {
	ctx := context.Background()
	st, gw := pagedStore(t, 4, 2)
	gw.Fail(mock.MethodFetchAll, errTransient, 1)

	assert.Nil(t, st.All(ctx).After(ctx))
	assert.Empty(t, gw.Calls(mock.MethodPaginate))
}

func TestPage_where(t *testing.T) {
	ctx := context.Background()
	st, _ := pagedStore(t, 6, 16)

	p := st.Where(ctx, fql.Eq("v", 1))
	assert.Nil(t, p.After(ctx))
	assert.Equal(t, 2, st.Len())
	assert.ElementsMatch(t, []string{"1", "4"}, st.Where(ctx, fql.Eq("v", 1)).Keys())
}

func TestPage_order(t *testing.T) {
	ctx := context.Background()
	st, _ := pagedStore(t, 6, 16)
	st.All(ctx)
	require.NoError(t, st.Wait(ctx))

	page := st.All(ctx)
	ordered := page.Order(faunatyped.Desc("v"), faunatyped.Asc("id"))
	assert.Equal(t, []string{"2", "5", "1", "4", "3", "6"}, ordered.Keys())
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, page.Keys())
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, st.All(ctx).Keys())

	byLen := page.Order(faunatyped.AscBy(func(d models.Document) any { return -len(d.ID) }))
	assert.Equal(t, page.Keys(), byLen.Keys())
	assert.Len(t, ordered.Docs(), 6)
}

func TestPage_localDataIsCappedAtPageSize(t *testing.T) {
	ctx := context.Background()
	gw := mock.New()
	gw.SetPageSize(2)
	stores := faunatyped.New(gw, nil, faunatyped.WithPageSize(2), faunatyped.WithLogger(testlog.New().Logger()))
	t.Cleanup(func() { _ = stores.Close(context.Background()) })
	st, err := stores.Register("Item")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := st.Upsert(item(fmt.Sprint(i), 1), "")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"1", "2"}, st.All(ctx).Keys())
	assert.Equal(t, []string{"1", "2"}, st.Where(ctx, fql.Eq("v", 1)).Keys())
	assert.Empty(t, st.Where(ctx, fql.Eq("v", 2)).Keys())
	require.NoError(t, st.Wait(ctx))
	assert.Equal(t, 5, st.Len())
}
