package basicdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/basicdb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsync(t *testing.T) {
	a := newTestAdapter(t, newTestFactory(t), WithSchema(peopleSchema()))
	ctx := context.Background()

	x, err := a.Async(4)
	require.NoError(t, err)
	defer x.Release()

	db, err := x.OpenDb(ctx, nil).Await(ctx)
	require.NoError(t, err)
	assert.Same(t, db, a.Handle())

	futures := make([]*Future[core.Record], 0, 20)
	for i := 0; i < 20; i++ {
		futures = append(futures, x.AddRecord(ctx, map[string]any{"name": "n", "i": i}))
	}
	for _, f := range futures {
		<-f.Done()
		rec, err := f.Await(ctx)
		require.NoError(t, err)
		assert.NotNil(t, rec["id"])
	}

	n, err := x.CountRecords(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	rec, err := x.GetRecord(ctx, 1).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec["id"])

	rec, err = x.GetRecordBy(ctx, "byName", "n").Await(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	_, err = x.PutRecord(ctx, map[string]any{"id": 1, "name": "renamed"}).Await(ctx)
	require.NoError(t, err)

	deleted, err := x.DeleteRecordBy(ctx, "byName", "renamed").Await(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = x.DeleteRecord(ctx, 2).Await(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)

	all, err := x.GetAllRecords(ctx).Await(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 18)

	ok, err := x.ClearObjectStore(ctx).Await(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = x.CloseDb(nil).Await(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = x.DeleteDb(ctx, "").Await(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFuture_SettlesOnce(t *testing.T) {
	f := newFuture[int]()
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			f.settle(v, nil)
		}(i)
	}
	wg.Wait()

	ctx := context.Background()
	first, err := f.Await(ctx)
	require.NoError(t, err)
	again, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestFuture_AwaitCancelled(t *testing.T) {
	f := newFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-f.Done():
		t.Fatal("future settled without a result")
	default:
	}
}

func TestAsync_DefaultPoolSize(t *testing.T) {
	a := newTestAdapter(t, newTestFactory(t))
	x, err := a.Async(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, x.pool.Cap(), 1)
	x.Release()
}
