// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package basicdb

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/basicdb/core"
	"github.com/poiesic/basicdb/engine"
)

// Future is the deferred result of an asynchronous call. It settles
// exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) settle(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the result. A cancelled ctx stops the wait, not the call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Async runs adapter calls on a worker pool and returns futures.
type Async struct {
	adapter *Adapter
	pool    *ants.Pool
}

// Async returns an asynchronous front end with poolSize workers.
// A poolSize below 1 selects runtime.NumCPU() / 2, with a minimum of 1.
// Release the pool when done.
func (a *Adapter) Async(poolSize int) (*Async, error) {
	if poolSize < 1 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Async{adapter: a, pool: pool}, nil
}

// Release stops the worker pool.
func (x *Async) Release() {
	x.pool.Release()
}

func submit[T any](x *Async, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if err := x.pool.Submit(func() {
		f.settle(fn())
	}); err != nil {
		var zero T
		f.settle(zero, err)
	}
	return f
}

// OpenDb is the asynchronous form of Adapter.OpenDb.
func (x *Async) OpenDb(ctx context.Context, cfg *Config) *Future[*engine.Database] {
	return submit(x, func() (*engine.Database, error) {
		return x.adapter.OpenDb(ctx, cfg)
	})
}

// CloseDb is the asynchronous form of Adapter.CloseDb. The future never
// holds an error from the close itself.
func (x *Async) CloseDb(db *engine.Database) *Future[bool] {
	return submit(x, func() (bool, error) {
		return x.adapter.CloseDb(db), nil
	})
}

// DeleteDb is the asynchronous form of Adapter.DeleteDb.
func (x *Async) DeleteDb(ctx context.Context, name string) *Future[bool] {
	return submit(x, func() (bool, error) {
		return x.adapter.DeleteDb(ctx, name)
	})
}

// ClearObjectStore is the asynchronous form of Adapter.ClearObjectStore.
func (x *Async) ClearObjectStore(ctx context.Context, opts ...CallOption) *Future[bool] {
	return submit(x, func() (bool, error) {
		return x.adapter.ClearObjectStore(ctx, opts...)
	})
}

// AddRecord is the asynchronous form of Adapter.AddRecord.
func (x *Async) AddRecord(ctx context.Context, record any, opts ...CallOption) *Future[core.Record] {
	return submit(x, func() (core.Record, error) {
		return x.adapter.AddRecord(ctx, record, opts...)
	})
}

// PutRecord is the asynchronous form of Adapter.PutRecord.
func (x *Async) PutRecord(ctx context.Context, record any, opts ...CallOption) *Future[core.Record] {
	return submit(x, func() (core.Record, error) {
		return x.adapter.PutRecord(ctx, record, opts...)
	})
}

// GetRecord is the asynchronous form of Adapter.GetRecord.
func (x *Async) GetRecord(ctx context.Context, key any, opts ...CallOption) *Future[core.Record] {
	return submit(x, func() (core.Record, error) {
		return x.adapter.GetRecord(ctx, key, opts...)
	})
}

// GetRecordBy is the asynchronous form of Adapter.GetRecordBy.
func (x *Async) GetRecordBy(ctx context.Context, indexName string, key any, opts ...CallOption) *Future[core.Record] {
	return submit(x, func() (core.Record, error) {
		return x.adapter.GetRecordBy(ctx, indexName, key, opts...)
	})
}

// GetAllRecords is the asynchronous form of Adapter.GetAllRecords.
func (x *Async) GetAllRecords(ctx context.Context, opts ...CallOption) *Future[[]core.Record] {
	return submit(x, func() ([]core.Record, error) {
		return x.adapter.GetAllRecords(ctx, opts...)
	})
}

// CountRecords is the asynchronous form of Adapter.CountRecords.
func (x *Async) CountRecords(ctx context.Context, opts ...CallOption) *Future[int] {
	return submit(x, func() (int, error) {
		return x.adapter.CountRecords(ctx, opts...)
	})
}

// DeleteRecord is the asynchronous form of Adapter.DeleteRecord.
func (x *Async) DeleteRecord(ctx context.Context, key any, opts ...CallOption) *Future[bool] {
	return submit(x, func() (bool, error) {
		return x.adapter.DeleteRecord(ctx, key, opts...)
	})
}

// DeleteRecordBy is the asynchronous form of Adapter.DeleteRecordBy.
func (x *Async) DeleteRecordBy(ctx context.Context, indexName string, key any, opts ...CallOption) *Future[bool] {
	return submit(x, func() (bool, error) {
		return x.adapter.DeleteRecordBy(ctx, indexName, key, opts...)
	})
}
