package shard

import (
	"context"
	"sync"
)

// QueryFunc issues one read against a single shard.
type QueryFunc[T any] func(ctx context.Context, shardIndex int) ([]T, error)

// Result holds merged scatter-gather output. Partial is true when at least one
// shard was skipped because its breaker was open or its call failed; the query
// as a whole never fails for single-shard degradation.
type Result[T any] struct {
	Items        []T
	Partial      bool
	FailedShards []int
}

// QueryAllShards issues the same read to every shard concurrently, each call
// wrapped by that shard's circuit breaker when one is attached. Results are
// merged in shard order so output is deterministic for fixed shard contents.
func QueryAllShards[T any](ctx context.Context, router *Router, query QueryFunc[T]) Result[T] {
	count := router.ShardCount()
	perShard := make([][]T, count)
	errs := make([]error, count)

	var wg sync.WaitGroup

	for i := range count {
		wg.Add(1)

		go func() {
			defer wg.Done()

			op := func(ctx context.Context) error {
				items, err := query(ctx, i)
				if err != nil {
					return err
				}

				perShard[i] = items

				return nil
			}

			if cb := router.Breaker(i); cb != nil {
				errs[i] = cb.Execute(ctx, op)

				return
			}

			errs[i] = op(ctx)
		}()
	}

	wg.Wait()

	var res Result[T]

	for i := range count {
		if errs[i] != nil {
			res.Partial = true
			res.FailedShards = append(res.FailedShards, i)

			continue
		}

		res.Items = append(res.Items, perShard[i]...)
	}

	return res
}
