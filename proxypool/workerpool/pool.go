// Package workerpool runs independent units of work concurrently and joins
// their results.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
)

// DefaultChunkSize bounds how many workers one Map call starts.
const DefaultChunkSize = 10

// Func is the unit of work applied to each item.
type Func[T, R any] func(ctx context.Context, item T) (R, error)

// Map starts one goroutine per item before waiting on any of them, then joins
// them all. Each worker writes only its own result slot. Slots are read in start
// order once every worker has returned, so a slow first item holds back the
// whole batch; the caller must not rely on that order.
//
// A worker that returns an error or panics fails the whole batch with ErrWorker
// and no partial results are returned. Workers that should tolerate per-item
// failures must encode the failure in R instead.
func Map[T, R any](ctx context.Context, items []T, fn Func[T, R]) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	slots := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)

	for i := range items {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					l := logger.WithComponent("ProxyPool/WorkerPool")
					l.Error().Int("worker", i).Str("stack", string(debug.Stack())).Msgf("Worker panicked: %v", r)
					err = herrors.Worker("worker ", i, " panicked: ", fmt.Sprint(r))
				}
			}()

			res, err := fn(gctx, items[i])
			if err != nil {
				if herrors.Is(err, herrors.ErrWorker) {
					return err
				}
				return herrors.Worker("worker ", i, " produced no result").Base(err)
			}
			slots[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]R, 0, len(slots))
	results = append(results, slots...)
	return results, nil
}

// Chunk partitions items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// MapChunked applies Map to each chunk of items in turn, so at most chunkSize
// workers are live at once, and concatenates the results.
func MapChunked[T, R any](ctx context.Context, items []T, chunkSize int, fn Func[T, R]) ([]R, error) {
	results := make([]R, 0, len(items))
	for _, chunk := range Chunk(items, chunkSize) {
		part, err := Map(ctx, chunk, fn)
		if err != nil {
			return nil, err
		}
		results = append(results, part...)
	}
	return results, nil
}
