package store

import "context"

// Collection is a typed view over one named collection of the document store.
//
// Subscribe registers a live feed: on registration and after every change to
// the collection, the callback receives the full current snapshot of
// documents matching the filter. Snapshots replace prior state entirely;
// consumers must not accumulate. The returned CancelFunc stops further
// callbacks.
type Collection[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Query(ctx context.Context, filter Filter) ([]T, error)
	Create(ctx context.Context, doc T) (T, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Subscribe(filter Filter, snapshot func([]T)) (CancelFunc, error)
}
