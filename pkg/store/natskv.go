package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// KV is a Collection backend on a NATS JetStream key-value bucket. One bucket
// per collection; document ids are the keys, values are the JSON objects.
// Partial updates use revision-checked writes so each document update is
// atomic; there is no multi-document transaction (see the offers engine for
// how the acceptance pair of writes is handled).
type KV[T any] struct {
	name string
	kv   nats.KeyValue
}

// NewKV binds a collection to the bucket of the same name, creating it when
// missing.
func NewKV[T any](js nats.JetStreamContext, name string) (*KV[T], error) {
	kv, err := js.KeyValue(name)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: name, History: 1})
	}
	if err != nil {
		return nil, fmt.Errorf("store: bind bucket %s: %w", name, err)
	}
	return &KV[T]{name: name, kv: kv}, nil
}

var _ Collection[any] = (*KV[any])(nil)

func (c *KV[T]) Get(_ context.Context, id string) (T, error) {
	var zero T
	entry, err := c.kv.Get(id)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
	}
	if err != nil {
		return zero, fmt.Errorf("store: get %s/%s: %w", c.name, id, err)
	}
	return decodeRaw[T](entry.Value())
}

func (c *KV[T]) Query(_ context.Context, filter Filter) ([]T, error) {
	keys, err := c.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: keys %s: %w", c.name, err)
	}

	var out []T
	for _, key := range keys {
		entry, err := c.kv.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			continue // deleted between Keys and Get
		}
		if err != nil {
			return nil, fmt.Errorf("store: get %s/%s: %w", c.name, key, err)
		}
		obj, err := rawObject(entry.Value())
		if err != nil {
			return nil, err
		}
		if !filter.matches(obj) {
			continue
		}
		doc, err := decode[T](obj)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *KV[T]) Create(_ context.Context, doc T) (T, error) {
	var zero T
	obj, id, err := prepare(doc)
	if err != nil {
		return zero, err
	}
	data, err := rawBytes(obj)
	if err != nil {
		return zero, err
	}
	if _, err := c.kv.Create(id, data); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return zero, fmt.Errorf("%w: %s/%s", ErrExists, c.name, id)
		}
		return zero, fmt.Errorf("store: create %s/%s: %w", c.name, id, err)
	}
	return decode[T](obj)
}

// Update merges fields into the stored object using a revision-checked write.
// A bounded number of retries absorbs benign races; a persistent race
// surfaces as ErrConflict.
func (c *KV[T]) Update(_ context.Context, id string, fields map[string]any) error {
	const casAttempts = 4

	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := c.kv.Get(id)
		if errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
		}
		if err != nil {
			return fmt.Errorf("store: get %s/%s: %w", c.name, id, err)
		}

		obj, err := rawObject(entry.Value())
		if err != nil {
			return err
		}
		data, err := rawBytes(merge(obj, fields))
		if err != nil {
			return err
		}

		if _, err := c.kv.Update(id, data, entry.Revision()); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrConflict, c.name, id)
}

// Subscribe watches the bucket and rebuilds the filtered snapshot on every
// change, mirroring the full-snapshot contract of the memory backend.
func (c *KV[T]) Subscribe(filter Filter, snapshot func([]T)) (CancelFunc, error) {
	watcher, err := c.kv.WatchAll()
	if err != nil {
		return nil, fmt.Errorf("store: watch %s: %w", c.name, err)
	}

	done := make(chan struct{})
	var once sync.Once

	go func() {
		current := make(map[string]object)
		var order []string
		replaying := true

		emit := func() {
			var docs []T
			for _, key := range order {
				obj, ok := current[key]
				if !ok || !filter.matches(obj) {
					continue
				}
				doc, err := decode[T](obj)
				if err != nil {
					continue
				}
				docs = append(docs, doc)
			}
			snapshot(docs)
		}

		for {
			select {
			case <-done:
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					// End of the initial replay: first authoritative snapshot.
					replaying = false
					emit()
					continue
				}
				key := entry.Key()
				switch entry.Operation() {
				case nats.KeyValueDelete, nats.KeyValuePurge:
					delete(current, key)
				default:
					obj, err := rawObject(entry.Value())
					if err != nil {
						continue
					}
					if _, seen := current[key]; !seen {
						order = append(order, key)
					}
					current[key] = obj
				}
				if !replaying {
					emit()
				}
			}
		}
	}()

	cancel := func() {
		once.Do(func() {
			close(done)
			_ = watcher.Stop()
		})
	}
	return cancel, nil
}
