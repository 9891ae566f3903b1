// Package store abstracts the document store backing the engine: typed
// collections with get-by-id, equality-filter queries, create, partial
// update, and live full-snapshot subscriptions.
//
// Two backends are provided: an in-memory store (tests, simulation) and a
// NATS JetStream key-value store. Both operate on the JSON object form of
// documents so filters match the persisted field names.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Collection names used by the engine.
const (
	Mechanics = "mechanics"
	Requests  = "requests"
	Offers    = "offers"
	Users     = "users"
)

var (
	// ErrNotFound is returned by Get and Update for unknown document ids.
	ErrNotFound = errors.New("store: document not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("store: document already exists")
	// ErrConflict is returned when a partial update loses a write race.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// Filter matches documents whose fields equal every listed value. Field names
// are the persisted (JSON) names. An empty filter matches everything.
type Filter map[string]any

// CancelFunc stops a live subscription. Safe to call more than once.
type CancelFunc func()

// object is the decoded JSON form of a document.
type object = map[string]any

// encode converts a document to its JSON object form.
func encode[T any](doc T) (object, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return obj, nil
}

// decode converts a JSON object back into a document.
func decode[T any](obj object) (T, error) {
	var doc T
	data, err := json.Marshal(obj)
	if err != nil {
		return doc, fmt.Errorf("store: decode: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("store: decode: %w", err)
	}
	return doc, nil
}

// prepare assigns an id and creation timestamp when missing and returns the
// object form. Documents carry their id in the "id" field.
func prepare[T any](doc T) (object, string, error) {
	obj, err := encode(doc)
	if err != nil {
		return nil, "", err
	}
	id, _ := obj["id"].(string)
	if id == "" {
		id = uuid.NewString()
		obj["id"] = id
	}
	if ts, ok := obj["created_at"].(string); !ok || ts == "" || ts == zeroRFC3339 {
		obj["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return obj, id, nil
}

const zeroRFC3339 = "0001-01-01T00:00:00Z"

// matches reports whether obj satisfies every equality in f. Filter values
// are normalised through JSON so typed values compare against decoded ones.
func (f Filter) matches(obj object) bool {
	for field, want := range f {
		got, ok := obj[field]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(jsonNorm(want), got) {
			return false
		}
	}
	return true
}

func jsonNorm(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// rawObject decodes stored JSON bytes into object form.
func rawObject(data []byte) (object, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("store: corrupt document: %w", err)
	}
	return obj, nil
}

// rawBytes encodes an object back to storable JSON.
func rawBytes(obj object) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return data, nil
}

// decodeRaw unmarshals stored JSON bytes straight into a document.
func decodeRaw[T any](data []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("store: decode: %w", err)
	}
	return doc, nil
}

// merge applies a partial field update onto the object form.
func merge(obj object, fields map[string]any) object {
	out := make(object, len(obj)+len(fields))
	for k, v := range obj {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = jsonNorm(v)
	}
	return out
}
