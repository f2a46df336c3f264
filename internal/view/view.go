package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("view: store closed")

// KV is one key/value pair yielded by Range.
type KV struct {
	Key   string
	Value []byte
}

// Reader is the read-only surface of the View.
type Reader interface {
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Range yields pairs with lo <= key < hi in ascending byte order.
	// An empty hi means no upper bound.
	Range(ctx context.Context, lo, hi string) iter.Seq2[KV, error]
}

// Txn is the mutable surface handed to Update callbacks.
// Reads observe the transaction's own uncommitted puts.
type Txn interface {
	Reader
	Put(ctx context.Context, key string, value []byte) error
}

// Store is a View with a single-writer update path.
type Store interface {
	Reader

	// Update runs fn in a transaction. All puts commit if fn returns nil
	// and none do otherwise.
	Update(ctx context.Context, fn func(Txn) error) error

	Close() error
}

// GetJSON decodes the JSON value at key into v.
func GetJSON(ctx context.Context, r Reader, key string, v any) (bool, error) {
	data, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v as JSON and stores it at key.
func PutJSON(ctx context.Context, t Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return t.Put(ctx, key, data)
}

// Collect drains a Range into a slice, stopping at the first error.
func Collect(seq iter.Seq2[KV, error]) ([]KV, error) {
	var out []KV
	for kv, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, nil
}

func inRange(key, lo, hi string) bool {
	return key >= lo && (hi == "" || key < hi)
}
