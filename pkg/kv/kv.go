// Package kv is the key-value layer under the run index. Keys are paths of
// string segments joined with ':' ("run:id:<uuid>").
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys and for segments that are
	// empty or contain the separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments in the encoded form.
const Separator = ':'

// Key is a hierarchical path, e.g. Key{"run", "time", "1712", "<id>"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Validate checks every segment.
func (k Key) Validate() error {
	if len(k) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return fmt.Errorf("%w: segment %q in %s", ErrInvalidKey, seg, k)
		}
	}
	return nil
}

func (k Key) encode() []byte {
	return []byte(k.String())
}

// prefixBytes returns the scan prefix for k. The trailing separator keeps
// "run:a" from matching "run:ab"; an empty k scans everything.
func (k Key) prefixBytes() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), Separator)
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error

	// List yields the entries under prefix in encoded-key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet stores all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	Close() error
}

func validateEntries(entries []Entry) error {
	for _, e := range entries {
		if err := e.Key.Validate(); err != nil {
			return err
		}
	}
	return nil
}
