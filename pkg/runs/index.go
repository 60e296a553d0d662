package runs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/alitavanaali/MusiComb/pkg/kv"
)

var (
	// ErrNotFound is returned by Get for unknown run ids.
	ErrNotFound = errors.New("runs: not found")

	// ErrInvalidRecord is returned by Put for records without an id.
	ErrInvalidRecord = errors.New("runs: invalid record")
)

// Index stores records under two keys:
//
//	run:id:<id>            -> msgpack Record
//	run:time:<nanos>:<id>  -> id
//
// The time key lists runs in creation order.
type Index struct {
	store kv.Store
}

// NewIndex creates an Index on store.
func NewIndex(store kv.Store) *Index {
	return &Index{store: store}
}

func idKey(id string) kv.Key {
	return kv.Key{"run", "id", id}
}

func timeKey(t time.Time, id string) kv.Key {
	return kv.Key{"run", "time", fmt.Sprintf("%020d", t.UnixNano()), id}
}

// Put stores rec, replacing an earlier record with the same id. A zero
// CreatedAt is set to the current time.
func (x *Index) Put(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("runs: encode %s: %w", rec.ID, err)
	}
	entries := []kv.Entry{
		{Key: idKey(rec.ID), Value: data},
		{Key: timeKey(rec.CreatedAt, rec.ID), Value: []byte(rec.ID)},
	}
	if old, err := x.Get(ctx, rec.ID); err == nil && !old.CreatedAt.Equal(rec.CreatedAt) {
		if err := x.store.Delete(ctx, timeKey(old.CreatedAt, old.ID)); err != nil {
			return err
		}
	}
	if err := x.store.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("runs: put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record of run id.
func (x *Index) Get(ctx context.Context, id string) (*Record, error) {
	data, err := x.store.Get(ctx, idKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("runs: decode %s: %w", id, err)
	}
	return &rec, nil
}

// ListOptions narrows List.
type ListOptions struct {
	// Limit caps the number of records; zero means no limit.
	Limit int

	// Filter keeps only matching records.
	Filter *Filter
}

// List returns records newest first.
func (x *Index) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	var ids []string
	for e, err := range x.store.List(ctx, kv.Key{"run", "time"}) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, string(e.Value))
	}
	slices.Reverse(ids)

	var out []*Record
	for _, id := range ids {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		rec, err := x.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.Filter != nil {
			ok, err := opts.Filter.Match(rec)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes run id. Unknown ids are not an error.
func (x *Index) Delete(ctx context.Context, id string) error {
	rec, err := x.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := x.store.Delete(ctx, timeKey(rec.CreatedAt, id)); err != nil {
		return err
	}
	return x.store.Delete(ctx, idKey(id))
}
