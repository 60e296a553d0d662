package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/alitavanaali/MusiComb/pkg/kv"
)

type factory func(t *testing.T) kv.Store

func stores() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T) kv.Store {
			t.Helper()
			s := kv.NewMemory()
			t.Cleanup(func() { s.Close() })
			return s
		},
		"badger": func(t *testing.T) kv.Store {
			t.Helper()
			s, err := kv.OpenBadger(kv.BadgerOptions{InMemory: true})
			if err != nil {
				t.Fatalf("OpenBadger: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s kv.Store)) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func collect(t *testing.T, s kv.Store, prefix kv.Key) []string {
	t.Helper()
	var keys []string
	for e, err := range s.List(context.Background(), prefix) {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		keys = append(keys, e.Key.String())
	}
	return keys
}

func TestGetSetDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		key := kv.Key{"run", "id", "abc"}

		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Set(ctx, key, []byte("v1")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, key, []byte("v2")); err != nil {
			t.Fatalf("Set overwrite: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "v2" {
			t.Fatalf("Get = %q, want v2", got)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, kv.Key{"no", "such"}); err != nil {
			t.Fatalf("Delete missing: %v", err)
		}
	})
}

func TestGetReturnsCopy(t *testing.T) {
	eachStore(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		val := []byte("abc")
		if err := s.Set(ctx, kv.Key{"k"}, val); err != nil {
			t.Fatalf("Set: %v", err)
		}
		val[0] = 'x'
		got, _ := s.Get(ctx, kv.Key{"k"})
		got[1] = 'y'
		again, _ := s.Get(ctx, kv.Key{"k"})
		if string(again) != "abc" {
			t.Fatalf("stored value mutated: %q", again)
		}
	})
}

func TestListPrefix(t *testing.T) {
	eachStore(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		err := s.BatchSet(ctx, []kv.Entry{
			{Key: kv.Key{"run", "time", "002", "b"}, Value: []byte("b")},
			{Key: kv.Key{"run", "time", "001", "a"}, Value: []byte("a")},
			{Key: kv.Key{"run", "id", "a"}, Value: []byte("a")},
			{Key: kv.Key{"runs", "x"}, Value: []byte("x")},
		})
		if err != nil {
			t.Fatalf("BatchSet: %v", err)
		}

		got := collect(t, s, kv.Key{"run", "time"})
		want := []string{"run:time:001:a", "run:time:002:b"}
		if !slices.Equal(got, want) {
			t.Fatalf("List(run:time) = %v, want %v", got, want)
		}
		if got := collect(t, s, kv.Key{"run"}); len(got) != 3 {
			t.Fatalf("List(run) = %v, want 3 keys without runs:x", got)
		}
		if got := collect(t, s, nil); len(got) != 4 {
			t.Fatalf("List(nil) = %v, want all 4", got)
		}
	})
}

func TestListEarlyStop(t *testing.T) {
	eachStore(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			if err := s.Set(ctx, kv.Key{"run", id}, nil); err != nil {
				t.Fatalf("Set: %v", err)
			}
		}
		n := 0
		for _, err := range s.List(ctx, kv.Key{"run"}) {
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			n++
			if n == 2 {
				break
			}
		}
		if n != 2 {
			t.Fatalf("iterated %d entries, want 2", n)
		}
	})
}

func TestInvalidKeys(t *testing.T) {
	eachStore(t, func(t *testing.T, s kv.Store) {
		ctx := context.Background()
		for _, key := range []kv.Key{nil, {""}, {"run", "a:b"}} {
			if err := s.Set(ctx, key, nil); !errors.Is(err, kv.ErrInvalidKey) {
				t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
			}
		}
		err := s.BatchSet(ctx, []kv.Entry{{Key: kv.Key{"ok"}}, {Key: kv.Key{"bad:key"}}})
		if !errors.Is(err, kv.ErrInvalidKey) {
			t.Fatalf("BatchSet error = %v, want ErrInvalidKey", err)
		}
		if _, err := s.Get(ctx, kv.Key{"ok"}); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("partial batch was written: %v", err)
		}
	})
}

func TestBadgerOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := kv.OpenBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := s.Set(ctx, kv.Key{"run", "id", "a"}, []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kv.OpenBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, kv.Key{"run", "id", "a"})
	if err != nil || string(got) != "1" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}

	if _, err := kv.OpenBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without dir")
	}
}
