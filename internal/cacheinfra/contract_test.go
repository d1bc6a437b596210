package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"
)

// setOnlyBackend hides the Batcher implementation of the wrapped backend.
type setOnlyBackend struct {
	Backend
	failSet bool
	calls   []string
}

func (s *setOnlyBackend) Set(ctx context.Context, key string, value []byte) error {
	s.calls = append(s.calls, "set:"+key)
	if s.failSet {
		return errors.New("set failed")
	}
	return s.Backend.Set(ctx, key, value)
}

func (s *setOnlyBackend) AddToSet(ctx context.Context, key string, members ...string) error {
	s.calls = append(s.calls, "sadd:"+key)
	return s.Backend.AddToSet(ctx, key, members...)
}

func TestBeginBatch_UsesNativeBatcher(t *testing.T) {
	backend, _ := newTestMemoryBackend(t)
	if _, ok := BeginBatch(backend).(*memoryBatch); !ok {
		t.Fatal("expected native memory batch")
	}
}

func TestBeginBatch_SequentialFallback(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemoryBackend(t)
	backend := &setOnlyBackend{Backend: mem}

	batch := BeginBatch(backend)
	if _, ok := batch.(*sequentialBatch); !ok {
		t.Fatalf("expected sequential batch, got %T", batch)
	}

	batch.Set("a", []byte("1"))
	batch.AddToSet("idx", "a")
	batch.SetWithExpiry("b", time.Minute, []byte("2"))
	batch.Expire("idx", time.Minute)
	batch.RemoveFromSet("idx", "zzz")
	batch.Delete("b")

	if err := batch.Execute(ctx); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if len(backend.calls) != 2 || backend.calls[0] != "set:a" || backend.calls[1] != "sadd:idx" {
		t.Errorf("unexpected call order: %v", backend.calls)
	}
	if _, ok, _ := mem.Get(ctx, "b"); ok {
		t.Error("expected b deleted")
	}
	if ttl, _ := mem.TTL(ctx, "idx"); ttl != time.Minute {
		t.Errorf("expected idx ttl 1m, got %v", ttl)
	}
}

func TestSequentialBatch_StopsOnFirstError(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemoryBackend(t)
	backend := &setOnlyBackend{Backend: mem, failSet: true}

	batch := BeginBatch(backend)
	batch.Set("a", []byte("1"))
	batch.AddToSet("idx", "a")

	if err := batch.Execute(ctx); err == nil {
		t.Fatal("expected error")
	}
	if len(backend.calls) != 1 {
		t.Errorf("expected execution to stop after failure, calls=%v", backend.calls)
	}
}

func TestReadTTLs(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemoryBackend(t)

	_ = mem.SetWithExpiry(ctx, "a", time.Minute, []byte("1"))
	_ = mem.AddToSet(ctx, "idx", "a")

	want := []time.Duration{time.Minute, TTLNoExpiry, TTLMissing}
	for name, backend := range map[string]Backend{
		"native":     mem,
		"sequential": &setOnlyBackend{Backend: mem},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ReadTTLs(ctx, backend, "a", "idx", "missing")
			if err != nil {
				t.Fatalf("ReadTTLs failed: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d ttls, got %v", len(want), got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("ttl %d: expected %v, got %v", i, want[i], got[i])
				}
			}
		})
	}

	if got, err := ReadTTLs(ctx, mem); err != nil || got != nil {
		t.Errorf("expected nil for no keys, got %v, %v", got, err)
	}
}
