package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// ErrBackendDown is returned by every FailingBackend command.
var ErrBackendDown = errors.New("testsupport: backend unavailable")

// FailingBackend fails every command. It never implements batching, so the
// cache exercises its sequential fallback against it.
type FailingBackend struct {
	mu    sync.Mutex
	calls int
}

// Calls returns how many commands were attempted.
func (f *FailingBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FailingBackend) fail() error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return ErrBackendDown
}

func (f *FailingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, f.fail()
}

func (f *FailingBackend) Set(context.Context, string, []byte) error { return f.fail() }

func (f *FailingBackend) SetWithExpiry(context.Context, string, time.Duration, []byte) error {
	return f.fail()
}

func (f *FailingBackend) Delete(context.Context, ...string) (int64, error) { return 0, f.fail() }

func (f *FailingBackend) ListKeys(context.Context, string) ([]string, error) { return nil, f.fail() }

func (f *FailingBackend) AddToSet(context.Context, string, ...string) error { return f.fail() }

func (f *FailingBackend) RemoveFromSet(context.Context, string, ...string) error { return f.fail() }

func (f *FailingBackend) ReadSet(context.Context, string) ([]string, error) { return nil, f.fail() }

func (f *FailingBackend) Expire(context.Context, string, time.Duration) error { return f.fail() }

func (f *FailingBackend) TTL(context.Context, string) (time.Duration, error) { return 0, f.fail() }

// RecordingBackend forwards to another backend and records the name of
// every command it receives.
type RecordingBackend struct {
	cacheinfra.Backend

	mu    sync.Mutex
	calls []string
}

// NewRecordingBackend wraps inner. Batches from inner are not forwarded, so
// commands issued through a batch are recorded one by one.
func NewRecordingBackend(inner cacheinfra.Backend) *RecordingBackend {
	return &RecordingBackend{Backend: inner}
}

func (r *RecordingBackend) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

// Calls returns a copy of the recorded command names.
func (r *RecordingBackend) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how many times op was recorded.
func (r *RecordingBackend) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (r *RecordingBackend) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *RecordingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.record("Get")
	return r.Backend.Get(ctx, key)
}

func (r *RecordingBackend) Set(ctx context.Context, key string, value []byte) error {
	r.record("Set")
	return r.Backend.Set(ctx, key, value)
}

func (r *RecordingBackend) SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	r.record("SetWithExpiry")
	return r.Backend.SetWithExpiry(ctx, key, ttl, value)
}

func (r *RecordingBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	r.record("Delete")
	return r.Backend.Delete(ctx, keys...)
}

func (r *RecordingBackend) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	r.record("ListKeys")
	return r.Backend.ListKeys(ctx, pattern)
}

func (r *RecordingBackend) AddToSet(ctx context.Context, key string, members ...string) error {
	r.record("AddToSet")
	return r.Backend.AddToSet(ctx, key, members...)
}

func (r *RecordingBackend) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	r.record("RemoveFromSet")
	return r.Backend.RemoveFromSet(ctx, key, members...)
}

func (r *RecordingBackend) ReadSet(ctx context.Context, key string) ([]string, error) {
	r.record("ReadSet")
	return r.Backend.ReadSet(ctx, key)
}

func (r *RecordingBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	r.record("Expire")
	return r.Backend.Expire(ctx, key, ttl)
}

func (r *RecordingBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	r.record("TTL")
	return r.Backend.TTL(ctx, key)
}

// TTLs is recorded once per call, however many keys it reads.
func (r *RecordingBackend) TTLs(ctx context.Context, keys ...string) ([]time.Duration, error) {
	r.record("TTLs")
	return cacheinfra.ReadTTLs(ctx, r.Backend, keys...)
}
