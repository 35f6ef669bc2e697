package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/zawadi-market/guard_api/model"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisService) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, &RedisService{redis: client}
}

// failingStore rejects every operation, for fail-open tests.
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (failingStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errStoreDown
}
func (failingStore) Incr(context.Context, string) (int64, error) { return 0, errStoreDown }
func (failingStore) Expire(context.Context, string, time.Duration) error {
	return errStoreDown
}
func (failingStore) TTL(context.Context, string) (time.Duration, error) { return 0, errStoreDown }
func (failingStore) Exists(context.Context, string) (bool, error)       { return false, errStoreDown }
func (failingStore) Del(context.Context, ...string) error               { return errStoreDown }

// countingStore records how many operations reach the underlying store.
type countingStore struct {
	KVStore
	mu    sync.Mutex
	calls int
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) bump() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) Get(ctx context.Context, key string) (string, error) {
	s.bump()
	return s.KVStore.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.bump()
	return s.KVStore.Set(ctx, key, value, expiration)
}

func (s *countingStore) Incr(ctx context.Context, key string) (int64, error) {
	s.bump()
	return s.KVStore.Incr(ctx, key)
}

func (s *countingStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	s.bump()
	return s.KVStore.Expire(ctx, key, expiration)
}

func (s *countingStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.bump()
	return s.KVStore.TTL(ctx, key)
}

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.bump()
	return s.KVStore.Exists(ctx, key)
}

func (s *countingStore) Del(ctx context.Context, keys ...string) error {
	s.bump()
	return s.KVStore.Del(ctx, keys...)
}

// stubGeo resolves every IP to a fixed country code.
type stubGeo struct {
	code string
}

func (g stubGeo) CountryCode(context.Context, string) string { return g.code }

func newTestAbuseService(kv KVStore, geo CountryResolver) *AbuseService {
	return &AbuseService{
		kv:         kv,
		geo:        geo,
		burstLimit: defaultBurstLimit,
		now:        time.Now,
		sleep:      func(time.Duration) {},
		incidents:  make(chan *model.AbuseIncident, incidentQueueSize),
		done:       make(chan struct{}),
	}
}

// drainIncidents collects whatever the engine queued without blocking.
func drainIncidents(svc *AbuseService) []*model.AbuseIncident {
	var out []*model.AbuseIncident
	for {
		select {
		case in := <-svc.incidents:
			out = append(out, in)
		default:
			return out
		}
	}
}
