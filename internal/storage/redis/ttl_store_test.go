package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

type fakeClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failing bool
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return goredis.NewStringResult("", errors.New("i/o timeout"))
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return goredis.NewStatusResult("", errors.New("i/o timeout"))
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Ping(ctx context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestTTLStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	s := newWithClient(fc, "")
	ctx := context.Background()

	_, err := s.Get(ctx, "provenance:https://x")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	require.NoError(t, s.Set(ctx, "provenance:https://x", []byte(`{"method":"search"}`), time.Hour))
	got, err := s.Get(ctx, "provenance:https://x")
	require.NoError(t, err)
	require.JSONEq(t, `{"method":"search"}`, string(got))
	require.Equal(t, time.Hour, fc.ttls["regcrawler:provenance:https://x"])

	require.NoError(t, s.Set(ctx, "k", []byte("v"), -time.Second))
	require.Zero(t, fc.ttls["regcrawler:k"])

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	require.True(t, fc.closed)
}

func TestTTLStoreErrors(t *testing.T) {
	t.Parallel()

	fc := newFakeClient()
	fc.failing = true
	s := newWithClient(fc, "test:")
	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	require.False(t, errors.Is(err, crawler.ErrNotFound))
	require.Error(t, s.Set(context.Background(), "k", []byte("v"), 0))

	_, err = New(context.Background(), Config{})
	require.Error(t, err)
}
