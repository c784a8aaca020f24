package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(0)
	require.Equal(t, DefaultDimensions, e.Dimensions())

	a, err := e.Embed(context.Background(), "光合作用")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "光合作用")
	require.NoError(t, err)
	c, err := e.Embed(context.Background(), "細胞分裂")
	require.NoError(t, err)

	assert.Len(t, a, DefaultDimensions)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	for _, x := range a {
		assert.GreaterOrEqual(t, x, float32(-0.5))
		assert.LessOrEqual(t, x, float32(0.5))
	}
}

func TestHashEmbedder_KnownDigest(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	e := NewHashEmbedder(34)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)

	assert.InDelta(t, 13.0/15.0-0.5, v[0], 1e-6) // d
	assert.InDelta(t, 4.0/15.0-0.5, v[1], 1e-6)  // 4
	assert.InDelta(t, 1.0/15.0-0.5, v[2], 1e-6)  // 1
	assert.InDelta(t, 14.0/15.0-0.5, v[31], 1e-6) // e
	assert.Equal(t, v[0], v[32], "digits cycle after 32 components")
}

func TestHashEmbedder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedBatch(t *testing.T) {
	vs, err := EmbedBatch(context.Background(), NewHashEmbedder(4), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	_, err = EmbedBatch(context.Background(), failingEmbedder{}, []string{"a"})
	assert.Error(t, err)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("upstream down")
}
func (failingEmbedder) Dimensions() int { return 4 }
func (failingEmbedder) Model() string   { return "failing" }

type mapCache struct {
	mu     sync.Mutex
	m      map[string][]byte
	getErr error
	setErr error
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	b, ok := c.m[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (c *mapCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.m[key] = val
	return nil
}

type countingEmbedder struct {
	Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Embedder.Embed(ctx, text)
}

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewHashEmbedder(16)}
	cache := newMapCache()
	e := NewCachedEmbedder(inner, cache, nil)

	a, err := e.Embed(context.Background(), "query")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, cache.m, 1)
	assert.Equal(t, 16, e.Dimensions())
	assert.Equal(t, "md5-hash", e.Model())
}

func TestCachedEmbedder_CacheFailuresBypassed(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewHashEmbedder(16)}
	cache := newMapCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	e := NewCachedEmbedder(inner, cache, nil)

	for range 2 {
		v, err := e.Embed(context.Background(), "query")
		require.NoError(t, err)
		assert.Len(t, v, 16)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_CorruptEntryRecomputed(t *testing.T) {
	inner := &countingEmbedder{Embedder: NewHashEmbedder(16)}
	cache := newMapCache()
	e := NewCachedEmbedder(inner, cache, nil)
	cache.m[e.key("query")] = []byte{1, 2, 3}

	v, err := e.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, v, 16)
	assert.Equal(t, 1, inner.calls)
}

type closingCache struct {
	*mapCache
	closed   int
	closeErr error
}

func (c *closingCache) Close() error {
	c.closed++
	return c.closeErr
}

func TestCachedEmbedder_Close(t *testing.T) {
	tests := []struct {
		name    string
		cache   Cache
		wantErr bool
	}{
		{"plain cache", newMapCache(), false},
		{"closable cache", &closingCache{mapCache: newMapCache()}, false},
		{"close fails", &closingCache{mapCache: newMapCache(), closeErr: errors.New("pool busy")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCachedEmbedder(NewHashEmbedder(8), tt.cache, nil).Close()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if cc, ok := tt.cache.(*closingCache); ok {
				assert.Equal(t, 1, cc.closed)
			}
		})
	}
}

func TestRedisCache_Close(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	c := NewRedisCache(rdb, 0)

	require.NoError(t, c.Close())
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, redis.ErrClosed)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, "text-embedding-3-small", e.Model())

	wrong, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	_, err = wrong.Embed(context.Background(), "hello")
	assert.Error(t, err, "dimension mismatch is rejected")

	_, err = NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)
}

func TestNew_SelectsProvider(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: "hash", Dimensions: 32}, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())

	_, err = New(context.Background(), Config{Provider: "openai"}, nil)
	assert.Error(t, err, "openai requires a key")

	_, err = New(context.Background(), Config{Provider: "word2vec"}, nil)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
