package searchclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memoryKV) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type countingSearcher struct {
	calls int
	hits  []Hit
	err   error
}

func (s *countingSearcher) Search(context.Context, querybuilder.Request) ([]Hit, error) {
	s.calls++
	return s.hits, s.err
}

func TestCachedSearcherServesRepeats(t *testing.T) {
	next := &countingSearcher{hits: []Hit{{ID: "1", Score: 2, Description: "Bacon"}}}
	kv := newMemoryKV()
	c := NewCached(next, kv, "http://es/firebase/_search", time.Hour)
	req := querybuilder.NewFiltered().Build("bacon")

	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedSearcherKeysByEndpointAndBody(t *testing.T) {
	kv := newMemoryKV()
	a := NewCached(&countingSearcher{}, kv, "http://es/a/_search", time.Hour)
	b := NewCached(&countingSearcher{}, kv, "http://es/b/_search", time.Hour)

	body, err := querybuilder.Marshal(querybuilder.NewFiltered().Build("bacon"))
	require.NoError(t, err)
	other, err := querybuilder.Marshal(querybuilder.NewFiltered().Build("kale"))
	require.NoError(t, err)

	assert.NotEqual(t, a.buildKey(body), b.buildKey(body))
	assert.NotEqual(t, a.buildKey(body), a.buildKey(other))
	assert.Equal(t, a.buildKey(body), a.buildKey(body))
	assert.True(t, strings.HasPrefix(a.buildKey(body), CacheKeyPrefix))
}

func TestCachedSearcherDoesNotCacheErrors(t *testing.T) {
	next := &countingSearcher{err: &TransportError{Endpoint: "x", StatusCode: 503}}
	c := NewCached(next, newMemoryKV(), "x", time.Hour)
	req := querybuilder.NewFiltered().Build("bacon")

	_, err := c.Search(context.Background(), req)
	require.Error(t, err)
	_, err = c.Search(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedSearcherFallsThroughOnRedisFailure(t *testing.T) {
	kv := newMemoryKV()
	kv.getErr = errors.New("connection reset")
	next := &countingSearcher{hits: []Hit{{ID: "1", Description: "Bacon"}}}
	c := NewCached(next, kv, "x", time.Hour)

	hits, err := c.Search(context.Background(), querybuilder.NewFiltered().Build("bacon"))
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestCachedSearcherInvalidate(t *testing.T) {
	kv := newMemoryKV()
	kv.data["unrelated"] = "keep"
	next := &countingSearcher{hits: []Hit{{ID: "1", Description: "Bacon"}}}
	c := NewCached(next, kv, "x", time.Hour)
	req := querybuilder.NewFiltered().Build("bacon")

	_, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	deleted, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Contains(t, kv.data, "unrelated")

	_, err = c.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
