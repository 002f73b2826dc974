package redis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(redis.Nil))
	assert.False(t, IsNilError(nil))
	assert.False(t, IsNilError(errors.New("connection reset")))
	assert.False(t, IsNilError(fmt.Errorf("wrapped: %w", errors.New("x"))))
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	_, err := NewClient(config.CacheConfig{Addr: "127.0.0.1:1", PoolSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
