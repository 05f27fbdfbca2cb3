// Package testutil holds shared fixtures for package tests: an in-process
// Redis and in-memory repositories.
package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/persistence"
)

// FastRetry keeps reconnect loops short in tests.
var FastRetry = persistence.RetryPolicy{Step: time.Millisecond, Cap: 2 * time.Millisecond, MaxRetries: 1}

// NewRedis starts a miniredis server and returns a connected cache client.
// Closing the returned server simulates an outage.
func NewRedis(t *testing.T) (*persistence.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	r := persistence.NewRedisWithClient(client, FastRetry, zap.NewNop())
	t.Cleanup(r.Close)
	return r, mr
}
