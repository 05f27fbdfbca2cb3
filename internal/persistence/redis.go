package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/config"
)

var (
	// ErrStoreUnavailable wraps every failure to reach or use the cache.
	ErrStoreUnavailable = errors.New("cache store unavailable")
	// ErrConnectionFailed marks the terminal state after the retry ceiling.
	// The client never reconnects on its own once it is reported.
	ErrConnectionFailed = errors.New("redis connection failed")
)

// RetryPolicy bounds the connect loop: the wait before retry n is
// min(n*Step, Cap), and the loop gives up after MaxRetries retries.
type RetryPolicy struct {
	Step       time.Duration
	Cap        time.Duration
	MaxRetries int
}

// Backoff returns the delay before the given retry attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * p.Step
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// RetryPolicyFromConfig converts env settings into a policy.
func RetryPolicyFromConfig(cfg config.RedisConfig) RetryPolicy {
	return RetryPolicy{
		Step:       time.Duration(cfg.RetryStepMs) * time.Millisecond,
		Cap:        time.Duration(cfg.RetryCapMs) * time.Millisecond,
		MaxRetries: cfg.MaxRetries,
	}
}

// Redis wraps the go-redis client with a bounded reconnect policy. One
// instance is shared by all requests of the process.
type Redis struct {
	Client *redis.Client
	logger *zap.Logger
	policy RetryPolicy

	mu         sync.Mutex
	connected  bool
	connecting chan struct{} // closed when the running retry loop ends
	retrying   bool
	fatal      error
}

// NewRedis builds the client without dialing. The connection is
// established by Connect, or lazily by the first command.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisWithClient(redis.NewClient(opts), RetryPolicyFromConfig(cfg), logger), nil
}

// NewRedisWithClient wraps an existing go-redis client.
func NewRedisWithClient(client *redis.Client, policy RetryPolicy, logger *zap.Logger) *Redis {
	return &Redis{Client: client, policy: policy, logger: logger.Named("redis")}
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.DialTimeoutSeconds > 0 {
		timeout := time.Duration(cfg.DialTimeoutSeconds) * time.Second
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return opts, nil
}

// Connect pings Redis until it answers, backing off between attempts.
// It is safe to call repeatedly; after the retry ceiling is hit it keeps
// returning the same fatal error. Only one caller runs the retry loop and
// r.mu is not held while it pings or sleeps. Concurrent callers wait for the
// first ping, but fail fast with ErrStoreUnavailable once the loop is
// backing off.
func (r *Redis) Connect(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("%w: redis client not configured", ErrStoreUnavailable)
	}

	r.mu.Lock()
	for r.connecting != nil {
		if r.retrying {
			r.mu.Unlock()
			return fmt.Errorf("%w: reconnect in progress", ErrStoreUnavailable)
		}
		done := r.connecting
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
		r.mu.Lock()
	}
	if r.connected {
		r.mu.Unlock()
		return nil
	}
	if r.fatal != nil {
		r.mu.Unlock()
		return r.fatal
	}
	done := make(chan struct{})
	r.connecting = done
	r.mu.Unlock()

	fatal, err := r.dial(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connecting = nil
	r.retrying = false
	close(done)
	if err == nil {
		r.connected = true
		return nil
	}
	if fatal {
		r.fatal = err
	}
	return err
}

// dial runs the retry loop without holding r.mu. fatal reports that the
// retry ceiling was reached.
func (r *Redis) dial(ctx context.Context) (fatal bool, err error) {
	for attempt := 0; ; attempt++ {
		pingErr := r.Client.Ping(ctx).Err()
		if pingErr == nil {
			r.logger.Info("connected to redis", zap.Int("retries", attempt))
			return false, nil
		}
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
		if attempt >= r.policy.MaxRetries {
			r.logger.Error("too many retries, closing redis", zap.Int("retries", attempt), zap.Error(pingErr))
			return true, fmt.Errorf("%w: %w: giving up after %d retries: %v", ErrStoreUnavailable, ErrConnectionFailed, attempt, pingErr)
		}

		r.mu.Lock()
		r.retrying = true
		r.mu.Unlock()

		delay := r.policy.Backoff(attempt + 1)
		r.logger.Warn("redis unreachable, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(pingErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}

// failure returns the latched fatal error, if any.
func (r *Redis) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// Set stores value under key with the given expiry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.Connect(ctx); err != nil {
		return err
	}
	if err := r.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if err := r.Connect(ctx); err != nil {
		return false, err
	}
	n, err := r.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// Get returns the value of key; the boolean is false when key is absent.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if err := r.Connect(ctx); err != nil {
		return "", false, err
	}
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return val, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.Connect(ctx); err != nil {
		return err
	}
	if err := r.Client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. Redis reports -2 for a
// missing key and -1 for a key without expiry; both surface as values <= 0.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := r.Connect(ctx); err != nil {
		return 0, err
	}
	ttl, err := r.Client.TTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("ttl", err)
	}
	return ttl, nil
}

// DeleteReturningTTL reads the remaining TTL of key and deletes it in one
// MULTI/EXEC block, so the TTL is captured before the key disappears.
func (r *Redis) DeleteReturningTTL(ctx context.Context, key string) (time.Duration, error) {
	if err := r.Connect(ctx); err != nil {
		return 0, err
	}
	var ttlCmd *redis.DurationCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ttlCmd = pipe.TTL(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, unavailable("ttl+del", err)
	}
	return ttlCmd.Val(), nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity. Once the retry ceiling has been hit it
// reports the latched failure even if the server is reachable again, since
// every other operation keeps failing too.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	if err := r.failure(); err != nil {
		return err
	}
	return r.Client.Ping(ctx).Err()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
