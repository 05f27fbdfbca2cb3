package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/observability"
)

const (
	validPrefix     = "token:"
	blacklistPrefix = "blacklist:"

	validMarker   = "valid"
	invalidMarker = "invalid"
)

// Cache is the subset of the key-value client the token store relies on.
// All errors are expected to wrap persistence.ErrStoreUnavailable.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	DeleteReturningTTL(ctx context.Context, key string) (time.Duration, error)
}

// Lookup is the tri-state answer of a store read. LookupUnknown means the
// store could not be consulted; callers pick their own default for it.
type Lookup int

const (
	LookupAbsent Lookup = iota
	LookupPresent
	LookupUnknown
)

func (l Lookup) String() string {
	switch l {
	case LookupAbsent:
		return "absent"
	case LookupPresent:
		return "present"
	default:
		return "unknown"
	}
}

// TokenStore owns the valid-token and blacklist namespaces in the cache.
type TokenStore struct {
	cache   Cache
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewTokenStore wires the store on top of a cache client. metrics may be nil.
func NewTokenStore(cache Cache, logger *zap.Logger, metrics *observability.Metrics) *TokenStore {
	return &TokenStore{cache: cache, logger: logger.Named("token_store"), metrics: metrics}
}

// Cache records token as valid for ttl. Errors wrap ErrStoreUnavailable.
func (s *TokenStore) Cache(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, validPrefix+token, validMarker, ttl); err != nil {
		s.metrics.RecordStoreLookup("cache", "error")
		s.logger.Warn("token cache failed", zap.Error(err))
		return err
	}
	s.metrics.RecordStoreLookup("cache", "ok")
	return nil
}

// BlacklistLookup reports whether token has been revoked.
func (s *TokenStore) BlacklistLookup(ctx context.Context, token string) Lookup {
	found, err := s.cache.Exists(ctx, blacklistPrefix+token)
	if err != nil {
		s.logger.Warn("blacklist check failed", zap.Error(err))
		return s.record("blacklist", LookupUnknown)
	}
	if found {
		return s.record("blacklist", LookupPresent)
	}
	return s.record("blacklist", LookupAbsent)
}

// ValidLookup reports whether token is cached with the valid marker.
func (s *TokenStore) ValidLookup(ctx context.Context, token string) Lookup {
	val, found, err := s.cache.Get(ctx, validPrefix+token)
	if err != nil {
		s.logger.Warn("valid-token lookup failed", zap.Error(err))
		return s.record("valid", LookupUnknown)
	}
	if found && val == validMarker {
		return s.record("valid", LookupPresent)
	}
	return s.record("valid", LookupAbsent)
}

// IsBlacklisted answers false when the store cannot be reached, so a
// transient cache error does not by itself reject a request.
func (s *TokenStore) IsBlacklisted(ctx context.Context, token string) bool {
	return s.BlacklistLookup(ctx, token) == LookupPresent
}

// Verify accepts a token only if it is not blacklisted and is present as
// valid. An unreachable store for the valid lookup counts as absent.
func (s *TokenStore) Verify(ctx context.Context, token string) bool {
	if s.IsBlacklisted(ctx, token) {
		return false
	}
	return s.ValidLookup(ctx, token) == LookupPresent
}

// Invalidate removes token from the valid namespace and blacklists it for
// whatever lifetime it had left. A token without remaining lifetime is not
// blacklisted; signature expiry rejects it on its own. Calling Invalidate
// twice leaves the first blacklist entry untouched.
func (s *TokenStore) Invalidate(ctx context.Context, token string) error {
	remaining, err := s.cache.DeleteReturningTTL(ctx, validPrefix+token)
	if err != nil {
		s.metrics.RecordStoreLookup("invalidate", "error")
		s.logger.Error("token invalidation failed", zap.Error(err))
		return err
	}
	if remaining <= 0 {
		s.metrics.RecordStoreLookup("invalidate", "skipped")
		s.logger.Debug("token had no remaining lifetime; not blacklisted")
		return nil
	}
	if err := s.cache.Set(ctx, blacklistPrefix+token, invalidMarker, remaining); err != nil {
		s.metrics.RecordStoreLookup("invalidate", "error")
		s.logger.Error("token blacklist write failed", zap.Error(err))
		return err
	}
	s.metrics.RecordStoreLookup("invalidate", "blacklisted")
	s.logger.Debug("token blacklisted", zap.Duration("ttl", remaining))
	return nil
}

func (s *TokenStore) record(op string, l Lookup) Lookup {
	s.metrics.RecordStoreLookup(op, l.String())
	return l
}
