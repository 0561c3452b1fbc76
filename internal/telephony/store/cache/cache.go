// Package cache puts a Redis read-through cache in front of a mapping store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sovren/internal/platform/metrics"
	"sovren/internal/telephony/models"
	"sovren/pkg/platform/circuit"
	txcontext "sovren/pkg/platform/tx"
)

const (
	keyPrefix = "sovren:mapping:"
	genPrefix = "sovren:mapping:gen:"

	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupError  = "error"
	lookupBypass = "bypass"
)

// fillScript writes the entry only if the DID's generation still matches the
// one read before the backend lookup. KEYS: gen, entry. ARGV: gen, payload, ttl ms.
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[1]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// Backend is the store being cached.
type Backend interface {
	FindByDID(ctx context.Context, did string) (models.Mapping, error)
	Upsert(ctx context.Context, did, persona, cnam string) (models.Mapping, error)
	Delete(ctx context.Context, did string) (bool, error)
}

// Store serves FindByDID from Redis when it can and falls through to the
// backend otherwise. Writes go to the backend and drop the cached entry once
// the surrounding unit of work commits. Redis failures are logged and never
// returned: the backend stays the source of truth. With a breaker, reads stop
// touching Redis while it keeps failing; invalidations are always attempted.
//
// Every committed write bumps a per-DID generation counter before dropping the
// entry. A reader only fills the cache when the generation it saw before its
// backend lookup is unchanged, so a lookup that raced a write cannot put the
// old row back.
type Store struct {
	next    Backend
	client  redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	breaker *circuit.Breaker
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) { s.breaker = b }
}

func New(next Backend, client redis.Cmdable, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) FindByDID(ctx context.Context, did string) (models.Mapping, error) {
	key := keyPrefix + did
	if s.breaker != nil && !s.breaker.Allow() {
		s.count(lookupBypass)
		return s.next.FindByDID(ctx, did)
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	s.record(ctx, err)
	switch {
	case err == nil:
		var m models.Mapping
		if jsonErr := json.Unmarshal(raw, &m); jsonErr == nil {
			s.count(lookupHit)
			return m, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable cached mapping", "did", did)
		s.count(lookupError)
	case errors.Is(err, redis.Nil):
		s.count(lookupMiss)
	default:
		s.logger.WarnContext(ctx, "mapping cache read failed", "did", did, "error", err)
		s.count(lookupError)
	}

	gen, genErr := s.client.Get(ctx, genPrefix+did).Result()
	s.record(ctx, genErr)
	if errors.Is(genErr, redis.Nil) {
		gen, genErr = "0", nil
	}

	m, err := s.next.FindByDID(ctx, did)
	if err != nil {
		return models.Mapping{}, err
	}
	if genErr != nil {
		return m, nil
	}

	if payload, jsonErr := json.Marshal(m); jsonErr == nil {
		filled, fillErr := fillScript.Run(ctx, s.client, []string{genPrefix + did, key}, gen, payload, s.ttl.Milliseconds()).Int()
		s.record(ctx, fillErr)
		switch {
		case fillErr != nil:
			s.logger.WarnContext(ctx, "mapping cache write failed", "did", did, "error", fillErr)
		case filled == 0:
			s.logger.DebugContext(ctx, "skipped cache fill after concurrent write", "did", did)
		}
	}
	return m, nil
}

func (s *Store) Upsert(ctx context.Context, did, persona, cnam string) (models.Mapping, error) {
	m, err := s.next.Upsert(ctx, did, persona, cnam)
	if err != nil {
		return models.Mapping{}, err
	}
	s.invalidate(ctx, did)
	return m, nil
}

func (s *Store) Delete(ctx context.Context, did string) (bool, error) {
	deleted, err := s.next.Delete(ctx, did)
	if err != nil {
		return false, err
	}
	if deleted {
		s.invalidate(ctx, did)
	}
	return deleted, nil
}

func (s *Store) invalidate(ctx context.Context, did string) {
	// The hook may run after the request context is done.
	bg := context.WithoutCancel(ctx)
	txcontext.OnCommit(ctx, func() {
		_, err := s.client.TxPipelined(bg, func(pipe redis.Pipeliner) error {
			pipe.Incr(bg, genPrefix+did)
			pipe.Del(bg, keyPrefix+did)
			return nil
		})
		if err != nil {
			s.logger.WarnContext(bg, "mapping cache invalidation failed", "did", did, "error", err)
		}
	})
}

// record feeds a Redis call outcome to the breaker. A miss is a success.
func (s *Store) record(ctx context.Context, err error) {
	if s.breaker == nil {
		return
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		if s.breaker.RecordFailure() {
			s.logger.WarnContext(ctx, "mapping cache disabled after repeated redis failures", "breaker", s.breaker.Name())
		}
		return
	}
	if s.breaker.RecordSuccess() {
		s.logger.InfoContext(ctx, "mapping cache re-enabled", "breaker", s.breaker.Name())
	}
}

func (s *Store) count(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}
