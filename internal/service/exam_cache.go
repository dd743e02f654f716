package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// definitionCache stores encoded exam definitions under a per-exam generation.
// Bump makes every entry written under an older generation unreachable, so a
// reader that loaded a definition before an update can never publish it to
// later readers.
type definitionCache interface {
	Generation(ctx context.Context, id uuid.UUID) (int64, error)
	Load(ctx context.Context, id uuid.UUID, gen int64) ([]byte, error)
	Store(ctx context.Context, id uuid.UUID, gen int64, data []byte) error
	Bump(ctx context.Context, id uuid.UUID) error
}

// errCacheMiss is returned by definitionCache.Load for an absent entry.
var errCacheMiss = errors.New("cache miss")

// ExamCache is a read-through Redis cache of full exam definitions.
// PostgreSQL stays authoritative: any Redis failure falls back to the store,
// and a nil client disables caching entirely.
type ExamCache struct {
	store ExamStore
	defs  definitionCache
	log   zerolog.Logger
}

// NewExamCache creates a new ExamCache.
func NewExamCache(store ExamStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamCache {
	var defs definitionCache
	if rdb != nil {
		defs = &redisDefinitions{rdb: rdb, ttl: ttl}
	}
	return newExamCache(store, defs, log)
}

func newExamCache(store ExamStore, defs definitionCache, log zerolog.Logger) *ExamCache {
	return &ExamCache{
		store: store,
		defs:  defs,
		log:   log.With().Str("component", "exam_cache").Logger(),
	}
}

// Get returns the exam definition with questions and choices.
func (c *ExamCache) Get(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	gen, cacheable := c.lookupGeneration(ctx, id)
	if cacheable {
		if exam := c.load(ctx, id, gen); exam != nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return exam, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	exam, err := c.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if cacheable {
		c.put(ctx, exam, gen)
	}
	return exam, nil
}

// Invalidate retires every cached copy of the exam. Call it after the write
// has committed.
func (c *ExamCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c.defs == nil {
		return
	}
	if err := c.defs.Bump(ctx, id); err != nil {
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to invalidate exam cache")
	}
}

// Prewarm loads every exam whose window is open or opens within horizon into
// Redis, so the start of a scheduled exam does not stampede the database.
func (c *ExamCache) Prewarm(ctx context.Context, horizon time.Duration) error {
	if c.defs == nil {
		return nil
	}

	exams, err := c.store.ListOpenOrUpcoming(ctx, time.Now().Add(horizon))
	if err != nil {
		return fmt.Errorf("list open exams: %w", err)
	}
	if len(exams) == 0 {
		c.log.Info().Msg("No open or upcoming exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		id := exams[i].ID
		gen, ok := c.lookupGeneration(ctx, id)
		if !ok {
			continue
		}
		exam, err := c.store.GetByID(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		c.put(ctx, exam, gen)
		warmed++
	}

	c.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

// lookupGeneration must run before the database read whose result is cached.
func (c *ExamCache) lookupGeneration(ctx context.Context, id uuid.UUID) (int64, bool) {
	if c.defs == nil {
		return 0, false
	}
	gen, err := c.defs.Generation(ctx, id)
	if err != nil {
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache unavailable, using database")
		return 0, false
	}
	return gen, true
}

func (c *ExamCache) load(ctx context.Context, id uuid.UUID, gen int64) *model.Exam {
	data, err := c.defs.Load(ctx, id, gen)
	if err != nil {
		if !errors.Is(err, errCacheMiss) {
			c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed, using database")
		}
		return nil
	}
	var exam model.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		c.log.Warn().Str("exam_id", id.String()).Msg("Discarding undecodable cached exam")
		return nil
	}
	return &exam
}

func (c *ExamCache) put(ctx context.Context, exam *model.Exam, gen int64) {
	data, err := json.Marshal(exam)
	if err != nil {
		c.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to encode exam for cache")
		return
	}
	if err := c.defs.Store(ctx, exam.ID, gen, data); err != nil {
		c.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to cache exam")
	}
}

// redisDefinitions keeps the generation counter without a TTL and each
// definition under exam:{id}:definition:{gen} with the cache TTL.
type redisDefinitions struct {
	rdb *redis.Client
	ttl time.Duration
}

func (r *redisDefinitions) Generation(ctx context.Context, id uuid.UUID) (int64, error) {
	gen, err := r.rdb.Get(ctx, config.CacheKey.ExamGenerationKey(id.String())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *redisDefinitions) Load(ctx context.Context, id uuid.UUID, gen int64) ([]byte, error) {
	data, err := r.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(id.String(), gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return data, err
}

func (r *redisDefinitions) Store(ctx context.Context, id uuid.UUID, gen int64, data []byte) error {
	return r.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(id.String(), gen), data, r.ttl).Err()
}

// Bump advances the generation and drops the entry of the generation it
// replaced. A late writer may still recreate that entry, but no reader asks
// for it any more.
func (r *redisDefinitions) Bump(ctx context.Context, id uuid.UUID) error {
	gen, err := r.rdb.Incr(ctx, config.CacheKey.ExamGenerationKey(id.String())).Result()
	if err != nil {
		return err
	}
	return r.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String(), gen-1)).Err()
}
