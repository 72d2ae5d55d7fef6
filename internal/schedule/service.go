package schedule

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/auth"
	"scheduler/internal/store"
)

const cacheKey = "scheduler:settings"

// Service exposes the scheduling policy. Reads are cache-backed;
// updates write through and invalidate.
type Service struct {
	repo     Repository
	cache    *store.Redis
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewService(repo Repository, cache *store.Redis, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Get returns the current policy, materializing defaults on first read.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	if raw, ok := s.cache.CacheGet(ctx, cacheKey); ok {
		var cached Settings
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
	}

	settings, err := s.repo.GetOrCreate(ctx)
	if err != nil {
		return Settings{}, apperr.Internal("load schedule settings", err)
	}
	s.cachePut(ctx, settings)
	return settings, nil
}

// Update applies a partial settings change. Restricted to the admin
// tier; all field validation happens before any write.
func (s *Service) Update(ctx context.Context, actor auth.Actor, patch Patch) (Settings, error) {
	if !actor.Role.AdminTier() {
		return Settings{}, apperr.Forbidden("only managers may change schedule settings")
	}

	cur, err := s.repo.GetOrCreate(ctx)
	if err != nil {
		return Settings{}, apperr.Internal("load schedule settings", err)
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return Settings{}, err
	}

	updated, err := s.repo.Update(ctx, next, actor.ID)
	if err != nil {
		return Settings{}, apperr.Internal("update schedule settings", err)
	}

	s.cache.CacheDel(ctx, cacheKey)
	s.cachePut(ctx, updated)
	s.logger.Info("schedule settings updated",
		zap.String("updated_by", actor.ID),
		zap.Int("week_reset_day", updated.WeekResetDay),
		zap.Int("week_reset_hour", updated.WeekResetHour),
		zap.Int("availability_open_hours", updated.AvailabilityOpenHours),
	)
	return updated, nil
}

func (s *Service) cachePut(ctx context.Context, settings Settings) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	s.cache.CacheSet(ctx, cacheKey, string(raw), s.cacheTTL)
}
