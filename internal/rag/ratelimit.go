package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/pkg/logger"
)

const (
	minuteBucketFormat = "200601021504"
	hourBucketFormat   = "2006010215"
)

// Limiter counts requests per user in wall-clock-aligned minute and hour
// buckets kept in the shared store, so every process instance sees the
// same counters. Buckets are not sliding: a burst across a boundary can
// briefly reach 2x the ceiling, which is an accepted approximation.
//
// The limiter fails open: if the store cannot be read, the request is
// allowed rather than starving users on infrastructure trouble.
type Limiter struct {
	store     Store
	perMinute int
	perHour   int
	now       func() time.Time

	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

func NewLimiter(store Store, perMinute, perHour int) *Limiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if perHour <= 0 {
		perHour = 100
	}
	return &Limiter{
		store:     store,
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
		users:     make(map[int64]*sync.Mutex),
	}
}

// Allow reports whether the user may issue another request, incrementing
// both window counters when it does. Rejection happens before any
// increment, so a rejected request never consumes budget.
func (l *Limiter) Allow(ctx context.Context, userID int64) bool {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := l.now().UTC()
	minuteKey := fmt.Sprintf("ratelimit:minute:%d:%s", userID, now.Format(minuteBucketFormat))
	hourKey := fmt.Sprintf("ratelimit:hour:%d:%s", userID, now.Format(hourBucketFormat))

	minuteCount, err := l.count(ctx, minuteKey)
	if err != nil {
		logger.Warn("Rate limit read failed, allowing request", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	hourCount, err := l.count(ctx, hourKey)
	if err != nil {
		logger.Warn("Rate limit read failed, allowing request", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}

	if minuteCount >= l.perMinute || hourCount >= l.perHour {
		metrics.RateLimitRejections.Inc()
		logger.Warn("Rate limit exceeded",
			zap.Int64("user_id", userID),
			zap.Int("minute_count", minuteCount),
			zap.Int("hour_count", hourCount),
		)
		return false
	}

	l.bump(ctx, minuteKey, minuteCount+1, time.Minute)
	l.bump(ctx, hourKey, hourCount+1, time.Hour)
	return true
}

func (l *Limiter) count(ctx context.Context, key string) (int, error) {
	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %q: %w", key, err)
	}
	return n, nil
}

func (l *Limiter) bump(ctx context.Context, key string, value int, ttl time.Duration) {
	if err := l.store.SetEx(ctx, key, []byte(strconv.Itoa(value)), ttl); err != nil {
		logger.Warn("Rate limit counter write failed", zap.String("key", key), zap.Error(err))
	}
}

func (l *Limiter) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.users[userID] = lock
	}
	return lock
}
