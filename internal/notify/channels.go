package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/gigmarket/backend/internal/models"
)

// NotificationCreator persists notifications.
type NotificationCreator interface {
	Create(ctx context.Context, n *models.Notification) error
}

// StoreNotifier persists the notification and publishes it for realtime delivery.
type StoreNotifier struct {
	Store     NotificationCreator
	Publisher Publisher
}

func (s *StoreNotifier) Notify(ctx context.Context, n *models.Notification) error {
	if err := s.Store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.Publisher == nil {
		return nil
	}
	if err := s.Publisher.Publish(ctx, RoutingNotificationCreated, n); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// MQMailer hands emails to the mail relay through the broker, throttled to
// protect the relay.
type MQMailer struct {
	Publisher Publisher
	limiter   *rate.Limiter
}

// NewMQMailer allows perSecond sends with bursts of burst.
func NewMQMailer(p Publisher, perSecond float64, burst int) *MQMailer {
	return &MQMailer{Publisher: p, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (m *MQMailer) SendEmail(ctx context.Context, e Email) error {
	if e.To == "" {
		return fmt.Errorf("email has no recipient")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email throttled: %w", err)
	}
	return m.Publisher.Publish(ctx, RoutingEmailSend, e)
}

// RedisDeduper remembers keys in Redis for ttl.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisDeduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, logger: logger}
}

// AcquireOnce returns true the first time key is seen. When Redis is
// unavailable it allows delivery.
func (d *RedisDeduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedup check failed, allowing delivery", "key", key, "error", err)
		return true
	}
	return ok
}
