package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/contextdesk-backend/internal/logger"
	"github.com/yungbote/contextdesk-backend/internal/utils"
)

// AuditEvent is one transition-reason record. Delivery is
// fire-and-forget: publish failures are logged and swallowed.
type AuditEvent struct {
	Subject    string    `json:"subject"`
	SubjectID  string    `json:"subject_id"`
	Transition string    `json:"transition"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

type AuditBus interface {
	Publish(ctx context.Context, event AuditEvent)
	Close() error
}

type auditBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewAuditBus(log *logger.Logger) (AuditBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(utils.GetEnv("REDIS_AUDIT_CHANNEL", "audit", log))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &auditBus{
		log:     log.With("service", "RedisAuditBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *auditBus) Publish(ctx context.Context, event AuditEvent) {
	if b == nil || b.rdb == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("audit event marshal failed", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("audit publish failed", "subject", event.Subject, "transition", event.Transition, "error", err)
	}
}

func (b *auditBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
