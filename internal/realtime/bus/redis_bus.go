package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

const defaultChannel = "analysis-progress"

var errNotInitialized = errors.New("redis progress bus not initialized")

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// envelope is the wire form on the pub/sub channel. Origin identifies the
// publishing process so its log lines can be matched across instances.
type envelope struct {
	Origin string              `json:"origin"`
	SentAt time.Time           `json:"sent_at"`
	Msg    realtime.SSEMessage `json:"msg"`
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
}

// NewRedisBus connects and pings before returning, so a misconfigured
// address fails at startup instead of on the first progress update.
func NewRedisBus(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = defaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	b := &redisBus{rdb: rdb, channel: channel, origin: uuid.NewString()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	b.log = log.With("service", "RedisProgressBus", "channel", channel, "origin", b.origin)
	b.log.Info("Progress relay connected", "addr", addr, "db", cfg.DB)
	return b, nil
}

func (b *redisBus) Ping(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return errNotInitialized
	}
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.rdb == nil {
		return errNotInitialized
	}
	raw, err := json.Marshal(envelope{Origin: b.origin, SentAt: time.Now().UTC(), Msg: msg})
	if err != nil {
		return fmt.Errorf("encode progress %s: %w", msg.Channel, err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder returns once the subscription is confirmed. Messages are
// handed to onMsg in arrival order until ctx ends.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if b == nil || b.rdb == nil {
		return errNotInitialized
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					b.log.Warn("Progress relay subscription closed")
					return
				}
				if m == nil {
					continue
				}
				msg, err := decodeEnvelope(m.Payload)
				if err != nil {
					b.log.Warn("Dropping malformed progress message", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func decodeEnvelope(payload string) (realtime.SSEMessage, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return realtime.SSEMessage{}, err
	}
	if env.Msg.Channel == "" {
		return realtime.SSEMessage{}, errors.New("progress message has no channel")
	}
	return env.Msg, nil
}
