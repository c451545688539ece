package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/muezzin/internal/model"
)

const DefaultTTL = 8 * 24 * time.Hour

// Setter is the part of *redis.Client the mirror writes through.
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Mirror copies freshly fetched schedule records into redis so sibling
// displays on the same network can read them without their own fetch.
type Mirror struct {
	rdb     Setter
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func NewMirror(rdb Setter, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Mirror{rdb: rdb, ttl: ttl, timeout: 2 * time.Second}
}

// Dial builds a client for address and checks it with a PING.
func Dial(ctx context.Context, address, username, password string) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       0,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", address, err)
	}
	m := NewMirror(rdb, 0)
	m.client = rdb
	return m, nil
}

// Key is the redis key for a schedule record.
func Key(k model.Key) string {
	return fmt.Sprintf("athan:%s:%s", k.Location, k.Date)
}

func (m *Mirror) Mirror(ctx context.Context, k model.Key, rec *model.ScheduleRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.rdb.Set(ctx, Key(k), body, m.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", Key(k)).Msg("failed to add schedule to redis")
		return err
	}
	return nil
}

func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
