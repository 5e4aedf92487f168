package ws

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// presenceTTL 在线标记的过期时间，由 pong 心跳续期
const presenceTTL = 90 * time.Second

// Presence 基于 redis 的在线状态，key 过期即视为离线
type Presence struct {
	rdb *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func (p *Presence) Online(ctx context.Context, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.rdb.Set(ctx, presenceKey(userID), "1", presenceTTL).Err()
}

// Refresh 心跳续期
func (p *Presence) Refresh(ctx context.Context, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.rdb.Expire(ctx, presenceKey(userID), presenceTTL).Err()
}

func (p *Presence) Offline(ctx context.Context, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

// IsOnline 查询用户是否有存活的在线标记
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
