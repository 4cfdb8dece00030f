package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// releaseScript 只删除自己持有的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX 的分布式锁，多个实例共享同一个 Redis 时互斥
type Locker struct {
	client *Client
	ttl    time.Duration
}

// NewLocker 创建分布式锁
//
// ttl 为锁的过期时间，持有者崩溃后锁在 ttl 后自动释放。
func NewLocker(client *Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Locker{client: client, ttl: ttl}
}

// TryLock 实现 storage.Locker
func (l *Locker) TryLock(ctx context.Context, name string) (func(), error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, storage.ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client.rdb, []string{key}, token).Err(); err != nil {
				l.client.log.Warn("failed to release lock", zap.String("lock", name), zap.Error(err))
			}
		})
	}, nil
}
