package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

const latestRunKey = "mailgov:runs:latest"

// CachedRuns 在 Redis 中缓存最近一次对账记录，其余操作交给底层存储
type CachedRuns struct {
	storage.RunRepository
	client *Client
	ttl    time.Duration
}

// NewCachedRuns 创建带缓存的对账记录存储
func NewCachedRuns(next storage.RunRepository, client *Client, ttl time.Duration) *CachedRuns {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedRuns{RunRepository: next, client: client, ttl: ttl}
}

// SaveRun 保存记录并刷新缓存
func (c *CachedRuns) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	if err := c.RunRepository.SaveRun(ctx, run); err != nil {
		return err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return nil
	}
	if err := c.client.rdb.Set(ctx, latestRunKey, data, c.ttl).Err(); err != nil {
		// 缓存失败不影响保存结果
		c.client.log.Warn("failed to cache latest run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return nil
}

// LatestRun 优先从缓存读取
func (c *CachedRuns) LatestRun(ctx context.Context) (*domain.RunRecord, error) {
	data, err := c.client.rdb.Get(ctx, latestRunKey).Bytes()
	if err == nil {
		var run domain.RunRecord
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.client.log.Warn("failed to read cached run", zap.Error(err))
	}
	return c.RunRepository.LatestRun(ctx)
}
