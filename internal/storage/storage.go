// Package storage 定义对账记录的存取接口
package storage

import (
	"context"
	"errors"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

var (
	// ErrRunNotFound 对账记录不存在
	ErrRunNotFound = errors.New("run not found")
	// ErrLocked 已有对账正在运行
	ErrLocked = errors.New("reconciliation already running")
)

// DefaultListLimit ListRuns 默认返回条数
const DefaultListLimit = 50

// RunRepository 定义对账记录存取操作。
type RunRepository interface {
	SaveRun(ctx context.Context, run *domain.RunRecord) error
	GetRun(ctx context.Context, id string) (*domain.RunRecord, error)
	// LatestRun 返回 StartedAt 最新的一条记录
	LatestRun(ctx context.Context) (*domain.RunRecord, error)
	// ListRuns 按 StartedAt 倒序返回最多 limit 条记录
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// Locker 保证同一时间最多一次对账。
//
// 锁已被占用时返回 ErrLocked，不等待。
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), err error)
}

// Pinger 可做连通性检查的后端
type Pinger interface {
	Ping(ctx context.Context) error
}

// MaxListLimit ListRuns 单次最多返回条数
const MaxListLimit = 1000

// NormalizeLimit 非正数使用默认值，过大时截断
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
