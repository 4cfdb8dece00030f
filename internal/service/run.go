package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/handoff"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/logger"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// DefaultLockName 对账锁的默认名称
const DefaultLockName = "mailgov:reconcile"

// IdentityLoader 读取期望身份
//
// *handoff.Reader 实现该接口。没有输入时返回 handoff.ErrNoInput。
type IdentityLoader interface {
	Load(ctx context.Context) ([]domain.DesiredIdentity, error)
}

// Reconciler 执行一次对账
type Reconciler interface {
	Reconcile(ctx context.Context, identities []domain.DesiredIdentity) (*domain.RunResult, error)
}

// RunDeps 运行服务依赖
type RunDeps struct {
	Loader     IdentityLoader
	Reconciler Reconciler
	Runs       storage.RunRepository
	Locker     storage.Locker // 可为 nil
	LockName   string
	Metrics    Recorder
	Logger     *zap.Logger
	Now        func() time.Time
}

// RunService 加载输入、执行对账并保存对账记录
type RunService struct {
	deps RunDeps
}

// NewRunService 创建运行服务
func NewRunService(deps RunDeps) *RunService {
	if deps.LockName == "" {
		deps.LockName = DefaultLockName
	}
	if deps.Metrics == nil {
		deps.Metrics = NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &RunService{deps: deps}
}

// Run 执行一次完整的对账并保存记录
//
// 已有对账在运行时返回 storage.ErrLocked，不产生记录。
// 清单不可用等中止情况下返回的记录状态为 aborted，同时返回错误。
func (s *RunService) Run(ctx context.Context, trigger domain.RunTrigger) (*domain.RunRecord, error) {
	if s.deps.Locker != nil {
		unlock, err := s.deps.Locker.TryLock(ctx, s.deps.LockName)
		if err != nil {
			s.deps.Logger.Warn("reconciliation skipped", zap.String("trigger", string(trigger)), zap.Error(err))
			return nil, err
		}
		defer unlock()
	}

	start := s.deps.Now()
	rec := &domain.RunRecord{
		ID:          uuid.NewString(),
		ExecutionID: logger.ExecutionID(start),
		Trigger:     trigger,
		StartedAt:   start,
	}
	log := logger.ForRun(s.deps.Logger, rec.ExecutionID, rec.ID, "run")
	log.Info("reconciliation started", zap.String("trigger", string(trigger)))

	result, runErr := s.execute(ctx, log)
	rec.Result = result
	rec.FinishedAt = s.deps.Now()

	switch {
	case runErr != nil:
		rec.Status = domain.RunStatusAborted
		rec.Error = runErr.Error()
	case !result.Success:
		rec.Status = domain.RunStatusNoInput
	default:
		rec.Status = domain.RunStatusSucceeded
	}
	s.deps.Metrics.RecordRun(string(rec.Status), rec.Duration())

	if err := s.deps.Runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("could not save run record", zap.Error(err))
		runErr = errors.Join(runErr, fmt.Errorf("save run %s: %w", rec.ID, err))
	}

	log.Info("reconciliation finished",
		zap.String("status", string(rec.Status)),
		zap.Duration("elapsed", rec.Duration()),
	)
	return rec, runErr
}

func (s *RunService) execute(ctx context.Context, log *zap.Logger) (*domain.RunResult, error) {
	identities, err := s.deps.Loader.Load(ctx)
	if err != nil {
		if !errors.Is(err, handoff.ErrNoInput) {
			return nil, fmt.Errorf("load input: %w", err)
		}
		log.Info("no usable input data", zap.Error(err))
		identities = nil
	}
	return s.deps.Reconciler.Reconcile(ctx, identities)
}

// Get 获取对账记录
func (s *RunService) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	return s.deps.Runs.GetRun(ctx, id)
}

// Latest 获取最近一次对账记录
func (s *RunService) Latest(ctx context.Context) (*domain.RunRecord, error) {
	return s.deps.Runs.LatestRun(ctx)
}

// List 列出最近的对账记录
func (s *RunService) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return s.deps.Runs.ListRuns(ctx, limit)
}
