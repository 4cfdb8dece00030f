package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/plesk"
)

var (
	// ErrInventoryInvalid 控制面列表格式无效，本次对账中止
	ErrInventoryInvalid = errors.New("inventory listing invalid")
	// ErrInventoryUnavailable 控制面列表无法获取，本次对账中止
	ErrInventoryUnavailable = errors.New("inventory listing unavailable")
)

// ControlPlane 控制面操作
//
// *plesk.Client 实现该接口。
type ControlPlane interface {
	List(ctx context.Context) ([]domain.InventoryEntity, error)
	Info(ctx context.Context, address string) (*domain.MailboxDetails, bool)
	Create(ctx context.Context, req domain.ProvisionRequest) (command.Outcome, error)
	Remove(ctx context.Context, address string) command.Outcome
}

// InventoryService 读取控制面的邮箱清单
type InventoryService struct {
	cp     ControlPlane
	logger *zap.Logger
}

// NewInventoryService 创建清单服务
func NewInventoryService(cp ControlPlane, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{cp: cp, logger: logger}
}

// ListMailboxes 列出全部条目并逐个获取详细信息
//
// 共 1 + N 次顺序调用。单个条目详情获取失败时该条目保留但 Details 为 nil。
func (s *InventoryService) ListMailboxes(ctx context.Context) ([]domain.InventoryEntity, error) {
	s.logger.Info("listing mailboxes and their details")

	entities, err := s.cp.List(ctx)
	if err != nil {
		if errors.Is(err, plesk.ErrListingInvalid) {
			s.logger.Error("mailbox listing failed validation", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrInventoryInvalid, err)
		}
		s.logger.Error("mailbox listing unavailable", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInventoryUnavailable, err)
	}

	for i := range entities {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInventoryUnavailable, err)
		}
		details, ok := s.cp.Info(ctx, entities[i].Name)
		if !ok {
			s.logger.Warn("no details for mailbox", zap.String("address", entities[i].Name))
			continue
		}
		entities[i].Details = details
	}

	s.logger.Info("mailbox listing complete", zap.Int("count", len(entities)))
	return entities, nil
}

// GovernedMailboxes 返回受管邮箱
func (s *InventoryService) GovernedMailboxes(ctx context.Context) ([]domain.InventoryEntity, error) {
	entities, err := s.ListMailboxes(ctx)
	if err != nil {
		return nil, err
	}
	governed := FilterGoverned(entities)
	s.logger.Info("governed mailboxes determined",
		zap.Int("total", len(entities)),
		zap.Int("governed", len(governed)),
	)
	return governed, nil
}
