package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

var (
	// ErrProvisionFailed 控制面没有返回 SUCCESS
	ErrProvisionFailed = errors.New("control plane did not report success")
	// ErrNotGoverned 地址不是受管邮箱，拒绝删除
	ErrNotGoverned = errors.New("mailbox is not governed")
)

// ProvisionService 创建和删除受管邮箱
type ProvisionService struct {
	cp        ControlPlane
	inventory *InventoryService
	metrics   Recorder
	logger    *zap.Logger
}

// NewProvisionService 创建邮箱开通服务
func NewProvisionService(cp ControlPlane, inventory *InventoryService, metrics Recorder, logger *zap.Logger) *ProvisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &ProvisionService{cp: cp, inventory: inventory, metrics: metrics, logger: logger}
}

// Create 在控制面创建受管邮箱
//
// 成功返回 nil。未知类型直接失败，不调用控制面。
func (s *ProvisionService) Create(ctx context.Context, req domain.ProvisionRequest) error {
	log := s.logger.With(
		zap.String("address", req.Address),
		zap.String("kind", string(req.Identity.Kind)),
	)

	if !req.Identity.Kind.Valid() {
		log.Error("unimplemented mailbox kind, refusing to create")
		s.metrics.RecordCreation(string(req.Identity.Kind), false)
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Identity.Kind)
	}

	log.Info("creating governed mailbox with a random password",
		zap.String("name", req.Identity.DisplayName()),
	)
	outcome, err := s.cp.Create(ctx, req)
	if err != nil {
		s.metrics.RecordCreation(string(req.Identity.Kind), false)
		return err
	}
	if !outcome.OK() {
		log.Warn("mailbox creation failed",
			zap.String("outcome", outcome.Kind.String()),
			zap.String("output", outcome.Message),
			zap.NamedError("cause", outcome.Err),
		)
		s.metrics.RecordCreation(string(req.Identity.Kind), false)
		return outcomeError(outcome)
	}

	log.Info("mailbox created", zap.String("output", outcome.Message))
	s.metrics.RecordCreation(string(req.Identity.Kind), true)
	return nil
}

// Remove 删除邮箱，不检查受管状态
func (s *ProvisionService) Remove(ctx context.Context, address string) error {
	s.logger.Info("removing mailbox", zap.String("address", address))

	outcome := s.cp.Remove(ctx, address)
	if !outcome.OK() {
		s.logger.Warn("mailbox removal failed",
			zap.String("address", address),
			zap.String("outcome", outcome.Kind.String()),
			zap.String("output", outcome.Message),
		)
		s.metrics.RecordRemoval(false)
		return outcomeError(outcome)
	}
	s.metrics.RecordRemoval(true)
	return nil
}

// RemoveGoverned 仅当地址当前为受管邮箱时才删除
func (s *ProvisionService) RemoveGoverned(ctx context.Context, address string) error {
	governed, err := s.inventory.GovernedMailboxes(ctx)
	if err != nil {
		return err
	}
	if !IsMailboxGoverned(governed, address) {
		return fmt.Errorf("%w: %s", ErrNotGoverned, address)
	}
	return s.Remove(ctx, address)
}

func outcomeError(o command.Outcome) error {
	switch {
	case o.Err != nil:
		return fmt.Errorf("%w: %v", ErrProvisionFailed, o.Err)
	case o.Message != "":
		return fmt.Errorf("%w: %s", ErrProvisionFailed, o.Message)
	default:
		return fmt.Errorf("%w: no output", ErrProvisionFailed)
	}
}
