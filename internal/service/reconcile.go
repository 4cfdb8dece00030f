package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/pool"
)

// GovernedLister 返回当前受管邮箱
type GovernedLister interface {
	GovernedMailboxes(ctx context.Context) ([]domain.InventoryEntity, error)
}

// Creator 创建受管邮箱，成功返回 nil
type Creator interface {
	Create(ctx context.Context, req domain.ProvisionRequest) error
}

// Notifier 通知邮箱所有者
type Notifier interface {
	Notify(ctx context.Context, req domain.ProvisionRequest) error
}

// Detacher 执行不阻塞对账的任务
//
// *pool.WorkerPool 实现该接口。
type Detacher interface {
	Go(name string, task pool.Task)
}

// ReconcileService 对比期望身份与受管邮箱并创建缺失的邮箱
type ReconcileService struct {
	inventory      GovernedLister
	provisioner    Creator
	notifier       Notifier
	detached       Detacher
	passwords      PasswordGenerator
	governedDomain string
	metrics        Recorder
	logger         *zap.Logger
}

// ReconcileDeps 对账服务依赖
type ReconcileDeps struct {
	Inventory      GovernedLister
	Provisioner    Creator
	Notifier       Notifier
	Detached       Detacher
	Passwords      PasswordGenerator
	GovernedDomain string
	Metrics        Recorder
	Logger         *zap.Logger
}

// NewReconcileService 创建对账服务
func NewReconcileService(deps ReconcileDeps) *ReconcileService {
	s := &ReconcileService{
		inventory:      deps.Inventory,
		provisioner:    deps.Provisioner,
		notifier:       deps.Notifier,
		detached:       deps.Detached,
		passwords:      deps.Passwords,
		governedDomain: strings.ToLower(deps.GovernedDomain),
		metrics:        deps.Metrics,
		logger:         deps.Logger,
	}
	if s.passwords == nil {
		s.passwords = NewPasswordGenerator(DefaultPasswordLength)
	}
	if s.metrics == nil {
		s.metrics = NopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// runBuilder 一次对账的累积状态，只属于单次调用
type runBuilder struct {
	details domain.RunDetails
}

func newRunBuilder(before int) *runBuilder {
	return &runBuilder{details: domain.RunDetails{
		CountOfGovernedMailboxesBefore: before,
		CountOfGovernedMailboxesAfter:  before,
		NewGovernedMailboxes:           []string{},
		Issues:                         []string{},
	}}
}

func (b *runBuilder) created(address string) {
	b.details.NewGovernedMailboxes = append(b.details.NewGovernedMailboxes, address)
	b.details.CountOfGovernedMailboxesAfter++
}

func (b *runBuilder) issue(address string, cause error) {
	msg := "Could not create governed mailbox for " + address
	if cause != nil {
		msg += ": " + cause.Error()
	}
	b.details.Issues = append(b.details.Issues, msg)
}

func (b *runBuilder) result() *domain.RunResult {
	details := b.details
	return &domain.RunResult{Success: true, Details: &details}
}

// Reconcile 执行一次对账
//
// 输入为空时直接返回 success=false，不访问控制面。清单无法获取或格式无效时返回错误，
// 不创建任何邮箱。单个邮箱创建失败记录为 issue，不影响 success。
// context 被取消时返回已完成部分的结果和错误。
func (s *ReconcileService) Reconcile(ctx context.Context, identities []domain.DesiredIdentity) (*domain.RunResult, error) {
	if len(identities) == 0 {
		s.logger.Info(domain.NoInputMessage)
		return domain.NoInputResult(), nil
	}

	s.logger.Info("checking for governed mailboxes")
	governed, err := s.inventory.GovernedMailboxes(ctx)
	if err != nil {
		s.logger.Error("reconciliation aborted, inventory not usable", zap.Error(err))
		return nil, err
	}
	s.logger.Info("governed mailboxes found", zap.Int("count", len(governed)))

	b := newRunBuilder(len(governed))
	s.logger.Info("cross-checking input data for mailboxes to be created", zap.Int("identities", len(identities)))

	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return b.result(), fmt.Errorf("reconciliation interrupted: %w", err)
		}
		s.reconcileOne(ctx, b, governed, identity)
	}

	result := b.result()
	s.metrics.SetGovernedMailboxes(result.Details.CountOfGovernedMailboxesAfter)
	s.logger.Info("reconciliation finished",
		zap.Int("before", result.Details.CountOfGovernedMailboxesBefore),
		zap.Int("after", result.Details.CountOfGovernedMailboxesAfter),
		zap.Int("issues", len(result.Details.Issues)),
	)
	return result, nil
}

func (s *ReconcileService) reconcileOne(ctx context.Context, b *runBuilder, governed []domain.InventoryEntity, identity domain.DesiredIdentity) {
	address := identity.EmailAddress(s.governedDomain)
	log := s.logger.With(zap.String("address", address), zap.String("id", string(identity.ID)))

	if IsMailboxGoverned(governed, address) {
		log.Debug("mailbox already governed, skipping")
		return
	}

	if err := identity.Validate(s.governedDomain); err != nil {
		log.Warn("identity cannot be provisioned", zap.Error(err))
		b.issue(address, err)
		s.metrics.RecordIssue()
		return
	}

	password, err := s.passwords()
	if err != nil {
		log.Error("could not generate password", zap.Error(err))
		b.issue(address, err)
		s.metrics.RecordIssue()
		return
	}
	req := domain.ProvisionRequest{Identity: identity, Address: address, Password: password}

	if err := s.provisioner.Create(ctx, req); err != nil {
		b.issue(address, err)
		s.metrics.RecordIssue()
		return
	}
	b.created(address)

	if s.notifier != nil && s.detached != nil {
		s.detached.Go("notify "+address, func(taskCtx context.Context) error {
			return s.notifier.Notify(taskCtx, req)
		})
	}
}
