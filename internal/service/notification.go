package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/notify"
)

// NotificationService 渲染并发送开通通知
type NotificationService struct {
	sender    notify.Sender
	templates notify.TemplateSet
	metrics   Recorder
	logger    *zap.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(sender notify.Sender, templates notify.TemplateSet, metrics Recorder, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &NotificationService{sender: sender, templates: templates, metrics: metrics, logger: logger}
}

// Notify 按邮箱类型发送通知给 TargetEmail
func (s *NotificationService) Notify(ctx context.Context, req domain.ProvisionRequest) error {
	tpl, ok := s.templates.For(req.Identity.Kind)
	if !ok {
		s.metrics.RecordNotification(false)
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, req.Identity.Kind)
	}

	msg := tpl.Render(req.Identity.TargetEmail, notify.Vars{
		EmailAddress:     req.Address,
		Password:         req.Password,
		ForwardingTarget: req.Identity.TargetEmail,
	})
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.RecordNotification(false)
		return fmt.Errorf("notify %s about %s: %w", req.Identity.TargetEmail, req.Address, err)
	}

	s.metrics.RecordNotification(true)
	s.logger.Info("owner notified",
		zap.String("address", req.Address),
		zap.String("recipient", req.Identity.TargetEmail),
	)
	return nil
}

// SendTest 发送配置测试邮件
func (s *NotificationService) SendTest(ctx context.Context, recipient string) error {
	msg := notify.DefaultTestTemplate.Render(recipient, notify.Vars{EmailAddress: recipient})
	return s.sender.Send(ctx, msg)
}
