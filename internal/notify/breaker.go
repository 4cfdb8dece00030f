package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig 熔断配置
type BreakerConfig struct {
	MaxFailures uint32        // 连续失败多少次后熔断
	OpenTimeout time.Duration // 熔断后多久进入半开状态
}

// BreakerSender 在 SMTP 服务不可用时快速失败
//
// 一次对账可能创建多个邮箱，中继故障时不再逐封等待超时。
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSender 包装 Sender
func NewBreakerSender(next Sender, cfg BreakerConfig, logger *zap.Logger) *BreakerSender {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerSender{next: next, cb: cb}
}

// Send 实现 Sender
func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, msg)
	})
	return err
}

// State 返回当前熔断状态
func (b *BreakerSender) State() string {
	return b.cb.State().String()
}

// LogSender 只记录日志不发送，用于 notify.dry_run
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建仅记录日志的发送器
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send 实现 Sender，不记录正文（可能包含密码）
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.logger.Info("notification suppressed (dry run)",
		zap.String("recipient", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
