package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// 连接安全模式
const (
	SecurityTLS      = "tls"      // 隐式 TLS（通常为 465 端口）
	SecurityStartTLS = "starttls" // 明文连接后升级（通常为 587 端口）
	SecurityNone     = "none"     // 不加密，仅用于本地中继
)

// SMTPConfig SMTP 发送配置
type SMTPConfig struct {
	Host          string
	Port          int
	Security      string
	Username      string
	Password      string
	From          string
	HelloName     string
	Timeout       time.Duration
	TLSSkipVerify bool
}

// SMTPSender 通过 SMTP 提交通知邮件
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid smtp sender %q: %w", cfg.From, err)
	}
	switch cfg.Security {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	case "":
		cfg.Security = SecurityStartTLS
	default:
		return nil, fmt.Errorf("unknown smtp security mode %q", cfg.Security)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort(cfg.Security)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Send 发送邮件
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return fmt.Errorf("parse sender: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", msg.To, err)
	}

	body, err := Compose(s.cfg.From, msg, s.now())
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	c, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.addr(), err)
	}
	defer c.Close()

	if s.cfg.HelloName != "" {
		if err := c.Hello(s.cfg.HelloName); err != nil {
			return fmt.Errorf("hello: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}
	if err := c.SendMail(from.Address, []string{to.Address}, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", zap.Error(err))
	}

	s.logger.Info("notification sent",
		zap.String("recipient", to.Address),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.TLSSkipVerify,
	}

	switch s.cfg.Security {
	case SecurityTLS:
		return smtp.NewClient(tls.Client(conn, tlsConfig)), nil
	case SecurityStartTLS:
		c, err := smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	default:
		return smtp.NewClient(conn), nil
	}
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func defaultPort(security string) int {
	switch security {
	case SecurityTLS:
		return 465
	case SecurityStartTLS:
		return 587
	default:
		return 25
	}
}
