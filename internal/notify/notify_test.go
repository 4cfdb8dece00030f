package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// testBackend 记录收到的邮件
type testBackend struct {
	mu       sync.Mutex
	username string
	password string
	authed   []string
	messages []receivedMessage
}

type receivedMessage struct {
	From string
	To   []string
	Data []byte
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b}, nil
}

func (b *testBackend) received() []receivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]receivedMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

type testSession struct {
	backend *testBackend
	from    string
	to      []string
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.backend.mu.Lock()
		s.backend.authed = append(s.backend.authed, username)
		s.backend.mu.Unlock()
		return nil
	}), nil
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, receivedMessage{From: s.from, To: s.to, Data: data})
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *testSession) Logout() error { return nil }

func startServer(t *testing.T, be *testBackend) (string, int) {
	t.Helper()
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func TestTemplate_Render(t *testing.T) {
	t.Run("真实邮箱模板", func(t *testing.T) {
		msg := DefaultMailboxTemplate.Render("jane@private.org", Vars{
			EmailAddress: "jane.doe@example.com",
			Password:     "Abc123defG",
		})
		assert.Equal(t, "jane@private.org", msg.To)
		assert.Equal(t, "An E-Mail Mailbox has been created for you", msg.Subject)
		assert.Equal(t, "An E-Mail Mailbox jane.doe@example.com has been created for you. Use password Abc123defG", msg.Text)
		assert.Equal(t, msg.Text, msg.HTML)
	})

	t.Run("转发模板", func(t *testing.T) {
		msg := DefaultForwardingTemplate.Render("jane@private.org", Vars{EmailAddress: "jane.doe@example.com"})
		assert.Equal(t, "An E-Mail Address has been created for you", msg.Subject)
		assert.Equal(t, "The E-Mail Address jane.doe@example.com Mailbox has been created for you.", msg.Text)
	})

	t.Run("全部占位符按字面替换", func(t *testing.T) {
		tpl := Template{Subject: "{{emailAddress}}", Text: "{{password}} -> {{forwardingTarget}} {{unknown}}"}
		msg := tpl.Render("x@y.de", Vars{EmailAddress: "a@b.de", Password: "p$1", ForwardingTarget: "c@d.de"})
		assert.Equal(t, "a@b.de", msg.Subject)
		assert.Equal(t, "p$1 -> c@d.de {{unknown}}", msg.Text)
	})
}

func TestTemplate_Validate(t *testing.T) {
	assert.NoError(t, DefaultMailboxTemplate.Validate())
	assert.NoError(t, DefaultForwardingTemplate.Validate())
	assert.Error(t, Template{Subject: "", Text: "x"}.Validate())
	assert.Error(t, Template{Subject: "x"}.Validate())
}

func TestTemplateSet_For(t *testing.T) {
	set := DefaultTemplates()

	tpl, ok := set.For(domain.MailboxKindMailbox)
	assert.True(t, ok)
	assert.Equal(t, DefaultMailboxTemplate, tpl)

	tpl, ok = set.For(domain.MailboxKindForwarding)
	assert.True(t, ok)
	assert.Equal(t, DefaultForwardingTemplate, tpl)

	_, ok = set.For("group")
	assert.False(t, ok)
}

func TestSMTPSender_Send(t *testing.T) {
	be := &testBackend{username: "mailer", password: "secret"}
	host, port := startServer(t, be)

	t.Run("认证后发送", func(t *testing.T) {
		sender, err := NewSMTPSender(SMTPConfig{
			Host:     host,
			Port:     port,
			Security: SecurityNone,
			Username: "mailer",
			Password: "secret",
			From:     "Mailbox Governance <noreply@example.com>",
			Timeout:  5 * time.Second,
		}, zap.NewNop())
		require.NoError(t, err)

		err = sender.Send(context.Background(), DefaultMailboxTemplate.Render("jane@private.org", Vars{
			EmailAddress: "jane.doe@example.com",
			Password:     "Abc123defG",
		}))
		require.NoError(t, err)

		msgs := be.received()
		require.Len(t, msgs, 1)
		assert.Equal(t, "noreply@example.com", msgs[0].From)
		assert.Equal(t, []string{"jane@private.org"}, msgs[0].To)
		assert.Contains(t, be.authed, "mailer")

		parsed, err := parseMessage(msgs[0].Data)
		require.NoError(t, err)
		assert.Equal(t, "An E-Mail Mailbox has been created for you", parsed.Subject)
		assert.Contains(t, parsed.Text, "Use password Abc123defG")
	})

	t.Run("认证失败", func(t *testing.T) {
		sender, err := NewSMTPSender(SMTPConfig{
			Host: host, Port: port, Security: SecurityNone,
			Username: "mailer", Password: "wrong", From: "noreply@example.com",
		}, nil)
		require.NoError(t, err)

		err = sender.Send(context.Background(), Message{To: "a@b.de", Subject: "s", Text: "t"})
		assert.Error(t, err)
	})

	t.Run("没有收件人", func(t *testing.T) {
		sender, err := NewSMTPSender(SMTPConfig{Host: host, Port: port, Security: SecurityNone, From: "noreply@example.com"}, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "s"}), ErrNoRecipient)
	})
}

func TestNewSMTPSender_Config(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "a@b.de"}, nil)
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "mail", From: "not an address"}, nil)
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "mail", From: "a@b.de", Security: "ssl3"}, nil)
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "mail", From: "a@b.de"}, nil)
	require.NoError(t, err)
	assert.Equal(t, SecurityStartTLS, s.cfg.Security)
	assert.Equal(t, 587, s.cfg.Port)
}

func TestBreakerSender(t *testing.T) {
	calls := 0
	failing := SenderFunc(func(context.Context, Message) error {
		calls++
		return errors.New("relay down")
	})
	b := NewBreakerSender(failing, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Hour}, nil)
	msg := Message{To: "a@b.de", Subject: "s", Text: "t"}

	assert.Error(t, b.Send(context.Background(), msg))
	assert.Error(t, b.Send(context.Background(), msg))
	assert.Equal(t, "open", b.State())

	// 熔断后不再调用下游
	assert.Error(t, b.Send(context.Background(), msg))
	assert.Equal(t, 2, calls)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(nil)
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@b.de"}))
	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrNoRecipient)
}
