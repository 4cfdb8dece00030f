// Package notify 发送邮箱开通通知
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// ErrNoRecipient 通知没有收件人
var ErrNoRecipient = errors.New("notification has no recipient")

// Message 一封通知邮件
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender 发送通知
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc 将函数适配为 Sender
type SenderFunc func(ctx context.Context, msg Message) error

// Send 实现 Sender
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Vars 模板占位符的取值
type Vars struct {
	EmailAddress     string
	Password         string
	ForwardingTarget string
}

// Template 通知模板
//
// 支持的占位符: {{emailAddress}}、{{password}}、{{forwardingTarget}}，按字面替换。
type Template struct {
	Subject string `mapstructure:"subject"`
	Text    string `mapstructure:"text"`
	HTML    string `mapstructure:"html"`
}

// Render 替换占位符并生成发给 to 的邮件
func (t Template) Render(to string, v Vars) Message {
	r := strings.NewReplacer(
		"{{emailAddress}}", v.EmailAddress,
		"{{password}}", v.Password,
		"{{forwardingTarget}}", v.ForwardingTarget,
	)
	return Message{
		To:      to,
		Subject: r.Replace(t.Subject),
		Text:    r.Replace(t.Text),
		HTML:    r.Replace(t.HTML),
	}
}

// Validate 检查模板是否可用
func (t Template) Validate() error {
	if err := domain.ValidateSubject(t.Subject); err != nil {
		return err
	}
	if strings.TrimSpace(t.Text) == "" && strings.TrimSpace(t.HTML) == "" {
		return errors.New("template needs a text or html body")
	}
	return nil
}

// DefaultMailboxTemplate 真实邮箱的默认模板
var DefaultMailboxTemplate = Template{
	Subject: "An E-Mail Mailbox has been created for you",
	Text:    "An E-Mail Mailbox {{emailAddress}} has been created for you. Use password {{password}}",
	HTML:    "An E-Mail Mailbox {{emailAddress}} has been created for you. Use password {{password}}",
}

// DefaultForwardingTemplate 转发邮箱的默认模板
var DefaultForwardingTemplate = Template{
	Subject: "An E-Mail Address has been created for you",
	Text:    "The E-Mail Address {{emailAddress}} Mailbox has been created for you.",
	HTML:    "The E-Mail Address {{emailAddress}} Mailbox has been created for you.",
}

// DefaultTestTemplate 配置测试邮件模板
var DefaultTestTemplate = Template{
	Subject: "E-mail Notification Configuration Test ✔",
	Text:    "This is a test e-mail to check whether the configuration is fine.",
	HTML:    "This is a test e-mail to check whether the configuration is fine.",
}

// TemplateSet 按邮箱类型选择模板
type TemplateSet struct {
	Mailbox    Template
	Forwarding Template
}

// DefaultTemplates 返回默认模板集合
func DefaultTemplates() TemplateSet {
	return TemplateSet{Mailbox: DefaultMailboxTemplate, Forwarding: DefaultForwardingTemplate}
}

// For 返回指定类型的模板
func (s TemplateSet) For(kind domain.MailboxKind) (Template, bool) {
	switch kind {
	case domain.MailboxKindMailbox:
		return s.Mailbox, true
	case domain.MailboxKindForwarding:
		return s.Forwarding, true
	default:
		return Template{}, false
	}
}
