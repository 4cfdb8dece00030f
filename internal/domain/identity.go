package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MailboxKind 期望身份对应的邮箱类型
type MailboxKind string

const (
	// MailboxKindMailbox 真实邮箱（带密码，可登录）
	MailboxKindMailbox MailboxKind = "mailbox"
	// MailboxKindForwarding 仅转发邮箱（转发到 TargetEmail）
	MailboxKindForwarding MailboxKind = "forwarding"
)

// Valid 判断邮箱类型是否已实现
func (k MailboxKind) Valid() bool {
	return k == MailboxKindMailbox || k == MailboxKindForwarding
}

// IdentityID 来源系统中的不透明标识
//
// 交接文件中的 id 可能是数字也可能是字符串，统一保存为字符串。
type IdentityID string

// UnmarshalJSON 同时接受 JSON 数字和字符串
func (id *IdentityID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = IdentityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity id must be a number or a string: %w", err)
	}
	*id = IdentityID(n.String())
	return nil
}

// MarshalJSON 纯数字的标识写为 JSON 数字
func (id IdentityID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if s != "" && strings.Trim(s, "0123456789") == "" && (len(s) == 1 || s[0] != '0') {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// DesiredIdentity 应当存在的邮箱记录
//
// 每次运行从交接文件重新构建，创建后不再修改。
type DesiredIdentity struct {
	ID          IdentityID  `json:"id"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Kind        MailboxKind `json:"kind"`
	TargetEmail string      `json:"targetEmail"`
	Description string      `json:"description"`
}

// EmailAddress 计算期望身份在受管域名下的邮箱地址
//
// 地址形如 first.last@domain，名字先经过 SanitizeName 处理再转为小写。
func (d DesiredIdentity) EmailAddress(governedDomain string) string {
	first := strings.ToLower(SanitizeName(d.FirstName))
	last := strings.ToLower(SanitizeName(d.LastName))
	return first + "." + last + "@" + strings.ToLower(governedDomain)
}

// DisplayName 返回 "First Last"
func (d DesiredIdentity) DisplayName() string {
	return strings.TrimSpace(SanitizeName(d.FirstName) + " " + SanitizeName(d.LastName))
}

// Validate 检查身份是否足以生成地址和创建命令
func (d DesiredIdentity) Validate(governedDomain string) error {
	if SanitizeName(d.FirstName) == "" || SanitizeName(d.LastName) == "" {
		return ErrEmptyName
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}
	if err := NewEmailValidator().ValidateEmail(d.EmailAddress(governedDomain)); err != nil {
		return err
	}
	if d.Kind == MailboxKindForwarding || d.TargetEmail != "" {
		if err := NewEmailValidator().ValidateAddress(d.TargetEmail); err != nil {
			return fmt.Errorf("target email: %w", err)
		}
	}
	return nil
}

// SanitizeName 只保留 ASCII 字母、数字和连字符
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
