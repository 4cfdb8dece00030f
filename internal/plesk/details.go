package plesk

import (
	"bufio"
	"strings"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// detailLabels `plesk bin mail -i` 输出中的固定标签
var detailLabels = map[string]func(d *domain.MailboxDetails, v string){
	"Mailname":         func(d *domain.MailboxDetails, v string) { d.Mailname = v },
	"Domain":           func(d *domain.MailboxDetails, v string) { d.Domain = v },
	"Mailbox":          func(d *domain.MailboxDetails, v string) { d.Mailbox = v },
	"Password type":    func(d *domain.MailboxDetails, v string) { d.PasswordType = v },
	"Mbox quota":       func(d *domain.MailboxDetails, v string) { d.MailboxQuota = v },
	"Mailgroup":        func(d *domain.MailboxDetails, v string) { d.Mailgroup = v },
	"Group member(s)":  func(d *domain.MailboxDetails, v string) { d.GroupMembers = v },
	"Attachment files": func(d *domain.MailboxDetails, v string) { d.AttachmentFiles = v },
	"Autoresponders":   func(d *domain.MailboxDetails, v string) { d.Autoresponders = v },
	"Description":      func(d *domain.MailboxDetails, v string) { d.Description = v },
}

// ParseDetails 解析详情输出
//
// 示例:
//
//	Mailname:           test
//	Domain:             example.com
//	Mailbox:            false
//	Password type:      sym
//	Mbox quota:         Default value (Unlimited)
//	Mailgroup:          true
//	Group member(s):    someone@example.org
//	Attachment files:   Empty
//	Autoresponders:     Disabled
//	Description:        Auto-maintained mail box for Jane Doe
//
//	SUCCESS: Gathering information for 'test@example.com' complete
//
// 没有以 SUCCESS 开头的行时返回 false。未知标签被忽略。
func ParseDetails(output string) (*domain.MailboxDetails, bool) {
	details := &domain.MailboxDetails{}
	success := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, command.SuccessToken) {
			success = true
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if set, known := detailLabels[strings.TrimSpace(label)]; known {
			set(details, strings.TrimSpace(value))
		}
	}
	if scanner.Err() != nil || !success {
		return nil, false
	}
	return details, true
}
