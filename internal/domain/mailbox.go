package domain

import "strings"

// GovernanceMarker 受管邮箱描述的固定前缀
//
// 控制面自身的描述字段是受管状态的唯一来源，没有额外的台账。
const GovernanceMarker = "Auto-maintained mail box"

// GovernedDescription 生成受管邮箱的描述
func GovernedDescription(description string) string {
	return GovernanceMarker + " for " + description
}

// InventoryEntity 控制面列表中的一项（邮箱、别名、邮件组等）
type InventoryEntity struct {
	Type    string          `json:"type" validate:"required"`
	Name    string          `json:"name" validate:"required"`
	Details *MailboxDetails `json:"details,omitempty"`
}

// MailboxDetails 单个条目的详细信息
//
// 仅在输出中出现终止行 SUCCESS 时才会生成；未出现的字段保持为空字符串。
type MailboxDetails struct {
	Mailname        string `json:"mailname,omitempty"`
	Domain          string `json:"domain,omitempty"`
	Mailbox         string `json:"mailbox,omitempty"`
	PasswordType    string `json:"passwordType,omitempty"`
	MailboxQuota    string `json:"mailboxQuota,omitempty"`
	Mailgroup       string `json:"mailgroup,omitempty"`
	GroupMembers    string `json:"groupMembers,omitempty"`
	AttachmentFiles string `json:"attachmentFiles,omitempty"`
	Autoresponders  string `json:"autoresponders,omitempty"`
	Description     string `json:"description,omitempty"`
}

// IsGoverned 判断条目是否为受管邮箱
//
// 没有详细信息的条目（详情获取失败）永远不是受管邮箱。
func IsGoverned(e InventoryEntity) bool {
	if e.Details == nil || e.Details.Description == "" {
		return false
	}
	return strings.HasPrefix(e.Details.Description, GovernanceMarker)
}
