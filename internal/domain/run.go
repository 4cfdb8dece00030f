package domain

import (
	"errors"
	"time"
)

// 领域错误定义
var (
	ErrEmptyName   = errors.New("first and last name must not be empty after sanitizing")
	ErrUnknownKind = errors.New("unimplemented mailbox kind")
)

// NoInputMessage 没有可用输入时的结果说明
const NoInputMessage = "No input data (or an error occurred)"

// RunResult 一次对账的结果
type RunResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Details *RunDetails `json:"details,omitempty"`
}

// RunDetails 对账明细
//
// 不变式: CountOfGovernedMailboxesAfter == CountOfGovernedMailboxesBefore + len(NewGovernedMailboxes)
type RunDetails struct {
	CountOfGovernedMailboxesBefore int      `json:"countOfGovernedMailboxesBefore"`
	CountOfGovernedMailboxesAfter  int      `json:"countOfGovernedMailboxesAfter"`
	NewGovernedMailboxes           []string `json:"newGovernedMailboxes"`
	Issues                         []string `json:"issues"`
}

// NoInputResult 返回输入缺失时的结果
func NoInputResult() *RunResult {
	return &RunResult{Success: false, Message: NoInputMessage}
}

// ProvisionRequest 一次创建尝试所需的数据
//
// Password 只存在于内存中，尝试结束后即丢弃。
type ProvisionRequest struct {
	Identity DesiredIdentity
	Address  string
	Password string
}

// RunTrigger 对账的触发来源
type RunTrigger string

const (
	TriggerCLI      RunTrigger = "cli"
	TriggerSchedule RunTrigger = "schedule"
	TriggerAPI      RunTrigger = "api"
)

// RunStatus 对账记录状态
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusNoInput   RunStatus = "no_input"
	RunStatusAborted   RunStatus = "aborted"
)

// RunRecord 持久化的对账记录
type RunRecord struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExecutionID string     `json:"executionId" gorm:"type:varchar(32);index"`
	Trigger     RunTrigger `json:"trigger" gorm:"type:varchar(16)"`
	StartedAt   time.Time  `json:"startedAt" gorm:"index"`
	FinishedAt  time.Time  `json:"finishedAt"`
	Status      RunStatus  `json:"status" gorm:"type:varchar(16);index"`
	Error       string     `json:"error,omitempty" gorm:"type:text"`
	Result      *RunResult `json:"result,omitempty" gorm:"-"`
}

// Duration 返回运行耗时
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
