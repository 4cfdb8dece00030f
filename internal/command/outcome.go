package command

import "strings"

// OutcomeKind 控制面命令结果的类型
type OutcomeKind int

const (
	// OutcomeAbsent 没有结果（执行失败、标准错误非空或输出为空）
	OutcomeAbsent OutcomeKind = iota
	// OutcomeSuccess 输出以 SUCCESS 开头
	OutcomeSuccess
	// OutcomeFailure 有输出但不以 SUCCESS 开头
	OutcomeFailure
)

// SuccessToken 控制面成功输出的前缀
const SuccessToken = "SUCCESS"

// String 返回结果类型名称
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "absent"
	}
}

// Outcome 在命令边界解析一次的结果
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Err     error
}

// OK 是否成功
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Interpret 将 Runner 的返回值转换为 Outcome
func Interpret(out string, err error) Outcome {
	if err != nil {
		return Outcome{Kind: OutcomeAbsent, Err: err}
	}
	out = strings.TrimSpace(out)
	switch {
	case out == "":
		return Outcome{Kind: OutcomeAbsent}
	case strings.HasPrefix(out, SuccessToken):
		return Outcome{Kind: OutcomeSuccess, Message: out}
	default:
		return Outcome{Kind: OutcomeFailure, Message: out}
	}
}
