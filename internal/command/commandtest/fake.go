// Package commandtest 提供测试用的 command.Runner 实现
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
)

// Response 预设的命令响应
type Response struct {
	Out string
	Err error
}

// Handler 根据命令动态生成响应
type Handler func(cmd command.Command) (string, error)

// Runner 记录所有调用并按参数前缀返回预设响应
//
// 匹配时使用 "name arg1 arg2 ..." 形式的字符串，最长前缀优先。
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	handlers  map[string]Handler
	calls     []command.Command
}

// NewRunner 创建测试执行器
func NewRunner() *Runner {
	return &Runner{
		responses: make(map[string]Response),
		handlers:  make(map[string]Handler),
	}
}

// On 为指定前缀注册固定响应
func (r *Runner) On(prefix string, out string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = Response{Out: out, Err: err}
	return r
}

// Handle 为指定前缀注册动态响应
func (r *Runner) Handle(prefix string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = h
	return r
}

// Run 实现 command.Runner
func (r *Runner) Run(_ context.Context, cmd command.Command) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	line := Line(cmd)

	best := ""
	for prefix := range r.handlers {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	h, isHandler := r.handlers[best]
	resp, isResponse := r.responses[best]
	r.mu.Unlock()

	switch {
	case isResponse:
		return resp.Out, resp.Err
	case isHandler:
		return h(cmd)
	default:
		return "", command.ErrExec
	}
}

// Calls 返回所有调用的副本
func (r *Runner) Calls() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]command.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount 返回以指定前缀开头的调用次数
func (r *Runner) CallCount(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(Line(c), prefix) {
			n++
		}
	}
	return n
}

// Line 将命令拼接为用于匹配的字符串
func Line(cmd command.Command) string {
	return strings.TrimSpace(cmd.Name + " " + strings.Join(cmd.Args, " "))
}
