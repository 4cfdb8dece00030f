package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 命令执行相关错误
var (
	// ErrStderr 命令向标准错误输出了内容
	ErrStderr = errors.New("command wrote to stderr")
	// ErrExec 命令无法执行或以非零状态退出
	ErrExec = errors.New("command execution failed")
)

// DefaultTimeout 单次命令的默认超时时间
const DefaultTimeout = 2 * time.Minute

// Command 一次外部命令调用
//
// Env 中的值只传给子进程，不会出现在参数或日志中。
type Command struct {
	Name string
	Args []string
	Env  map[string]string
}

// EnvKeys 返回排序后的环境变量名
func (c Command) EnvKeys() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Runner 执行外部命令
//
// 成功时返回去除首尾空白的标准输出；标准错误非空或执行失败时返回错误。
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner 基于 os/exec 的 Runner 实现
type ExecRunner struct {
	sudo    bool
	timeout time.Duration
	logger  *zap.Logger
}

// Option ExecRunner 可选项
type Option func(*ExecRunner)

// WithSudo 通过 sudo 执行命令，并保留 Env 中声明的变量
func WithSudo(enabled bool) Option {
	return func(r *ExecRunner) { r.sudo = enabled }
}

// WithTimeout 设置单次命令超时时间，0 表示使用默认值
func WithTimeout(d time.Duration) Option {
	return func(r *ExecRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewExecRunner 创建命令执行器
func NewExecRunner(logger *zap.Logger, opts ...Option) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ExecRunner{
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行命令
func (r *ExecRunner) Run(ctx context.Context, c Command) (string, error) {
	name, args := r.argv(c)
	rendered := Render(name, args...)

	rc, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("executing command",
		zap.String("command", rendered),
		zap.Strings("env_keys", c.EnvKeys()),
	)

	cmd := exec.CommandContext(rc, name, args...)
	cmd.WaitDelay = time.Second
	cmd.Env = os.Environ()
	for _, k := range c.EnvKeys() {
		cmd.Env = append(cmd.Env, k+"="+c.Env[k])
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if rc.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w after %s", rc.Err(), r.timeout)
		}
		r.logger.Error("could not execute command",
			zap.String("command", rendered),
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %s: %v", ErrExec, name, err)
	}

	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		r.logger.Error("command wrote to stderr",
			zap.String("command", rendered),
			zap.String("stderr", errOut),
		)
		return "", fmt.Errorf("%w: %s", ErrStderr, errOut)
	}

	out := strings.TrimSpace(stdout.String())
	r.logger.Debug("command finished",
		zap.String("command", rendered),
		zap.Duration("elapsed", elapsed),
		zap.Int("stdout_bytes", len(out)),
	)
	return out, nil
}

// argv 组装最终的可执行文件和参数
func (r *ExecRunner) argv(c Command) (string, []string) {
	if !r.sudo {
		return c.Name, c.Args
	}
	args := make([]string, 0, len(c.Args)+3)
	if keys := c.EnvKeys(); len(keys) > 0 {
		args = append(args, "--preserve-env="+strings.Join(keys, ","))
	}
	args = append(args, "--", c.Name)
	args = append(args, c.Args...)
	return "sudo", args
}
