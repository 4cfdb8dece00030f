package command

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Run(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(zap.NewNop())
	ctx := context.Background()

	t.Run("返回去除空白的标准输出", func(t *testing.T) {
		out, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "printf '  SUCCESS: done \\n\\n'"}})
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS: done", out)
	})

	t.Run("标准错误非空视为失败", func(t *testing.T) {
		out, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo ok; echo warn >&2"}})
		assert.Empty(t, out)
		assert.True(t, errors.Is(err, ErrStderr))
	})

	t.Run("非零退出视为失败", func(t *testing.T) {
		out, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo SUCCESS; exit 3"}})
		assert.Empty(t, out)
		assert.True(t, errors.Is(err, ErrExec))
	})

	t.Run("命令不存在", func(t *testing.T) {
		_, err := r.Run(ctx, Command{Name: "/nonexistent/plesk"})
		assert.True(t, errors.Is(err, ErrExec))
	})

	t.Run("环境变量传给子进程", func(t *testing.T) {
		out, err := r.Run(ctx, Command{
			Name: "sh",
			Args: []string{"-c", `printf '%s' "$PSA_PASSWORD"`},
			Env:  map[string]string{"PSA_PASSWORD": "s3cret"},
		})
		require.NoError(t, err)
		assert.Equal(t, "s3cret", out)
	})
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(zap.NewNop(), WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	assert.True(t, errors.Is(err, ErrExec))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecRunner_argv(t *testing.T) {
	t.Run("不使用 sudo", func(t *testing.T) {
		r := NewExecRunner(nil)
		name, args := r.argv(Command{Name: "plesk", Args: []string{"bin", "mail", "-l", "-json"}})
		assert.Equal(t, "plesk", name)
		assert.Equal(t, []string{"bin", "mail", "-l", "-json"}, args)
	})

	t.Run("sudo 保留环境变量", func(t *testing.T) {
		r := NewExecRunner(nil, WithSudo(true))
		name, args := r.argv(Command{
			Name: "plesk",
			Args: []string{"bin", "mail", "--create", "a@b.de"},
			Env:  map[string]string{"PSA_PASSWORD": "x"},
		})
		assert.Equal(t, "sudo", name)
		assert.Equal(t, []string{"--preserve-env=PSA_PASSWORD", "--", "plesk", "bin", "mail", "--create", "a@b.de"}, args)
	})
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		kind OutcomeKind
	}{
		{"成功", "SUCCESS: Creation of mailname 'a@b.de' complete", nil, OutcomeSuccess},
		{"成功前有空白", "\n  SUCCESS: ok", nil, OutcomeSuccess},
		{"失败", "FAILURE: mailname already exists", nil, OutcomeFailure},
		{"空输出", "", nil, OutcomeAbsent},
		{"执行错误", "SUCCESS", ErrExec, OutcomeAbsent},
		{"小写不算成功", "success: ok", nil, OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Interpret(tt.out, tt.err)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.kind == OutcomeSuccess, o.OK())
		})
	}
}

func TestRender(t *testing.T) {
	s := Render("plesk", "bin", "mail", "--create", "jane.doe@example.com", "-passwd", "", "-description", "Auto-maintained mail box for Jane Doe")
	assert.Equal(t, "plesk bin mail --create jane.doe@example.com -passwd '' -description 'Auto-maintained mail box for Jane Doe'", s)
}
