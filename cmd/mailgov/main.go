// mailgov 根据交接文件在 Plesk 中维护受管邮箱
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
)

// rootOptions 测试时可替换的依赖
type rootOptions struct {
	runner command.Runner
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(rootOptions{out: os.Stdout}).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(opts rootOptions) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "mailgov",
		Short:        "Keep governed Plesk mailboxes in line with the hand-off file",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	root.SetOut(opts.out)

	// withApp 加载配置并组装组件后执行 fn
	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log, opts.runner)
		if err != nil {
			log.Error("startup failed", zap.Error(err))
			_ = log.Sync()
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}

	// withConfig 只加载配置和日志
	withConfig := func(fn func(cfg *config.Config, log *zap.Logger) error) error {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return fn(cfg, log)
	}

	root.AddCommand(
		newReconcileCmd(withApp),
		newServeCmd(withApp),
		newGovernedCmd(withApp),
		newRemoveCmd(withApp),
		newCheckInputCmd(withConfig),
		newImportInputCmd(withConfig),
		newNotifyTestCmd(withConfig),
		newTokenCmd(withConfig),
	)
	return root
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error

type configRunner func(fn func(cfg *config.Config, log *zap.Logger) error) error

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
