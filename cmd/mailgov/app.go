package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/handoff"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/health"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/logger"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/monitoring"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/notify"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/plesk"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/pool"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/service"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/filesystem"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/memory"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/postgres"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/redis"
	sqlstore "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/sql"
)

// app 聚合一次进程生命周期内的所有组件
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *monitoring.Metrics
	health  *health.HealthChecker

	plesk         *plesk.Client
	inventory     *service.InventoryService
	provisioner   *service.ProvisionService
	notifications *service.NotificationService
	detached      *pool.WorkerPool
	runs          *service.RunService

	closers []func()
}

// loadConfig 加载并校验配置
func loadConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateNotify(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger 按配置创建日志记录器
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
}

// newApp 组装所有组件
//
// runner 为 nil 时使用真实的 ExecRunner。
func newApp(cfg *config.Config, log *zap.Logger, runner command.Runner) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: monitoring.NewMetrics(),
	}
	a.health = health.NewHealthChecker(log.Named("health"))

	if runner == nil {
		runner = command.NewExecRunner(log.Named("command"),
			command.WithSudo(cfg.Plesk.UseSudo),
			command.WithTimeout(cfg.Plesk.CommandTimeout),
		)
		a.health.AddBinary("control_plane", cfg.Plesk.Binary)
	}

	a.plesk = plesk.NewClient(runner, plesk.Config{
		Binary:    cfg.Plesk.Binary,
		RateLimit: cfg.Plesk.RateLimit,
	}, a.metrics, log.Named("plesk"))
	a.inventory = service.NewInventoryService(a.plesk, log.Named("inventory"))
	a.provisioner = service.NewProvisionService(a.plesk, a.inventory, a.metrics, log.Named("provision"))

	templates, err := notificationTemplates(cfg.Notify)
	if err != nil {
		return nil, err
	}
	sender, err := newSender(cfg, log.Named("notify"), false)
	if err != nil {
		return nil, err
	}
	a.notifications = service.NewNotificationService(sender, templates, a.metrics, log.Named("notify"))

	a.detached = pool.NewWorkerPool(pool.Options{
		MaxWorkers:  cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		TaskTimeout: cfg.Notify.TaskTimeout,
	}, func(name string, err error) {
		a.metrics.RecordDetachedFailure()
		log.Warn("detached task failed", zap.String("task", name), zap.Error(err))
	}, log.Named("detached"))
	a.detached.Start()
	a.closers = append(a.closers, func() {
		if !a.detached.Stop(cfg.Notify.DrainTimeout) {
			log.Warn("detached tasks still running at shutdown")
		}
	})

	runs, locker, err := a.openStorage()
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier service.Notifier
	if cfg.Notify.Enabled {
		notifier = a.notifications
	}
	reconciler := service.NewReconcileService(service.ReconcileDeps{
		Inventory:      a.inventory,
		Provisioner:    a.provisioner,
		Notifier:       notifier,
		Detached:       a.detached,
		Passwords:      service.NewPasswordGenerator(cfg.Mailbox.PasswordLength),
		GovernedDomain: cfg.Mailbox.Domain,
		Metrics:        a.metrics,
		Logger:         log.Named("reconcile"),
	})

	a.runs = service.NewRunService(service.RunDeps{
		Loader: handoff.NewReader(cfg.Input.Path, handoff.TagSet{
			Mailbox:    cfg.Tags.Mailbox,
			Forwarding: cfg.Tags.ForwardingMailbox,
		}, log.Named("input")),
		Reconciler: reconciler,
		Runs:       runs,
		Locker:     locker,
		LockName:   cfg.Schedule.LockName,
		Metrics:    a.metrics,
		Logger:     log,
	})
	return a, nil
}

// openStorage 按配置打开对账记录存储和对账锁
//
// 锁的优先级: Redis > PostgreSQL advisory lock > 存储后端自带的进程内锁。
func (a *app) openStorage() (storage.RunRepository, storage.Locker, error) {
	cfg := a.cfg
	var (
		runs   storage.RunRepository
		locker storage.Locker
	)

	switch cfg.Storage.Backend {
	case "filesystem":
		store, err := filesystem.NewStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		store.SetStaleLockAge(cfg.Schedule.LockTimeout)
		a.health.AddStore("run_store", store)
		runs, locker = store, store
	case "database":
		store, err := sqlstore.NewStore(sqlstore.Options{
			Driver:          cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			AutoMigrate:     cfg.Database.AutoMigrate,
		})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.health.AddStore("run_store", store)
		runs = store
		a.log.Info("using database run store", zap.String("type", cfg.Database.Type))
	default:
		store := memory.NewStore(cfg.Storage.MaxRuns)
		runs, locker = store, store
	}

	if cfg.Storage.Backend == "database" && cfg.Database.Type == "postgres" {
		pg, err := postgres.New(cfg.Database, a.log.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pg.Close)
		locker = pg
	}

	if cfg.Redis.Address != "" {
		client, err := redis.New(cfg.Redis, a.log.Named("redis"))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.health.AddStore("redis", client)
		runs = redis.NewCachedRuns(runs, client, 0)
		locker = redis.NewLocker(client, cfg.Schedule.LockTimeout)
	}

	if locker == nil {
		locker = memory.NewStore(1)
	}
	return runs, locker, nil
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.log.Sync()
}

// waitDetached 单次运行结束后等待通知发送完成
func (a *app) waitDetached() {
	if !a.detached.Wait(a.cfg.Notify.DrainTimeout) {
		a.log.Warn("timed out waiting for notifications", zap.Duration("timeout", a.cfg.Notify.DrainTimeout))
	}
}

// runContext 为单次对账设置超时
func (a *app) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Schedule.RunTimeout > 0 {
		return context.WithTimeout(parent, a.cfg.Schedule.RunTimeout)
	}
	return context.WithCancel(parent)
}

// newSender 按配置创建通知发送器
//
// force 为 true 时即使通知未启用也使用 SMTP（用于测试邮件）。
func newSender(cfg *config.Config, log *zap.Logger, force bool) (notify.Sender, error) {
	if cfg.Notify.DryRun || (!cfg.Notify.Enabled && !force) {
		return notify.NewLogSender(log), nil
	}
	smtp, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		Security:      cfg.SMTP.Security,
		Username:      cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		From:          cfg.SMTP.From,
		HelloName:     cfg.SMTP.HelloName,
		Timeout:       cfg.SMTP.Timeout,
		TLSSkipVerify: cfg.SMTP.TLSSkipVerify,
	}, log)
	if err != nil {
		return nil, err
	}
	return notify.NewBreakerSender(smtp, notify.BreakerConfig{
		MaxFailures: cfg.Notify.BreakerFailures,
		OpenTimeout: cfg.Notify.BreakerTimeout,
	}, log), nil
}

// notificationTemplates 用配置覆盖默认模板
func notificationTemplates(cfg config.NotifyConfig) (notify.TemplateSet, error) {
	set := notify.DefaultTemplates()
	overlay := func(dst *notify.Template, src config.TemplateConfig, name string) error {
		if src.IsEmpty() {
			return nil
		}
		tpl := notify.Template{Subject: src.Subject, Text: src.Text, HTML: src.HTML}
		if err := tpl.Validate(); err != nil {
			return fmt.Errorf("notify.templates.%s: %w", name, err)
		}
		*dst = tpl
		return nil
	}
	if err := overlay(&set.Mailbox, cfg.Mailbox, "mailbox"); err != nil {
		return set, err
	}
	if err := overlay(&set.Forwarding, cfg.Forwarding, "forwarding_mailbox"); err != nil {
		return set, err
	}
	return set, nil
}
