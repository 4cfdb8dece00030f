package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// Options 数据库连接参数
type Options struct {
	Driver          string // "mysql" or "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// runRow 对账记录表结构
type runRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	ExecutionID string    `gorm:"type:varchar(32);index"`
	Trigger     string    `gorm:"column:trigger_source;type:varchar(16)"`
	StartedAt   time.Time `gorm:"index"`
	FinishedAt  time.Time
	Status      string `gorm:"type:varchar(16);index"`
	Error       string `gorm:"type:text"`
	Result      string `gorm:"column:result_json;type:text"`
}

// TableName 指定表名
func (runRow) TableName() string {
	return "reconcile_runs"
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string
}

// NewStore 创建SQL数据库存储
func NewStore(opts Options) (*Store, error) {
	var sqlDriver string
	switch opts.Driver {
	case "mysql":
		sqlDriver = "mysql"
	case "postgres":
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", opts.Driver)
	}
	if opts.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := sql.Open(sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	var dialector gorm.Dialector
	if opts.Driver == "mysql" {
		dialector = mysql.New(mysql.Config{Conn: db})
	} else {
		dialector = postgres.New(postgres.Config{Conn: db})
	}
	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{db: db, gormDB: gormDB, driverName: opts.Driver}

	if opts.AutoMigrate {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping 检查数据库健康状态
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

// migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(&runRow{})
}

// SaveRun 保存或覆盖对账记录
func (s *Store) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	if err := s.gormDB.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun 按 ID 获取对账记录
func (s *Store) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	var row runRow
	err := s.gormDB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return fromRow(row)
}

// LatestRun 返回最近一次对账记录
func (s *Store) LatestRun(ctx context.Context) (*domain.RunRecord, error) {
	var row runRow
	err := s.gormDB.WithContext(ctx).Order("started_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return fromRow(row)
}

// ListRuns 按开始时间倒序列出对账记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	var rows []runRow
	err := s.gormDB.WithContext(ctx).
		Order("started_at DESC").
		Limit(storage.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]domain.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func toRow(run *domain.RunRecord) (runRow, error) {
	row := runRow{
		ID:          run.ID,
		ExecutionID: run.ExecutionID,
		Trigger:     string(run.Trigger),
		StartedAt:   run.StartedAt.UTC(),
		FinishedAt:  run.FinishedAt.UTC(),
		Status:      string(run.Status),
		Error:       run.Error,
	}
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return runRow{}, fmt.Errorf("failed to encode run result: %w", err)
		}
		row.Result = string(data)
	}
	return row, nil
}

func fromRow(row runRow) (*domain.RunRecord, error) {
	run := &domain.RunRecord{
		ID:          row.ID,
		ExecutionID: row.ExecutionID,
		Trigger:     domain.RunTrigger(row.Trigger),
		StartedAt:   row.StartedAt,
		FinishedAt:  row.FinishedAt,
		Status:      domain.RunStatus(row.Status),
		Error:       row.Error,
	}
	if row.Result != "" {
		var result domain.RunResult
		if err := json.Unmarshal([]byte(row.Result), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %s: %w", row.ID, err)
		}
		run.Result = &result
	}
	return run, nil
}
