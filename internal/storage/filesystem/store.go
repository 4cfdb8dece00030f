package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// DefaultStaleLockAge 超过该时长的锁文件视为遗留锁
const DefaultStaleLockAge = time.Hour

// Store 文件系统存储实现
//
// 目录结构:
//
//	{base}/runs/{id}.json
//	{base}/locks/{name}.lock
type Store struct {
	basePath      string
	platformUtils *PlatformUtils
	staleLockAge  time.Duration
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}
	normalizedPath := platformUtils.NormalizePath(basePath)

	for _, dir := range []string{"runs", "locks"} {
		if err := os.MkdirAll(filepath.Join(normalizedPath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
		staleLockAge:  DefaultStaleLockAge,
	}, nil
}

// SetStaleLockAge 设置遗留锁的判定时长
func (s *Store) SetStaleLockAge(d time.Duration) {
	s.staleLockAge = d
}

// SaveRun 以 JSON 文件保存对账记录
func (s *Store) SaveRun(_ context.Context, run *domain.RunRecord) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	path := s.runPath(run.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write run: %w", err)
	}
	return nil
}

// GetRun 读取对账记录
func (s *Store) GetRun(_ context.Context, id string) (*domain.RunRecord, error) {
	return s.readRun(s.runPath(id))
}

// LatestRun 返回最近一次对账记录
func (s *Store) LatestRun(ctx context.Context) (*domain.RunRecord, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrRunNotFound
	}
	return &runs[0], nil
}

// ListRuns 读取全部记录文件并按开始时间倒序返回
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	limit = storage.NormalizeLimit(limit)

	entries, err := os.ReadDir(filepath.Join(s.basePath, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]domain.RunRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := s.readRun(filepath.Join(s.basePath, "runs", entry.Name()))
		if err != nil {
			// 损坏的文件不影响其他记录
			continue
		}
		runs = append(runs, *run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// TryLock 通过独占创建锁文件加锁，适用于同一主机上的多个进程
func (s *Store) TryLock(_ context.Context, name string) (func(), error) {
	path := filepath.Join(s.basePath, "locks", s.platformUtils.SanitizeFilename(name)+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) && s.removeStaleLock(path) {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, storage.ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()

	var once sync.Once
	return func() {
		once.Do(func() { os.Remove(path) })
	}, nil
}

// Ping 检查存储目录是否可访问
func (s *Store) Ping(context.Context) error {
	_, err := os.Stat(filepath.Join(s.basePath, "runs"))
	return err
}

func (s *Store) removeStaleLock(path string) bool {
	info, err := os.Stat(path)
	if err != nil || s.staleLockAge <= 0 || time.Since(info.ModTime()) < s.staleLockAge {
		return false
	}
	return os.Remove(path) == nil
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.basePath, "runs", s.platformUtils.SanitizeFilename(id)+".json")
}

func (s *Store) readRun(path string) (*domain.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to read run: %w", err)
	}

	var run domain.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", filepath.Base(path), err)
	}
	return &run, nil
}
