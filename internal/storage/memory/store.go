package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
)

// Store 使用内存保存对账记录，主要用于开发验证和单次运行。
type Store struct {
	mu      sync.RWMutex
	runs    map[string]*domain.RunRecord
	order   []string // 按保存顺序
	maxRuns int

	locksMu sync.Mutex
	locks   map[string]bool
}

// NewStore 创建一个内存存储实例。
//
// maxRuns 为保留的最大记录数，超出后丢弃最早保存的记录；0 表示不限制。
func NewStore(maxRuns int) *Store {
	return &Store{
		runs:    make(map[string]*domain.RunRecord),
		maxRuns: maxRuns,
		locks:   make(map[string]bool),
	}
}

// SaveRun 保存或覆盖对账记录
func (s *Store) SaveRun(_ context.Context, run *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = cloneRun(run)

	if s.maxRuns > 0 {
		for len(s.order) > s.maxRuns {
			delete(s.runs, s.order[0])
			s.order = s.order[1:]
		}
	}
	return nil
}

// GetRun 按 ID 获取对账记录
func (s *Store) GetRun(_ context.Context, id string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	return cloneRun(run), nil
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

// ListRuns 按开始时间倒序列出对账记录
func (s *Store) ListRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	runs := make([]domain.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *cloneRun(run))
	}
	s.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// TryLock 获取进程内的命名锁
func (s *Store) TryLock(_ context.Context, name string) (func(), error) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if s.locks[name] {
		return nil, storage.ErrLocked
	}
	s.locks[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.locksMu.Lock()
			delete(s.locks, name)
			s.locksMu.Unlock()
		})
	}, nil
}

// Ping 内存存储始终可用
func (s *Store) Ping(context.Context) error {
	return nil
}

func cloneRun(run *domain.RunRecord) *domain.RunRecord {
	cp := *run
	if run.Result != nil {
		result := *run.Result
		if run.Result.Details != nil {
			details := *run.Result.Details
			details.NewGovernedMailboxes = append([]string(nil), details.NewGovernedMailboxes...)
			details.Issues = append([]string(nil), details.Issues...)
			result.Details = &details
		}
		cp.Result = &result
	}
	return &cp
}
