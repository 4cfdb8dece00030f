package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command/commandtest"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/handoff"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/logger"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/plesk"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage/memory"
)

// MockReconciler 模拟对账
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, ids []domain.DesiredIdentity) (*domain.RunResult, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunResult), args.Error(1)
}

type loaderFunc func(ctx context.Context) ([]domain.DesiredIdentity, error)

func (f loaderFunc) Load(ctx context.Context) ([]domain.DesiredIdentity, error) { return f(ctx) }

func fixedClock(start time.Time) func() time.Time {
	calls := 0
	return func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 5 * time.Second)
	}
}

func TestRunService_Run(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)
	jane := identity("Jane", "Doe", domain.MailboxKindMailbox)

	newService := func(loader IdentityLoader, rec Reconciler, store *memory.Store, m Recorder) *RunService {
		return NewRunService(RunDeps{
			Loader:     loader,
			Reconciler: rec,
			Runs:       store,
			Locker:     store,
			Metrics:    m,
			Now:        fixedClock(start),
		})
	}

	t.Run("成功运行保存记录", func(t *testing.T) {
		store := memory.NewStore(0)
		m := newRecordingMetrics()
		rec := new(MockReconciler)
		want := &domain.RunResult{Success: true, Details: &domain.RunDetails{
			CountOfGovernedMailboxesBefore: 1, CountOfGovernedMailboxesAfter: 2,
			NewGovernedMailboxes: []string{"jane.doe@example.com"}, Issues: []string{},
		}}
		rec.On("Reconcile", ctx, []domain.DesiredIdentity{jane}).Return(want, nil)

		loader := loaderFunc(func(context.Context) ([]domain.DesiredIdentity, error) {
			return []domain.DesiredIdentity{jane}, nil
		})
		run, err := newService(loader, rec, store, m).Run(ctx, domain.TriggerCLI)
		require.NoError(t, err)

		assert.Equal(t, domain.RunStatusSucceeded, run.Status)
		assert.Equal(t, logger.ExecutionID(start), run.ExecutionID)
		assert.Equal(t, domain.TriggerCLI, run.Trigger)
		assert.Equal(t, 5*time.Second, run.Duration())
		assert.Equal(t, want, run.Result)
		assert.Equal(t, []string{"succeeded"}, m.runs)

		saved, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, want, saved.Result)
	})

	t.Run("没有输入时状态为 no_input", func(t *testing.T) {
		store := memory.NewStore(0)
		rec := new(MockReconciler)
		rec.On("Reconcile", ctx, []domain.DesiredIdentity(nil)).Return(domain.NoInputResult(), nil)

		loader := loaderFunc(func(context.Context) ([]domain.DesiredIdentity, error) {
			return nil, handoff.ErrNoInput
		})
		run, err := newService(loader, rec, store, nil).Run(ctx, domain.TriggerSchedule)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusNoInput, run.Status)
		assert.False(t, run.Result.Success)
		assert.Equal(t, domain.NoInputMessage, run.Result.Message)
	})

	t.Run("清单不可用时状态为 aborted", func(t *testing.T) {
		store := memory.NewStore(0)
		m := newRecordingMetrics()
		rec := new(MockReconciler)
		rec.On("Reconcile", ctx, mock.Anything).Return(nil, ErrInventoryUnavailable)

		loader := loaderFunc(func(context.Context) ([]domain.DesiredIdentity, error) {
			return []domain.DesiredIdentity{jane}, nil
		})
		run, err := newService(loader, rec, store, m).Run(ctx, domain.TriggerAPI)
		assert.ErrorIs(t, err, ErrInventoryUnavailable)
		require.NotNil(t, run)
		assert.Equal(t, domain.RunStatusAborted, run.Status)
		assert.Nil(t, run.Result)
		assert.Contains(t, run.Error, "inventory listing unavailable")
		assert.Equal(t, []string{"aborted"}, m.runs)

		latest, err := store.LatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, run.ID, latest.ID)
	})

	t.Run("已有对账运行时跳过", func(t *testing.T) {
		store := memory.NewStore(0)
		unlock, err := store.TryLock(ctx, DefaultLockName)
		require.NoError(t, err)
		defer unlock()

		rec := new(MockReconciler)
		_, err = newService(loaderFunc(nil), rec, store, nil).Run(ctx, domain.TriggerSchedule)
		assert.ErrorIs(t, err, storage.ErrLocked)
		rec.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)

		runs, err := store.ListRuns(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

// TestRunService_InputFile 从交接文件到控制面调用次数的端到端检查
func TestRunService_InputFile(t *testing.T) {
	ctx := context.Background()
	tags := handoff.TagSet{Mailbox: "Mailbox", Forwarding: "E-Mail"}

	build := func(path string) (*RunService, *commandtest.Runner) {
		runner := commandtest.NewRunner().
			On("plesk bin mail -l -json", `[]`, nil).
			On("plesk bin mail --create", "SUCCESS: Creation of mailname complete", nil)
		client := plesk.NewClient(runner, plesk.Config{}, nil, nil)
		inv := NewInventoryService(client, nil)
		store := memory.NewStore(0)
		return NewRunService(RunDeps{
			Loader:     handoff.NewReader(path, tags, nil),
			Reconciler: newTestReconciler(inv, NewProvisionService(client, inv, nil, nil), nil, nil),
			Runs:       store,
			Locker:     store,
		}), runner
	}

	for name, content := range map[string]string{
		"空数组":     `[]`,
		"格式错误":    `[{"id": 1, "firstName": `,
		"全部未知类型":  `[{"id": 1, "type": "Choir", "firstName": "A", "lastName": "B"}]`,
	} {
		t.Run("不调用控制面/"+name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), handoff.DefaultPath)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			s, runner := build(path)
			run, err := s.Run(ctx, domain.TriggerCLI)
			require.NoError(t, err)
			assert.Equal(t, domain.RunStatusNoInput, run.Status)
			assert.Empty(t, runner.Calls())
		})
	}

	t.Run("文件不存在", func(t *testing.T) {
		s, runner := build(filepath.Join(t.TempDir(), "missing.json"))
		run, err := s.Run(ctx, domain.TriggerCLI)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusNoInput, run.Status)
		assert.Empty(t, runner.Calls())
	})

	t.Run("有效输入创建邮箱", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), handoff.DefaultPath)
		require.NoError(t, handoff.NewWriter().Write(path, []handoff.Record{
			{ID: "3", Type: "E-Mail", FirstName: "Max", LastName: "Mustermann", TargetEmail: "max@private.org", Description: "Max Mustermann"},
		}))

		s, runner := build(path)
		run, err := s.Run(ctx, domain.TriggerCLI)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusSucceeded, run.Status)
		assert.Equal(t, []string{"max.mustermann@example.com"}, run.Result.Details.NewGovernedMailboxes)
		assert.Equal(t, 1, runner.CallCount("plesk bin mail --create max.mustermann@example.com"))
	})
}
