package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
)

// recordingMetrics 记录调用的指标
type recordingMetrics struct {
	NopRecorder
	creations     map[bool]int
	removals      map[bool]int
	notifications map[bool]int
	runs          []string
	governed      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		creations:     map[bool]int{},
		removals:      map[bool]int{},
		notifications: map[bool]int{},
	}
}

func (r *recordingMetrics) RecordCreation(_ string, ok bool) { r.creations[ok]++ }
func (r *recordingMetrics) RecordRemoval(ok bool)            { r.removals[ok]++ }
func (r *recordingMetrics) RecordNotification(ok bool)       { r.notifications[ok]++ }
func (r *recordingMetrics) SetGovernedMailboxes(n int)       { r.governed = n }
func (r *recordingMetrics) RecordRun(status string, _ time.Duration) {
	r.runs = append(r.runs, status)
}

func TestProvisionService_Create(t *testing.T) {
	ctx := context.Background()
	req := domain.ProvisionRequest{
		Identity: identity("Jane", "Doe", domain.MailboxKindMailbox),
		Address:  "jane.doe@example.com",
		Password: "Abc123defG",
	}

	tests := []struct {
		name    string
		outcome command.Outcome
		wantErr bool
		wantMsg string
	}{
		{"成功", command.Outcome{Kind: command.OutcomeSuccess, Message: "SUCCESS: Creation complete"}, false, ""},
		{"FAILURE 输出", command.Outcome{Kind: command.OutcomeFailure, Message: "FAILURE: exists"}, true, "FAILURE: exists"},
		{"执行错误", command.Outcome{Kind: command.OutcomeFailure, Err: command.ErrStderr}, true, command.ErrStderr.Error()},
		{"没有输出", command.Outcome{Kind: command.OutcomeAbsent}, true, "no output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := new(MockControlPlane)
			cp.On("Create", ctx, req).Return(tt.outcome, nil).Once()
			m := newRecordingMetrics()

			err := NewProvisionService(cp, nil, m, nil).Create(ctx, req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProvisionFailed)
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Equal(t, 1, m.creations[false])
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, m.creations[true])
			}
			cp.AssertExpectations(t)
		})
	}

	t.Run("未知类型不调用控制面", func(t *testing.T) {
		cp := new(MockControlPlane)
		bad := req
		bad.Identity.Kind = "group"

		err := NewProvisionService(cp, nil, nil, nil).Create(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrUnknownKind)
		cp.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestProvisionService_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("删除成功", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("Remove", ctx, "old@example.com").Return(command.Outcome{Kind: command.OutcomeSuccess})
		m := newRecordingMetrics()

		require.NoError(t, NewProvisionService(cp, nil, m, nil).Remove(ctx, "old@example.com"))
		assert.Equal(t, 1, m.removals[true])
	})

	t.Run("删除失败", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("Remove", ctx, "old@example.com").Return(command.Outcome{Kind: command.OutcomeFailure, Message: "FAILURE: not found"})

		err := NewProvisionService(cp, nil, nil, nil).Remove(ctx, "old@example.com")
		assert.ErrorIs(t, err, ErrProvisionFailed)
	})

	t.Run("只删除受管邮箱", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("List", ctx).Return([]domain.InventoryEntity{
			{Type: "mailname", Name: "gov@example.com"},
			{Type: "mailname", Name: "manual@example.com"},
		}, nil)
		cp.On("Info", ctx, "gov@example.com").Return(&domain.MailboxDetails{Description: domain.GovernedDescription("G")}, true)
		cp.On("Info", ctx, "manual@example.com").Return(&domain.MailboxDetails{Description: "manual"}, true)
		cp.On("Remove", ctx, "gov@example.com").Return(command.Outcome{Kind: command.OutcomeSuccess})

		s := NewProvisionService(cp, NewInventoryService(cp, nil), nil, nil)

		err := s.RemoveGoverned(ctx, "manual@example.com")
		assert.ErrorIs(t, err, ErrNotGoverned)
		cp.AssertNotCalled(t, "Remove", ctx, "manual@example.com")

		require.NoError(t, s.RemoveGoverned(ctx, "gov@example.com"))
		cp.AssertCalled(t, "Remove", ctx, "gov@example.com")
	})
}
