package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/command"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/plesk"
)

// MockControlPlane 模拟控制面
type MockControlPlane struct {
	mock.Mock
}

func (m *MockControlPlane) List(ctx context.Context) ([]domain.InventoryEntity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InventoryEntity), args.Error(1)
}

func (m *MockControlPlane) Info(ctx context.Context, address string) (*domain.MailboxDetails, bool) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.MailboxDetails), args.Bool(1)
}

func (m *MockControlPlane) Create(ctx context.Context, req domain.ProvisionRequest) (command.Outcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(command.Outcome), args.Error(1)
}

func (m *MockControlPlane) Remove(ctx context.Context, address string) command.Outcome {
	args := m.Called(ctx, address)
	return args.Get(0).(command.Outcome)
}

func TestInventoryService_ListMailboxes(t *testing.T) {
	ctx := context.Background()

	t.Run("逐个获取详情", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("List", ctx).Return([]domain.InventoryEntity{
			{Type: "mailname", Name: "a@example.com"},
			{Type: "mailname", Name: "b@example.com"},
			{Type: "alias", Name: "c@example.com"},
		}, nil)
		cp.On("Info", ctx, "a@example.com").Return(&domain.MailboxDetails{Description: domain.GovernedDescription("A")}, true)
		cp.On("Info", ctx, "b@example.com").Return(nil, false)
		cp.On("Info", ctx, "c@example.com").Return(&domain.MailboxDetails{Description: "alias"}, true)

		entities, err := NewInventoryService(cp, nil).ListMailboxes(ctx)
		require.NoError(t, err)
		require.Len(t, entities, 3)
		assert.NotNil(t, entities[0].Details)
		assert.Nil(t, entities[1].Details)
		assert.Equal(t, "alias", entities[2].Details.Description)
		cp.AssertNumberOfCalls(t, "Info", 3)
	})

	t.Run("过滤受管邮箱并保持顺序", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("List", ctx).Return([]domain.InventoryEntity{
			{Type: "mailname", Name: "z@example.com"},
			{Type: "mailname", Name: "x@example.com"},
			{Type: "mailname", Name: "y@example.com"},
		}, nil)
		cp.On("Info", ctx, "z@example.com").Return(&domain.MailboxDetails{Description: domain.GovernedDescription("Z")}, true)
		cp.On("Info", ctx, "x@example.com").Return(&domain.MailboxDetails{Description: "manual"}, true)
		cp.On("Info", ctx, "y@example.com").Return(&domain.MailboxDetails{Description: domain.GovernedDescription("Y")}, true)

		governed, err := NewInventoryService(cp, nil).GovernedMailboxes(ctx)
		require.NoError(t, err)
		require.Len(t, governed, 2)
		assert.Equal(t, "z@example.com", governed[0].Name)
		assert.Equal(t, "y@example.com", governed[1].Name)
	})

	t.Run("空列表", func(t *testing.T) {
		cp := new(MockControlPlane)
		cp.On("List", ctx).Return([]domain.InventoryEntity{}, nil)

		governed, err := NewInventoryService(cp, nil).GovernedMailboxes(ctx)
		require.NoError(t, err)
		assert.Empty(t, governed)
		cp.AssertNotCalled(t, "Info", mock.Anything, mock.Anything)
	})

	t.Run("错误映射", func(t *testing.T) {
		tests := []struct {
			name    string
			listErr error
			want    error
		}{
			{"格式无效", fmt.Errorf("%w: element 0", plesk.ErrListingInvalid), ErrInventoryInvalid},
			{"不可用", fmt.Errorf("%w: exit status 1", plesk.ErrListingUnavailable), ErrInventoryUnavailable},
			{"其他错误", errors.New("boom"), ErrInventoryUnavailable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cp := new(MockControlPlane)
				cp.On("List", ctx).Return(nil, tt.listErr)

				_, err := NewInventoryService(cp, nil).GovernedMailboxes(ctx)
				assert.ErrorIs(t, err, tt.want)
				assert.ErrorIs(t, err, tt.listErr)
			})
		}
	})

	t.Run("取消后停止获取详情", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cp := new(MockControlPlane)
		cp.On("List", cctx).Return([]domain.InventoryEntity{
			{Type: "mailname", Name: "a@example.com"},
			{Type: "mailname", Name: "b@example.com"},
		}, nil)
		cp.On("Info", cctx, "a@example.com").Run(func(mock.Arguments) { cancel() }).Return(nil, false)

		_, err := NewInventoryService(cp, nil).ListMailboxes(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		cp.AssertNumberOfCalls(t, "Info", 1)
	})
}

func TestIsMailboxGoverned(t *testing.T) {
	governed := []domain.InventoryEntity{{Type: "mailname", Name: "jane.doe@example.com"}}

	assert.True(t, IsMailboxGoverned(governed, "jane.doe@example.com"))
	assert.False(t, IsMailboxGoverned(governed, "Jane.Doe@example.com"))
	assert.False(t, IsMailboxGoverned(governed, " jane.doe@example.com"))
	assert.False(t, IsMailboxGoverned(nil, "jane.doe@example.com"))
}
