package handlers_test

import (
	"context"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
)

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) List(ctx context.Context) ([]models.Workspace, error) {
	args := m.Called(ctx)
	workspaces, _ := args.Get(0).([]models.Workspace)
	return workspaces, args.Error(1)
}

func (m *MockWorkspaceService) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	args := m.Called(ctx, id)
	workspace, _ := args.Get(0).(*models.Workspace)
	return workspace, args.Error(1)
}

func (m *MockWorkspaceService) Create(ctx context.Context, input services.CreateWorkspaceInput) (uuid.UUID, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockWorkspaceService) Update(ctx context.Context, id uuid.UUID, update models.WorkspaceUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockWorkspaceService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error) {
	args := m.Called(ctx, workspaceID)
	tasks, _ := args.Get(0).([]models.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) GetChildren(ctx context.Context, workspaceID uuid.UUID, parentID *uuid.UUID) ([]models.Task, error) {
	args := m.Called(ctx, workspaceID, parentID)
	tasks, _ := args.Get(0).([]models.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) Create(ctx context.Context, input services.CreateTaskInput) (uuid.UUID, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockTaskService) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockTaskService) GetDescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, id)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *MockTaskService) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockSelector struct {
	mock.Mock
}

func (m *MockSelector) Current(ctx context.Context) (*models.Workspace, error) {
	args := m.Called(ctx)
	workspace, _ := args.Get(0).(*models.Workspace)
	return workspace, args.Error(1)
}

func (m *MockSelector) Select(ctx context.Context, workspaceID *uuid.UUID) (*models.Workspace, error) {
	args := m.Called(ctx, workspaceID)
	workspace, _ := args.Get(0).(*models.Workspace)
	return workspace, args.Error(1)
}
