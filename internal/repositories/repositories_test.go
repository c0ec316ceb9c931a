package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func createWorkspace(t *testing.T, repos Repositories, owner, name string, createdAt time.Time) *models.Workspace {
	t.Helper()
	ws := &models.Workspace{Name: name, UserID: owner, CreatedAt: createdAt}
	require.NoError(t, repos.Workspaces.Create(context.Background(), ws))
	return ws
}

func createTask(t *testing.T, repos Repositories, ws *models.Workspace, parent *models.Task, title string, createdAt time.Time) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:       title,
		WorkspaceID: ws.ID,
		UserID:      ws.UserID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if parent != nil {
		task.ParentID = &parent.ID
	}
	require.NoError(t, repos.Tasks.Create(context.Background(), task))
	return task
}

func TestWorkspaceRepository_FindByID(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	ws := createWorkspace(t, repos, "user_1", "Home", time.Now())

	found, err := repos.Workspaces.FindByID(ctx, ws.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Home", found.Name)

	missing, err := repos.Workspaces.FindByID(ctx, uuid.Must(uuid.NewV4()))
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWorkspaceRepository_ListByOwnerNewestFirst(t *testing.T) {
	repos := New(setupTestDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	createWorkspace(t, repos, "user_1", "first", base)
	createWorkspace(t, repos, "user_1", "second", base.Add(time.Minute))
	createWorkspace(t, repos, "user_2", "foreign", base.Add(2*time.Minute))

	workspaces, err := repos.Workspaces.ListByOwner(context.Background(), "user_1")
	require.NoError(t, err)
	require.Len(t, workspaces, 2)
	assert.Equal(t, "second", workspaces[0].Name)
	assert.Equal(t, "first", workspaces[1].Name)

	empty, err := repos.Workspaces.ListByOwner(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestWorkspaceRepository_UpdateAndDelete(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	ws := createWorkspace(t, repos, "user_1", "Home", time.Now())

	require.NoError(t, repos.Workspaces.Update(ctx, ws.ID, map[string]interface{}{"name": "Office"}))
	require.NoError(t, repos.Workspaces.Update(ctx, ws.ID, nil))

	found, err := repos.Workspaces.FindByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", found.Name)

	require.NoError(t, repos.Workspaces.Delete(ctx, ws.ID))
	found, err = repos.Workspaces.FindByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestTaskRepository_ListChildrenAndRoots(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ws := createWorkspace(t, repos, "user_1", "Home", base)
	other := createWorkspace(t, repos, "user_1", "Other", base)

	a := createTask(t, repos, ws, nil, "A", base)
	b := createTask(t, repos, ws, a, "B", base.Add(time.Second))
	c := createTask(t, repos, ws, a, "C", base.Add(2*time.Second))
	d := createTask(t, repos, ws, nil, "D", base.Add(3*time.Second))
	createTask(t, repos, other, nil, "X", base)

	roots, err := repos.Tasks.ListChildren(ctx, ws.ID, nil)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, a.ID, roots[0].ID)
	assert.Equal(t, d.ID, roots[1].ID)

	children, err := repos.Tasks.ListChildren(ctx, ws.ID, &a.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, b.ID, children[0].ID)
	assert.Equal(t, c.ID, children[1].ID)

	// A parent from another workspace yields nothing.
	foreign, err := repos.Tasks.ListChildren(ctx, other.ID, &a.ID)
	require.NoError(t, err)
	assert.Empty(t, foreign)

	ids, err := repos.Tasks.ChildIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID, c.ID}, ids)

	all, err := repos.Tasks.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "A", all[0].Title)
}

func TestTaskRepository_BulkOperations(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	ws := createWorkspace(t, repos, "user_1", "Home", now)
	a := createTask(t, repos, ws, nil, "A", now)
	b := createTask(t, repos, ws, a, "B", now)
	c := createTask(t, repos, ws, nil, "C", now)

	require.NoError(t, repos.Tasks.UpdateMany(ctx, []uuid.UUID{a.ID, b.ID}, map[string]interface{}{"completed": true}))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		task, err := repos.Tasks.FindByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, task.Completed)
	}
	untouched, err := repos.Tasks.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, untouched.Completed)

	require.NoError(t, repos.Tasks.DeleteMany(ctx, []uuid.UUID{a.ID, b.ID}))
	gone, err := repos.Tasks.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	deleted, err := repos.Tasks.DeleteByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestChunkIDs(t *testing.T) {
	ids := make([]uuid.UUID, batchSize*2+3)
	chunks := chunkIDs(ids)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], batchSize)
	assert.Len(t, chunks[2], 3)
	assert.Empty(t, chunkIDs(nil))
}

func TestTransact_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var created uuid.UUID
	err := Transact(ctx, db, func(repos Repositories) error {
		ws := &models.Workspace{Name: "Temp", UserID: "user_1"}
		if err := repos.Workspaces.Create(ctx, ws); err != nil {
			return err
		}
		created = ws.ID
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := New(db).Workspaces.FindByID(ctx, created)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestAuditRepository(t *testing.T) {
	repos := New(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repos.Audit.Create(ctx, &models.AuditLog{
			UserID:   "user_1",
			Action:   "task.update",
			Resource: "task",
			Decision: models.DecisionDenied,
		}))
	}

	entries, err := repos.Audit.ListByUser(ctx, "user_1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, models.DecisionDenied, entries[0].Decision)
}
