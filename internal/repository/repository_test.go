package repository_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/database"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// setupTestDBForRepository 创建测试数据库(共享缓存内存库, 单连接)
func setupTestDBForRepository(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedApproval(t *testing.T, repo repository.DocumentApprovalRepository, id, approver string) *model.DocumentApprovalModel {
	t.Helper()
	deadline := now.Add(48 * time.Hour)
	m := &model.DocumentApprovalModel{
		ID:             id,
		DocumentID:     "doc-1",
		WorkflowStepID: model.StepRowID("wf-1", 1, "s1"),
		StepKey:        "s1",
		ApproverID:     approver,
		Status:         "PENDING",
		Deadline:       &deadline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := repo.CreateIfAbsent(m)
	require.NoError(t, err)
	require.True(t, created)
	return m
}

// TestDocumentApprovalRepository_CreateIfAbsent 测试唯一索引防止重复实例化
func TestDocumentApprovalRepository_CreateIfAbsent(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)

	seedApproval(t, repo, "ap-1", "u-1")

	dup := &model.DocumentApprovalModel{
		ID:             "ap-2",
		DocumentID:     "doc-1",
		WorkflowStepID: model.StepRowID("wf-1", 1, "s1"),
		StepKey:        "s1",
		ApproverID:     "u-1",
		Status:         "PENDING",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := repo.CreateIfAbsent(dup)
	require.NoError(t, err)
	assert.False(t, created)

	all, err := repo.FindByDocument("doc-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestDocumentApprovalRepository_DecideIsCompareAndSwap 测试状态变更的比较并交换语义
func TestDocumentApprovalRepository_DecideIsCompareAndSwap(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)
	seedApproval(t, repo, "ap-1", "u-1")

	ok, err := repo.Decide("ap-1", "APPROVED", "approve", "fine", datatypes.JSON(`{"a":1}`), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Decide("ap-1", "REJECTED", "reject", "late", nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID("ap-1")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", got.Status)
	assert.Equal(t, "fine", got.Comments)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(now))

	ok, err = repo.Remind("ap-1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.Escalate("ap-1", "u-9", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestDocumentApprovalRepository_ConcurrentRemind 测试并发提醒计数不丢失
func TestDocumentApprovalRepository_ConcurrentRemind(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)
	seedApproval(t, repo, "ap-1", "u-1")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.Remind("ap-1", now.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	got, err := repo.FindByID("ap-1")
	require.NoError(t, err)
	assert.Equal(t, n, got.RemindersSent)
	assert.NotNil(t, got.LastReminderSent)
}

// TestDocumentApprovalRepository_Escalate 测试升级字段
func TestDocumentApprovalRepository_Escalate(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)
	seedApproval(t, repo, "ap-1", "u-1")

	ok, err := repo.Escalate("ap-1", "u-9", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID("ap-1")
	require.NoError(t, err)
	assert.True(t, got.IsEscalated)
	assert.Equal(t, "u-9", got.EscalatedTo)
	assert.Equal(t, "PENDING", got.Status)
}

// TestDocumentApprovalRepository_FindPendingWithDeadline 测试巡检查询只返回进行中的步骤
func TestDocumentApprovalRepository_FindPendingWithDeadline(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)
	stepRepo := repository.NewDocumentStepRepository(db)
	docRepo := repository.NewDocumentRepository(db)

	require.NoError(t, docRepo.Create(&model.DocumentModel{
		ID: "doc-1", Title: "Invoice", UploadedBy: "u-0", TemplateID: "wf-1", Status: "IN_PROGRESS", CreatedAt: now, UpdatedAt: now,
	}))
	_, err := stepRepo.CreateIfAbsent(&model.DocumentStepModel{
		ID: "ds-1", DocumentID: "doc-1", StepKey: "s1", State: "ACTIVE", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	seedApproval(t, repo, "ap-1", "u-1")
	seedApproval(t, repo, "ap-2", "u-2")
	_, err = repo.Decide("ap-2", "APPROVED", "approve", "", nil, now)
	require.NoError(t, err)

	due, err := repo.FindPendingWithDeadline()
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ap-1", due[0].ID)

	ok, err := stepRepo.Transition("doc-1", "s1", "ACTIVE", "COMPLETED", "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	due, err = repo.FindPendingWithDeadline()
	require.NoError(t, err)
	assert.Empty(t, due)
}

// TestDocumentStepRepository_Transition 测试步骤状态的比较并交换
func TestDocumentStepRepository_Transition(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentStepRepository(db)

	created, err := repo.CreateIfAbsent(&model.DocumentStepModel{ID: "ds-1", DocumentID: "doc-1", StepKey: "s1", State: "ACTIVE", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateIfAbsent(&model.DocumentStepModel{ID: "ds-2", DocumentID: "doc-1", StepKey: "s1", State: "ACTIVE", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := repo.Transition("doc-1", "s1", "ACTIVE", "REJECTED", "rejected by u-1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Transition("doc-1", "s1", "ACTIVE", "COMPLETED", "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	steps, err := repo.FindByDocument("doc-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "REJECTED", steps[0].State)
}

// TestWorkflowRepository_Versions 测试模板版本与引用计数
func TestWorkflowRepository_Versions(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewWorkflowRepository(db)

	for v := 1; v <= 2; v++ {
		wf := &model.WorkflowModel{
			ID: "wf-1", Version: v, Name: fmt.Sprintf("Invoice v%d", v), Department: "Finance", Active: true,
			Data: datatypes.JSON(`{}`), CreatedAt: now, UpdatedAt: now.Add(time.Duration(v) * time.Minute),
		}
		steps := []*model.WorkflowStepModel{{
			ID: model.StepRowID("wf-1", v, "s1"), WorkflowID: "wf-1", WorkflowVersion: v, StepKey: "s1",
			Name: "Review", Type: "approval", Data: datatypes.JSON(`{}`), CreatedAt: now,
		}}
		require.NoError(t, repo.Create(wf, steps))
	}

	// 同一版本不可重复写入
	err := repo.Create(&model.WorkflowModel{ID: "wf-1", Version: 2, Name: "dup", Department: "Finance", Data: datatypes.JSON(`{}`), CreatedAt: now, UpdatedAt: now}, nil)
	assert.Error(t, err)

	latest, err := repo.FindByID("wf-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	v1, err := repo.FindByID("wf-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Invoice v1", v1.Name)

	versions, err := repo.FindVersions("wf-1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	list, err := repo.FindLatest()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Version)

	count, err := repo.CountApprovalReferences("wf-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	seedApproval(t, repository.NewDocumentApprovalRepository(db), "ap-1", "u-1")
	count, err = repo.CountApprovalReferences("wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.Delete("wf-1"))
	_, err = repo.FindByID("wf-1", 0)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	steps, err := repo.FindSteps("wf-1", 1)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

// TestAuditLogRepository_Append 测试审计日志追加与查询
func TestAuditLogRepository_Append(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewAuditLogRepository(db)

	require.NoError(t, repo.Append(&model.AuditLogModel{
		ID: "al-1", ActorID: "u-1", Action: "approve", EntityType: "document_approval", EntityID: "ap-1",
		Status: model.AuditSuccess, CreatedAt: now,
	}))
	assert.Error(t, repo.Append(&model.AuditLogModel{ID: "al-2", ActorID: "u-1", Action: "approve", EntityType: "document_approval", EntityID: "ap-1"}))

	logs, err := repo.FindByEntity("document_approval", "ap-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = repo.FindByActor("u-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = repo.FindByEntities("document_approval", []string{"ap-1", "ap-9"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// TestNotificationRepository_Outbox 测试通知发件箱状态流转
func TestNotificationRepository_Outbox(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewNotificationRepository(db)

	for i := 1; i <= 2; i++ {
		require.NoError(t, repo.Save(&model.NotificationModel{
			ID: fmt.Sprintf("n-%d", i), Event: "step.assigned", DocumentID: "doc-1",
			Recipients: datatypes.JSON(`["u-1"]`), Payload: datatypes.JSON(`{}`),
			CreatedAt: now.Add(time.Duration(i) * time.Second), UpdatedAt: now,
		}))
	}

	pending, err := repo.FindPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.MarkSent("n-1", now))
	require.NoError(t, repo.MarkFailed("n-2", "timeout", false, now))

	pending, err = repo.FindPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)

	require.NoError(t, repo.MarkFailed("n-2", "timeout", true, now))
	pending, err = repo.FindPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestUserRepository_ActiveLookups 测试按角色和部门查找在职员工
func TestUserRepository_ActiveLookups(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewUserRepository(db)

	require.NoError(t, repo.Save(&model.UserModel{ID: "u-1", Name: "A", Role: "manager", DepartmentID: "dep-fin", Active: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Save(&model.UserModel{ID: "u-2", Name: "B", Role: "manager", DepartmentID: "dep-fin", Active: false, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Save(&model.UserModel{ID: "u-3", Name: "C", Role: "clerk", DepartmentID: "dep-fin", Active: true, CreatedAt: now, UpdatedAt: now}))

	managers, err := repo.FindActiveByRole("manager")
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, "u-1", managers[0].ID)

	finance, err := repo.FindActiveByDepartment("dep-fin")
	require.NoError(t, err)
	assert.Len(t, finance, 2)
}

// TestDocumentRepository_FindByIDForUpdate 测试状态变更读取文档时加行锁
func TestDocumentRepository_FindByIDForUpdate(t *testing.T) {
	db := setupTestDBForRepository(t)
	docs := repository.NewDocumentRepository(db)
	require.NoError(t, docs.Create(&model.DocumentModel{
		ID: "doc-1", Title: "Invoice", UploadedBy: "u-0", TemplateID: "wf-1", Status: "IN_PROGRESS", CreatedAt: now, UpdatedAt: now,
	}))

	// SQLite 方言忽略锁子句, 查询照常返回
	doc, err := docs.FindByIDForUpdate("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", doc.Status)

	_, err = docs.FindByIDForUpdate("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// PostgreSQL 下生成 SELECT ... FOR UPDATE, 不需要真实连接
	pg, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=postgres dbname=eprabandhan sslmode=disable"}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sql := pg.ToSQL(func(tx *gorm.DB) *gorm.DB {
		_, _ = repository.NewDocumentRepository(tx).FindByIDForUpdate("doc-1")
		return tx
	})
	assert.Contains(t, sql, `FROM "documents"`)
	assert.Contains(t, sql, "FOR UPDATE")
}

// TestDocumentApprovalRepository_Actionable 测试步骤结束或文档完成后剩余的 PENDING 记录不再可处理
func TestDocumentApprovalRepository_Actionable(t *testing.T) {
	db := setupTestDBForRepository(t)
	repo := repository.NewDocumentApprovalRepository(db)
	stepRepo := repository.NewDocumentStepRepository(db)
	docRepo := repository.NewDocumentRepository(db)

	require.NoError(t, docRepo.Create(&model.DocumentModel{
		ID: "doc-1", Title: "Invoice", UploadedBy: "u-0", TemplateID: "wf-1", Status: "IN_PROGRESS", CreatedAt: now, UpdatedAt: now,
	}))
	_, err := stepRepo.CreateIfAbsent(&model.DocumentStepModel{
		ID: "ds-1", DocumentID: "doc-1", StepKey: "s1", State: "ACTIVE", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	seedApproval(t, repo, "ap-1", "u-1")
	seedApproval(t, repo, "ap-2", "u-2")

	count := func() int64 {
		var n int64
		require.NoError(t, db.Model(&model.DocumentApprovalModel{}).Scopes(repository.Actionable).Count(&n).Error)
		return n
	}
	assert.Equal(t, int64(2), count())

	_, err = repo.Decide("ap-1", "APPROVED", "approve", "", nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count())

	_, err = docRepo.Finish("doc-1", "APPROVED", now)
	require.NoError(t, err)
	assert.Zero(t, count())
}

// TestDocumentApprovalRepository_ForeignKeys 测试迁移为审批记录建立外键约束
func TestDocumentApprovalRepository_ForeignKeys(t *testing.T) {
	db := setupTestDBForRepository(t)
	for _, name := range []string{"Document", "WorkflowStep", "Approver"} {
		assert.True(t, db.Migrator().HasConstraint(&model.DocumentApprovalModel{}, name), name)
	}
}
