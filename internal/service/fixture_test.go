package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/database"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/formula"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// countingDispatcher 记录投递唤醒次数
type countingDispatcher struct {
	kicks int32
}

func (d *countingDispatcher) Kick() { atomic.AddInt32(&d.kicks, 1) }

type fixture struct {
	db         *gorm.DB
	dispatcher *countingDispatcher
	audit      service.AuditLogService
	templates  service.TemplateService
	documents  service.DocumentService
	approvals  service.ApprovalService
	sweeps     service.SweepService
	query      service.QueryService
	stats      service.StatisticsService
	org        service.OrgService
}

// setupTestDB 创建测试数据库(共享缓存内存库, 单连接)
func setupTestDB(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	seedOrg(t, db)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	dispatcher := &countingDispatcher{}
	engine := service.NewEngine(formula.NewEvaluator(formula.DefaultTimeout, log), dispatcher, nil, time.Minute)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	return &fixture{
		db:         db,
		dispatcher: dispatcher,
		audit:      audit,
		templates:  service.NewTemplateService(db, engine),
		documents:  service.NewDocumentService(db, engine, audit),
		approvals:  service.NewApprovalService(db, engine),
		sweeps:     service.NewSweepService(db, engine, audit),
		query:      service.NewQueryService(db),
		stats:      service.NewStatisticsService(db),
		org:        service.NewOrgService(db),
	}
}

// seedOrg 写入测试用组织架构: Finance 部门的 alice(manager), bob, carol, 以及 director dave.
// erin 是停用的 manager.
func seedOrg(t *testing.T, db *gorm.DB) {
	now := time.Now()
	deps := repository.NewDepartmentRepository(db)
	require.NoError(t, deps.Save(&model.DepartmentModel{ID: "dep-fin", Name: "Finance", Code: "FIN", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, deps.Save(&model.DepartmentModel{ID: "dep-ops", Name: "Operations", Code: "OPS", CreatedAt: now, UpdatedAt: now}))

	users := repository.NewUserRepository(db)
	for _, u := range []*model.UserModel{
		{ID: "alice", Name: "Alice", Role: "manager", DepartmentID: "dep-fin", Active: true},
		{ID: "bob", Name: "Bob", Role: "clerk", DepartmentID: "dep-fin", Active: true},
		{ID: "carol", Name: "Carol", Role: "clerk", DepartmentID: "dep-fin", Active: true},
		{ID: "dave", Name: "Dave", Role: "director", DepartmentID: "dep-ops", Active: true},
		{ID: "erin", Name: "Erin", Role: "manager", DepartmentID: "dep-ops", Active: false},
	} {
		u.CreatedAt, u.UpdatedAt = now, now
		require.NoError(t, users.Save(u))
	}
}

func as(user string) context.Context {
	return auth.WithActor(context.Background(), user)
}

// submit 创建模板和文档并提交
func (f *fixture) submit(t *testing.T, templateJSON string, data map[string]interface{}) (*workflow.Template, *model.DocumentModel) {
	t.Helper()
	tpl, err := f.templates.Create(as("admin"), []byte(templateJSON))
	require.NoError(t, err)
	doc := f.submitAgainst(t, tpl.ID, data)
	return tpl, doc
}

func (f *fixture) submitAgainst(t *testing.T, templateID string, data map[string]interface{}) *model.DocumentModel {
	t.Helper()
	doc, err := f.documents.Create(as("uploader"), &service.CreateDocumentRequest{
		Title:      "Purchase order 42",
		FileName:   "po-42.pdf",
		FileType:   "pdf",
		TemplateID: templateID,
		Data:       data,
	})
	require.NoError(t, err)
	submitted, err := f.documents.Submit(as("uploader"), doc.ID)
	require.NoError(t, err)
	return submitted
}

// pendingFor 返回文档中指定审批人的审批记录
func (f *fixture) pendingFor(t *testing.T, documentID, approver string) *workflow.Approval {
	t.Helper()
	approvals, err := f.documents.ListApprovals(documentID)
	require.NoError(t, err)
	for _, a := range approvals {
		if a.ApproverID == approver && a.Status == workflow.ApprovalPending {
			return a
		}
	}
	t.Fatalf("no pending approval for %s on document %s", approver, documentID)
	return nil
}

func (f *fixture) document(t *testing.T, id string) *model.DocumentModel {
	t.Helper()
	doc, err := f.documents.Get(id)
	require.NoError(t, err)
	return doc
}

func (f *fixture) stepStates(t *testing.T, documentID string) map[string]string {
	t.Helper()
	steps, err := f.documents.Steps(documentID)
	require.NoError(t, err)
	out := make(map[string]string, len(steps))
	for _, s := range steps {
		out[s.StepKey] = s.State
	}
	return out
}

func (f *fixture) events(t *testing.T, documentID string) []string {
	t.Helper()
	rows, err := repository.NewNotificationRepository(f.db).FindByDocument(documentID)
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Event)
	}
	return out
}

func auditActions(logs []*model.AuditLogModel, status string) []string {
	var out []string
	for _, l := range logs {
		if l.Status == status {
			out = append(out, l.Action)
		}
	}
	return out
}

const sequentialTemplate = `{
	"name": "Purchase approval",
	"department": "Finance",
	"steps": [
		{"id": "review", "name": "Manager review", "type": "approval", "assignTo": {"type": "user", "value": "alice"}},
		{"id": "sign", "name": "Director sign-off", "type": "sign", "assignTo": {"type": "user", "value": "dave"}, "dependencies": ["review"]}
	]
}`

const parallelTemplate = `{
	"name": "Committee approval",
	"department": "Finance",
	"steps": [
		{"id": "committee", "name": "Committee", "type": "approval", "parallel": true, "requiredApprovals": 2,
		 "assignTo": {"type": "user", "value": ["alice", "bob", "carol"]}}
	]
}`

func slaTemplate(deadlineHours, warningHours float64, backups string) string {
	return fmt.Sprintf(`{
	"name": "SLA approval",
	"department": "Finance",
	"steps": [
		{"id": "review", "name": "Manager review", "type": "approval",
		 "assignTo": {"type": "user", "value": "alice"},
		 "deadline": {"type": "fixed", "value": %v}}
	],
	"sla": {"warningThreshold": %v, "autoReassign": true, "backupAssignees": %s}
}`, deadlineHours, warningHours, backups)
}
