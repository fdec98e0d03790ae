package model_test

import (
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestModelTableNames 测试表名
func TestModelTableNames(t *testing.T) {
	assert.Equal(t, "workflows", model.WorkflowModel{}.TableName())
	assert.Equal(t, "workflow_steps", model.WorkflowStepModel{}.TableName())
	assert.Equal(t, "documents", model.DocumentModel{}.TableName())
	assert.Equal(t, "documentapprovals", model.DocumentApprovalModel{}.TableName())
	assert.Equal(t, "document_steps", model.DocumentStepModel{}.TableName())
	assert.Equal(t, "auditlogs", model.AuditLogModel{}.TableName())
	assert.Equal(t, "notifications", model.NotificationModel{}.TableName())
	assert.Equal(t, "users", model.UserModel{}.TableName())
	assert.Equal(t, "departments", model.DepartmentModel{}.TableName())
	assert.Equal(t, "designations", model.DesignationModel{}.TableName())
}

// TestAuditLogModelValidation 测试审计日志模型验证
func TestAuditLogModelValidation(t *testing.T) {
	m := &model.AuditLogModel{
		ID:         "audit-001",
		ActorID:    "user-001",
		Action:     "create",
		EntityType: "workflow",
		EntityID:   "wf-001",
		Status:     model.AuditSuccess,
	}
	assert.NoError(t, m.Validate())

	m.Status = "DONE"
	assert.Error(t, m.Validate())

	m.Status = model.AuditWarning
	m.ActorID = ""
	assert.Error(t, m.Validate())
}

// TestDocumentApprovalModel_DomainRoundTrip 测试审批记录与领域对象互转
func TestDocumentApprovalModel_DomainRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(48 * time.Hour)
	a := &workflow.Approval{
		ID:             "ap-1",
		DocumentID:     "doc-1",
		WorkflowStepID: model.StepRowID("wf-1", 2, "s1"),
		StepKey:        "s1",
		ApproverID:     "u-1",
		Status:         workflow.ApprovalApproved,
		Action:         workflow.ActionSign,
		FormData:       map[string]interface{}{"ref": "A-7"},
		ApprovedAt:     &now,
		Deadline:       &deadline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m := model.NewDocumentApprovalModel(a)
	require.NoError(t, m.Validate())
	assert.Equal(t, "wf-1@v2/s1", m.WorkflowStepID)
	assert.Equal(t, a, m.ToDomain())
}

// TestWorkflowModel_RoundTrip 测试模板序列化与步骤行
func TestWorkflowModel_RoundTrip(t *testing.T) {
	tpl, errs := workflow.ValidateTemplate([]byte(`{
		"name": "Leave", "department": "HR",
		"steps": [
			{"id": "mgr", "name": "Manager", "type": "approval", "assignTo": {"type": "role", "value": "manager"}},
			{"id": "hr", "name": "HR", "type": "review", "assignTo": {"type": "department", "value": "HR"}, "dependencies": ["mgr"]}
		]
	}`))
	require.Empty(t, errs)
	tpl.ID = "wf-9"
	tpl.Version = 3

	m, steps, err := model.NewWorkflowModel(tpl, "admin")
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	require.Len(t, steps, 2)
	assert.Equal(t, "wf-9@v3/hr", steps[1].ID)
	assert.Equal(t, 1, steps[1].Position)

	decoded, err := m.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, tpl.Steps, decoded.Steps)
	assert.Equal(t, 3, decoded.Version)
}
