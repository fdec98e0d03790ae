package workflow_test

import (
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/stretchr/testify/assert"
)

func slaPolicy() *workflow.SLAPolicy {
	return &workflow.SLAPolicy{
		WarningThreshold: 4,
		AutoReassign:     true,
		BackupAssignees:  map[string]string{"manager": "u-role", "Finance": "u-dept"},
	}
}

// TestEvaluateSLA_Escalate 测试逾期后升级到角色备选人
func TestEvaluateSLA_Escalate(t *testing.T) {
	a := pendingApproval(-time.Hour)
	d := workflow.EvaluateSLA(a, slaPolicy(), workflow.ApproverProfile{Role: "manager", Department: "Finance"}, baseTime)
	assert.Equal(t, workflow.SLAEscalate, d.Kind)
	assert.Equal(t, "u-role", d.BackupID)
}

// TestEvaluateSLA_DepartmentFallback 测试角色无备选人时使用部门备选人
func TestEvaluateSLA_DepartmentFallback(t *testing.T) {
	a := pendingApproval(-time.Hour)
	d := workflow.EvaluateSLA(a, slaPolicy(), workflow.ApproverProfile{Role: "clerk", Department: "Finance"}, baseTime)
	assert.Equal(t, workflow.SLAEscalate, d.Kind)
	assert.Equal(t, "u-dept", d.BackupID)
}

// TestEvaluateSLA_Misconfigured 测试无可用备选人
func TestEvaluateSLA_Misconfigured(t *testing.T) {
	a := pendingApproval(-time.Hour)
	d := workflow.EvaluateSLA(a, slaPolicy(), workflow.ApproverProfile{Role: "clerk", Department: "Legal"}, baseTime)
	assert.Equal(t, workflow.SLAMisconfigured, d.Kind)
	assert.NotEmpty(t, d.Reason)
}

// TestEvaluateSLA_NoEscalation 测试不满足升级条件的情况
func TestEvaluateSLA_NoEscalation(t *testing.T) {
	profile := workflow.ApproverProfile{Role: "manager"}

	noReassign := slaPolicy()
	noReassign.AutoReassign = false
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(pendingApproval(-time.Hour), noReassign, profile, baseTime).Kind)

	escalated := pendingApproval(-time.Hour)
	escalated.IsEscalated = true
	escalated.EscalatedTo = "u-role"
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(escalated, slaPolicy(), profile, baseTime).Kind)

	done := pendingApproval(-time.Hour)
	done.Status = workflow.ApprovalApproved
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(done, slaPolicy(), profile, baseTime).Kind)

	noDeadline := pendingApproval(0)
	noDeadline.Deadline = nil
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(noDeadline, slaPolicy(), profile, baseTime).Kind)

	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(pendingApproval(-time.Hour), nil, profile, baseTime).Kind)
}

// TestEvaluateSLA_Warn 测试预警窗口内只提醒一次
func TestEvaluateSLA_Warn(t *testing.T) {
	profile := workflow.ApproverProfile{Role: "manager"}

	a := pendingApproval(3 * time.Hour)
	assert.Equal(t, workflow.SLAWarn, workflow.EvaluateSLA(a, slaPolicy(), profile, baseTime).Kind)

	far := pendingApproval(10 * time.Hour)
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(far, slaPolicy(), profile, baseTime).Kind)

	reminded := baseTime.Add(-30 * time.Minute)
	a.RemindersSent = 1
	a.LastReminderSent = &reminded
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(a, slaPolicy(), profile, baseTime).Kind)

	repeating := slaPolicy()
	repeating.ReminderInterval = 1
	assert.Equal(t, workflow.SLANone, workflow.EvaluateSLA(a, repeating, profile, baseTime).Kind)
	assert.Equal(t, workflow.SLAWarn, workflow.EvaluateSLA(a, repeating, profile, baseTime.Add(40*time.Minute)).Kind)
}

// TestEvaluateSLA_Pure 测试评估不修改审批记录
func TestEvaluateSLA_Pure(t *testing.T) {
	a := pendingApproval(-time.Hour)
	before := *a
	workflow.EvaluateSLA(a, slaPolicy(), workflow.ApproverProfile{Role: "manager"}, baseTime)
	assert.Equal(t, before, *a)
}
