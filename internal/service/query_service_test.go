package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestQueryService_ListApprovals 测试审批记录查询
func TestQueryService_ListApprovals(t *testing.T) {
	f := newFixture(t)
	_, committee := f.submit(t, parallelTemplate, nil)
	_, escalated := f.submit(t, slaTemplate(48, 24, `{"manager": "dave"}`), nil)
	_, err := f.sweeps.Sweep(context.Background(), time.Now().Add(49*time.Hour))
	require.NoError(t, err)

	all, err := f.query.ListApprovals(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Pagination.Total)

	byDoc, err := f.query.ListApprovals(&service.ListApprovalsFilter{DocumentID: strPtr(committee.ID)})
	require.NoError(t, err)
	assert.Len(t, byDoc.Data, 3)

	// 替补审批人也能查到升级给自己的审批
	forDave, err := f.query.ListApprovals(&service.ListApprovalsFilter{Approver: strPtr("dave")})
	require.NoError(t, err)
	require.Len(t, forDave.Data, 1)
	assert.Equal(t, escalated.ID, forDave.Data[0].DocumentID)

	forAlice, err := f.query.ListApprovals(&service.ListApprovalsFilter{Approver: strPtr("alice")})
	require.NoError(t, err)
	assert.Len(t, forAlice.Data, 2)

	paged, err := f.query.ListApprovals(&service.ListApprovalsFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, paged.Data, 1)
	assert.Equal(t, 2, paged.Pagination.TotalPage)

	future := time.Now().Add(time.Hour)
	none, err := f.query.ListApprovals(&service.ListApprovalsFilter{StartTime: &future})
	require.NoError(t, err)
	assert.Empty(t, none.Data)
}

// TestQueryService_PendingExcludesFinishedSteps 测试步骤完成后剩余的待审批记录不再作为待办返回
func TestQueryService_PendingExcludesFinishedSteps(t *testing.T) {
	f := newFixture(t)
	_, doc := f.submit(t, parallelTemplate, nil)
	for _, user := range []string{"alice", "bob"} {
		_, err := f.approvals.Act(as(user), f.pendingFor(t, doc.ID, user).ID, &workflow.ActionRequest{Action: workflow.ActionApprove})
		require.NoError(t, err)
	}

	pending := string(workflow.ApprovalPending)
	forCarol, err := f.query.ListApprovals(&service.ListApprovalsFilter{Approver: strPtr("carol"), Status: &pending})
	require.NoError(t, err)
	assert.Empty(t, forCarol.Data)
	assert.Zero(t, forCarol.Pagination.Total)

	overdue, err := f.query.ListApprovals(&service.ListApprovalsFilter{Overdue: true})
	require.NoError(t, err)
	assert.Empty(t, overdue.Data)

	// 记录本身仍在, 按文档查询可以看到
	all, err := f.query.ListApprovals(&service.ListApprovalsFilter{Approver: strPtr("carol")})
	require.NoError(t, err)
	require.Len(t, all.Data, 1)
	assert.Equal(t, workflow.ApprovalPending, all.Data[0].Status)

	stats, err := f.stats.GetApprovalStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Zero(t, stats.Pending)
	assert.Equal(t, int64(1), stats.Superseded)
	assert.Zero(t, stats.Overdue)
}

// TestStatisticsService 测试审批和文档统计
func TestStatisticsService(t *testing.T) {
	f := newFixture(t)
	_, approved := f.submit(t, sequentialTemplate, nil)
	_, err := f.approvals.Act(as("alice"), f.pendingFor(t, approved.ID, "alice").ID, &workflow.ActionRequest{Action: workflow.ActionApprove})
	require.NoError(t, err)

	_, rejected := f.submit(t, sequentialTemplate, nil)
	_, err = f.approvals.Act(as("alice"), f.pendingFor(t, rejected.ID, "alice").ID, &workflow.ActionRequest{Action: workflow.ActionReject})
	require.NoError(t, err)

	stats, err := f.stats.GetApprovalStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Approved)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.InDelta(t, 50.0, stats.ApprovalRate, 0.001)
	assert.GreaterOrEqual(t, stats.AverageDecisionSeconds, 0.0)

	byStatus, err := f.stats.GetDocumentStatisticsByStatus()
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, s := range byStatus {
		counts[s.Status] = s.Count
	}
	assert.Equal(t, map[string]int64{"IN_PROGRESS": 1, "REJECTED": 1}, counts)

	byTemplate, err := f.stats.GetDocumentStatisticsByTemplate()
	require.NoError(t, err)
	require.Len(t, byTemplate, 2)
	for _, tc := range byTemplate {
		assert.Equal(t, "Purchase approval", tc.TemplateName)
		assert.Equal(t, int64(1), tc.Count)
	}
}
