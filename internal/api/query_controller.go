package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
)

// QueryController 查询统计控制器
type QueryController struct {
	queryService      service.QueryService
	statisticsService service.StatisticsService
}

// NewQueryController 创建查询控制器
func NewQueryController(queryService service.QueryService, statisticsService service.StatisticsService) *QueryController {
	return &QueryController{
		queryService:      queryService,
		statisticsService: statisticsService,
	}
}

// ListApprovals 审批记录列表. approver 同时匹配升级后的替补审批人.
func (c *QueryController) ListApprovals(ctx *gin.Context) {
	page, pageSize, ok := pageParams(ctx)
	if !ok {
		return
	}
	filter := service.ListApprovalsFilter{
		Page:     page,
		PageSize: pageSize,
		SortBy:   ctx.Query("sort_by"),
		Order:    ctx.Query("order"),
		Overdue:  ctx.Query("overdue") == "true",
	}
	if v := ctx.Query("approver"); v != "" {
		filter.Approver = &v
	}
	if v := ctx.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := ctx.Query("document_id"); v != "" {
		filter.DocumentID = &v
	}
	if v := ctx.Query("created_at_start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid created_at_start", "expected RFC3339 time")
			return
		}
		filter.StartTime = &t
	}
	if v := ctx.Query("created_at_end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid created_at_end", "expected RFC3339 time")
			return
		}
		filter.EndTime = &t
	}

	result, err := c.queryService.ListApprovals(&filter)
	if err != nil {
		fail(ctx, err)
		return
	}
	Paginated(ctx, result.Data, result.Pagination)
}

// ApprovalStatistics 审批统计
func (c *QueryController) ApprovalStatistics(ctx *gin.Context) {
	stats, err := c.statisticsService.GetApprovalStatistics()
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, stats)
}

// DocumentStatistics 文档按状态和模板统计
func (c *QueryController) DocumentStatistics(ctx *gin.Context) {
	byStatus, err := c.statisticsService.GetDocumentStatisticsByStatus()
	if err != nil {
		fail(ctx, err)
		return
	}
	byTemplate, err := c.statisticsService.GetDocumentStatisticsByTemplate()
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, gin.H{"byStatus": byStatus, "byTemplate": byTemplate})
}
