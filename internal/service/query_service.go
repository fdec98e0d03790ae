package service

import (
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/gorm"
)

// QueryService 查询服务接口
type QueryService interface {
	ListApprovals(filter *ListApprovalsFilter) (*ApprovalListResponse, error)
}

// ListApprovalsFilter 审批记录列表查询过滤器
type ListApprovalsFilter struct {
	Approver   *string // 匹配审批人或升级后的替补审批人
	Status     *string
	DocumentID *string
	Overdue    bool
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
	SortBy     string
	Order      string
}

// ApprovalListResponse 审批记录列表响应
type ApprovalListResponse struct {
	Data       []*workflow.Approval `json:"data"`
	Pagination PaginationInfo       `json:"pagination"`
}

var approvalSortFields = map[string]string{
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"deadline":    "deadline",
	"approved_at": "approved_at",
}

// queryService 查询服务实现
type queryService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB) QueryService {
	return &queryService{db: db, now: time.Now}
}

// ListApprovals 列出审批记录
func (s *queryService) ListApprovals(filter *ListApprovalsFilter) (*ApprovalListResponse, error) {
	if filter == nil {
		filter = &ListApprovalsFilter{}
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	// 应用过滤条件
	query := s.db.Model(&model.DocumentApprovalModel{})
	if filter.Approver != nil {
		query = query.Where("approver_id = ? OR escalated_to = ?", *filter.Approver, *filter.Approver)
	}
	if filter.Status != nil {
		// 待审批只返回仍可处理的记录, 已结束步骤里剩余的 PENDING 不再列出
		if *filter.Status == string(workflow.ApprovalPending) {
			query = query.Scopes(repository.Actionable)
		} else {
			query = query.Where("status = ?", *filter.Status)
		}
	}
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if filter.Overdue {
		query = query.Scopes(repository.Actionable).Where("deadline IS NOT NULL AND deadline <= ?", s.now())
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count approvals: %w", err)
	}

	order, err := utils.SortClause(filter.SortBy, filter.Order, approvalSortFields, "created_at")
	if err != nil {
		return nil, workflow.FieldErrors{{Field: "sort_by", Message: err.Error()}}
	}

	var models []*model.DocumentApprovalModel
	if err := query.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find approvals: %w", err)
	}

	approvals := make([]*workflow.Approval, 0, len(models))
	for _, m := range models {
		approvals = append(approvals, m.ToDomain())
	}
	return &ApprovalListResponse{Data: approvals, Pagination: newPaginationInfo(page, pageSize, total)}, nil
}
