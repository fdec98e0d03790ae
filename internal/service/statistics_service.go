package service

import (
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetApprovalStatistics() (*ApprovalStatistics, error)
	GetDocumentStatisticsByStatus() ([]*StatusCount, error)
	GetDocumentStatisticsByTemplate() ([]*TemplateCount, error)
}

// StatusCount 按状态统计
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TemplateCount 按模板统计文档
type TemplateCount struct {
	TemplateID   string `json:"templateId"`
	TemplateName string `json:"templateName"`
	Count        int64  `json:"count"`
}

// ApprovalStatistics 审批统计
type ApprovalStatistics struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Rejected  int64 `json:"rejected"`
	Overdue   int64 `json:"overdue"`
	Escalated int64 `json:"escalated"`
	// Superseded counts PENDING records left behind by a step or document that already finished.
	Superseded int64 `json:"superseded"`
	// ApprovalRate is the percentage of decided approvals that were approved.
	ApprovalRate float64 `json:"approvalRate"`
	// AverageDecisionSeconds is the mean time from instantiation to decision.
	AverageDecisionSeconds float64 `json:"averageDecisionSeconds"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db, now: time.Now}
}

// GetApprovalStatistics 获取审批统计
func (s *statisticsService) GetApprovalStatistics() (*ApprovalStatistics, error) {
	var byStatus []struct {
		Status string
		Count  int64
	}
	err := s.db.Model(&model.DocumentApprovalModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get approval statistics by status: %w", err)
	}

	stats := &ApprovalStatistics{}
	for _, r := range byStatus {
		stats.Total += r.Count
		switch workflow.ApprovalStatus(r.Status) {
		case workflow.ApprovalPending:
			stats.Pending = r.Count
		case workflow.ApprovalApproved:
			stats.Approved = r.Count
		case workflow.ApprovalRejected:
			stats.Rejected = r.Count
		}
	}

	// Pending 只统计仍可处理的记录
	var actionable int64
	if err := s.db.Model(&model.DocumentApprovalModel{}).Scopes(repository.Actionable).Count(&actionable).Error; err != nil {
		return nil, fmt.Errorf("failed to count actionable approvals: %w", err)
	}
	stats.Superseded = stats.Pending - actionable
	stats.Pending = actionable

	err = s.db.Model(&model.DocumentApprovalModel{}).
		Scopes(repository.Actionable).
		Where("documentapprovals.deadline IS NOT NULL AND documentapprovals.deadline <= ?", s.now()).
		Count(&stats.Overdue).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue approvals: %w", err)
	}
	err = s.db.Model(&model.DocumentApprovalModel{}).Where("is_escalated = ?", true).Count(&stats.Escalated).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count escalated approvals: %w", err)
	}

	if decided := stats.Approved + stats.Rejected; decided > 0 {
		stats.ApprovalRate = float64(stats.Approved) / float64(decided) * 100
	}

	// 平均处理时间在内存中计算, 避免依赖数据库的日期函数
	var decisions []struct {
		CreatedAt  time.Time
		ApprovedAt *time.Time
	}
	err = s.db.Model(&model.DocumentApprovalModel{}).
		Select("created_at, approved_at").
		Where("approved_at IS NOT NULL").
		Scan(&decisions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load decision times: %w", err)
	}
	var total time.Duration
	var n int
	for _, d := range decisions {
		if d.ApprovedAt == nil {
			continue
		}
		total += d.ApprovedAt.Sub(d.CreatedAt)
		n++
	}
	if n > 0 {
		stats.AverageDecisionSeconds = total.Seconds() / float64(n)
	}
	return stats, nil
}

// GetDocumentStatisticsByStatus 按状态统计文档
func (s *statisticsService) GetDocumentStatisticsByStatus() ([]*StatusCount, error) {
	var results []*StatusCount
	err := s.db.Model(&model.DocumentModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get document statistics by status: %w", err)
	}
	return results, nil
}

// GetDocumentStatisticsByTemplate 按模板统计文档
func (s *statisticsService) GetDocumentStatisticsByTemplate() ([]*TemplateCount, error) {
	var results []struct {
		TemplateID string
		Count      int64
	}
	err := s.db.Model(&model.DocumentModel{}).
		Select("template_id, COUNT(*) as count").
		Group("template_id").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get document statistics by template: %w", err)
	}

	stats := make([]*TemplateCount, 0, len(results))
	for _, r := range results {
		name := "unknown template"
		var tpl model.WorkflowModel
		if err := s.db.Where("id = ?", r.TemplateID).Order("version DESC").First(&tpl).Error; err == nil {
			name = tpl.Name
		}
		stats = append(stats, &TemplateCount{TemplateID: r.TemplateID, TemplateName: name, Count: r.Count})
	}
	return stats, nil
}
