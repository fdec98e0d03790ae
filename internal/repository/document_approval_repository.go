package repository

import (
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentApprovalRepository 审批记录仓储接口. 状态变更均为比较并交换, 不提供删除.
type DocumentApprovalRepository interface {
	CreateIfAbsent(approval *model.DocumentApprovalModel) (bool, error)
	FindByID(id string) (*model.DocumentApprovalModel, error)
	FindByDocument(documentID string) ([]*model.DocumentApprovalModel, error)
	FindByDocumentStep(documentID string, stepKey string) ([]*model.DocumentApprovalModel, error)
	FindPendingWithDeadline() ([]*model.DocumentApprovalModel, error)
	Decide(id string, status string, action string, comments string, formData datatypes.JSON, at time.Time) (bool, error)
	Remind(id string, at time.Time) (bool, error)
	Escalate(id string, to string, at time.Time) (bool, error)
}

// documentApprovalRepository 审批记录仓储实现
type documentApprovalRepository struct {
	db *gorm.DB
}

// NewDocumentApprovalRepository 创建审批记录仓储
func NewDocumentApprovalRepository(db *gorm.DB) DocumentApprovalRepository {
	return &documentApprovalRepository{db: db}
}

// CreateIfAbsent 插入审批记录, (document, step, approver) 已存在时不做任何事并返回 false
func (r *documentApprovalRepository) CreateIfAbsent(approval *model.DocumentApprovalModel) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(approval)
	return result.RowsAffected == 1, result.Error
}

// FindByID 根据 ID 查找审批记录
func (r *documentApprovalRepository) FindByID(id string) (*model.DocumentApprovalModel, error) {
	var approval model.DocumentApprovalModel
	if err := r.db.Where("id = ?", id).First(&approval).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

// FindByDocument 查找文档的全部审批记录
func (r *documentApprovalRepository) FindByDocument(documentID string) ([]*model.DocumentApprovalModel, error) {
	var approvals []*model.DocumentApprovalModel
	err := r.db.Where("document_id = ?", documentID).Order("created_at ASC, approver_id ASC").Find(&approvals).Error
	return approvals, err
}

// FindByDocumentStep 查找文档某一步骤的审批记录
func (r *documentApprovalRepository) FindByDocumentStep(documentID string, stepKey string) ([]*model.DocumentApprovalModel, error) {
	var approvals []*model.DocumentApprovalModel
	err := r.db.Where("document_id = ? AND step_key = ?", documentID, stepKey).
		Order("approver_id ASC").
		Find(&approvals).Error
	return approvals, err
}

// Actionable 限定为仍可处理的待审批记录: 文档处理中且所属步骤进行中.
// 步骤结束后同一步骤里其余的 PENDING 记录不再可处理.
func Actionable(db *gorm.DB) *gorm.DB {
	return db.Where("documentapprovals.status = ?", "PENDING").
		Where("EXISTS (SELECT 1 FROM documents WHERE documents.id = documentapprovals.document_id AND documents.status = ?)", "IN_PROGRESS").
		Where("EXISTS (SELECT 1 FROM document_steps WHERE document_steps.document_id = documentapprovals.document_id"+
			" AND document_steps.step_key = documentapprovals.step_key AND document_steps.state = ?)", "ACTIVE")
}

// FindPendingWithDeadline 查找有截止时间的可处理待审批记录
func (r *documentApprovalRepository) FindPendingWithDeadline() ([]*model.DocumentApprovalModel, error) {
	var approvals []*model.DocumentApprovalModel
	err := r.db.Model(&model.DocumentApprovalModel{}).
		Scopes(Actionable).
		Where("documentapprovals.deadline IS NOT NULL").
		Order("documentapprovals.deadline ASC").
		Find(&approvals).Error
	return approvals, err
}

// Decide 将待审批记录置为 APPROVED 或 REJECTED. 返回 false 表示记录已不是 PENDING.
func (r *documentApprovalRepository) Decide(id string, status string, action string, comments string, formData datatypes.JSON, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":      status,
		"action":      action,
		"comments":    comments,
		"approved_at": at,
		"updated_at":  at,
	}
	if len(formData) > 0 {
		updates["form_data"] = formData
	}
	result := r.db.Model(&model.DocumentApprovalModel{}).
		Where("id = ? AND status = ?", id, "PENDING").
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// Remind 原子地增加提醒次数
func (r *documentApprovalRepository) Remind(id string, at time.Time) (bool, error) {
	result := r.db.Model(&model.DocumentApprovalModel{}).
		Where("id = ? AND status = ?", id, "PENDING").
		Updates(map[string]interface{}{
			"reminders_sent":     gorm.Expr("reminders_sent + ?", 1),
			"last_reminder_sent": at,
			"updated_at":         at,
		})
	return result.RowsAffected == 1, result.Error
}

// Escalate 将待审批记录升级给替补审批人
func (r *documentApprovalRepository) Escalate(id string, to string, at time.Time) (bool, error) {
	result := r.db.Model(&model.DocumentApprovalModel{}).
		Where("id = ? AND status = ?", id, "PENDING").
		Updates(map[string]interface{}{
			"is_escalated": true,
			"escalated_at": at,
			"escalated_to": to,
			"updated_at":   at,
		})
	return result.RowsAffected == 1, result.Error
}
