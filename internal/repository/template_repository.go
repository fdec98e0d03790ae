package repository

import (
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/gorm"
)

// WorkflowRepository 工作流模板仓储接口. 每个版本写入后不再修改.
type WorkflowRepository interface {
	Create(workflow *model.WorkflowModel, steps []*model.WorkflowStepModel) error
	FindByID(id string, version int) (*model.WorkflowModel, error)
	FindVersions(id string) ([]*model.WorkflowModel, error)
	FindLatest() ([]*model.WorkflowModel, error)
	FindStep(workflowID string, version int, stepKey string) (*model.WorkflowStepModel, error)
	FindSteps(workflowID string, version int) ([]*model.WorkflowStepModel, error)
	CountApprovalReferences(id string) (int64, error)
	Delete(id string) error
}

// workflowRepository 工作流模板仓储实现
type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository 创建工作流模板仓储
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

// Create 写入一个新版本及其步骤行. 版本已存在时返回主键冲突错误.
func (r *workflowRepository) Create(workflow *model.WorkflowModel, steps []*model.WorkflowStepModel) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workflow).Error; err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		return tx.Create(&steps).Error
	})
}

// FindByID 根据 ID 查找模板, version <= 0 时返回最新版本
func (r *workflowRepository) FindByID(id string, version int) (*model.WorkflowModel, error) {
	var workflow model.WorkflowModel
	query := r.db.Where("id = ?", id)

	if version > 0 {
		query = query.Where("version = ?", version)
	} else {
		// 获取最新版本
		query = query.Order("version DESC").Limit(1)
	}

	if err := query.First(&workflow).Error; err != nil {
		return nil, err
	}
	return &workflow, nil
}

// FindVersions 列出模板的全部版本
func (r *workflowRepository) FindVersions(id string) ([]*model.WorkflowModel, error) {
	var workflows []*model.WorkflowModel
	err := r.db.Where("id = ?", id).Order("version DESC").Find(&workflows).Error
	return workflows, err
}

// FindLatest 每个模板只返回最新版本
func (r *workflowRepository) FindLatest() ([]*model.WorkflowModel, error) {
	var workflows []*model.WorkflowModel
	err := r.db.Where(LatestWorkflowVersion).Order("created_at DESC").Find(&workflows).Error
	return workflows, err
}

// LatestWorkflowVersion restricts a workflows query to the newest version of each template.
const LatestWorkflowVersion = "version = (SELECT MAX(w2.version) FROM workflows w2 WHERE w2.id = workflows.id)"

// FindStep 查找某版本的步骤行
func (r *workflowRepository) FindStep(workflowID string, version int, stepKey string) (*model.WorkflowStepModel, error) {
	var step model.WorkflowStepModel
	err := r.db.Where("workflow_id = ? AND workflow_version = ? AND step_key = ?", workflowID, version, stepKey).
		First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// FindSteps 查找某版本的全部步骤行
func (r *workflowRepository) FindSteps(workflowID string, version int) ([]*model.WorkflowStepModel, error) {
	var steps []*model.WorkflowStepModel
	err := r.db.Where("workflow_id = ? AND workflow_version = ?", workflowID, version).
		Order("position ASC").
		Find(&steps).Error
	return steps, err
}

// CountApprovalReferences 统计引用该模板任一版本步骤的审批记录数
func (r *workflowRepository) CountApprovalReferences(id string) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentApprovalModel{}).
		Where("workflow_step_id IN (?)", r.db.Model(&model.WorkflowStepModel{}).Select("id").Where("workflow_id = ?", id)).
		Count(&count).Error
	return count, err
}

// Delete 删除模板的全部版本及步骤行
func (r *workflowRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", id).Delete(&model.WorkflowStepModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.WorkflowModel{}).Error
	})
}
