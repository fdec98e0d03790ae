package repository

import (
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentStepRepository 文档步骤进度仓储接口
type DocumentStepRepository interface {
	CreateIfAbsent(step *model.DocumentStepModel) (bool, error)
	FindByDocument(documentID string) ([]*model.DocumentStepModel, error)
	Transition(documentID string, stepKey string, from string, to string, reason string, at time.Time) (bool, error)
}

// documentStepRepository 文档步骤进度仓储实现
type documentStepRepository struct {
	db *gorm.DB
}

// NewDocumentStepRepository 创建文档步骤进度仓储
func NewDocumentStepRepository(db *gorm.DB) DocumentStepRepository {
	return &documentStepRepository{db: db}
}

// CreateIfAbsent 写入步骤进度, 已存在时返回 false
func (r *documentStepRepository) CreateIfAbsent(step *model.DocumentStepModel) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(step)
	return result.RowsAffected == 1, result.Error
}

// FindByDocument 查找文档的全部步骤进度
func (r *documentStepRepository) FindByDocument(documentID string) ([]*model.DocumentStepModel, error) {
	var steps []*model.DocumentStepModel
	err := r.db.Where("document_id = ?", documentID).Order("created_at ASC").Find(&steps).Error
	return steps, err
}

// Transition 比较并交换步骤状态
func (r *documentStepRepository) Transition(documentID string, stepKey string, from string, to string, reason string, at time.Time) (bool, error) {
	result := r.db.Model(&model.DocumentStepModel{}).
		Where("document_id = ? AND step_key = ? AND state = ?", documentID, stepKey, from).
		Updates(map[string]interface{}{
			"state":       to,
			"reason":      reason,
			"resolved_at": at,
			"updated_at":  at,
		})
	return result.RowsAffected == 1, result.Error
}
