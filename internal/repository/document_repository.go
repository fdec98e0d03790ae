package repository

import (
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	Create(doc *model.DocumentModel) error
	FindByID(id string) (*model.DocumentModel, error)
	FindByIDForUpdate(id string) (*model.DocumentModel, error)
	FindAll() ([]*model.DocumentModel, error)
	Submit(id string, templateVersion int, at time.Time) (bool, error)
	Finish(id string, status string, at time.Time) (bool, error)
	UpdateData(id string, data datatypes.JSON, at time.Time) error
}

// documentRepository 文档仓储实现
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档
func (r *documentRepository) Create(doc *model.DocumentModel) error {
	return r.db.Create(doc).Error
}

// FindByID 根据 ID 查找文档
func (r *documentRepository) FindByID(id string) (*model.DocumentModel, error) {
	var doc model.DocumentModel
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByIDForUpdate 在事务中读取并锁定文档行, 同一文档上的状态变更因此串行执行.
// SQLite 不支持行锁, 由单写连接保证串行.
func (r *documentRepository) FindByIDForUpdate(id string) (*model.DocumentModel, error) {
	var doc model.DocumentModel
	err := r.db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAll 查找所有文档
func (r *documentRepository) FindAll() ([]*model.DocumentModel, error) {
	var docs []*model.DocumentModel
	err := r.db.Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// Submit 将草稿文档置为处理中并固定模板版本. 返回 false 表示文档已不是草稿.
func (r *documentRepository) Submit(id string, templateVersion int, at time.Time) (bool, error) {
	result := r.db.Model(&model.DocumentModel{}).
		Where("id = ? AND status = ?", id, "DRAFT").
		Updates(map[string]interface{}{
			"status":           "IN_PROGRESS",
			"template_version": templateVersion,
			"submitted_at":     at,
			"updated_at":       at,
		})
	return result.RowsAffected == 1, result.Error
}

// Finish 将处理中的文档置为终态
func (r *documentRepository) Finish(id string, status string, at time.Time) (bool, error) {
	result := r.db.Model(&model.DocumentModel{}).
		Where("id = ? AND status = ?", id, "IN_PROGRESS").
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": at,
			"updated_at":   at,
		})
	return result.RowsAffected == 1, result.Error
}

// UpdateData 更新文档业务数据(set_field 动作)
func (r *documentRepository) UpdateData(id string, data datatypes.JSON, at time.Time) error {
	return r.db.Model(&model.DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"data": data, "updated_at": at}).Error
}
