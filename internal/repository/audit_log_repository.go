package repository

import (
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口. 只追加, 不提供更新和删除.
type AuditLogRepository interface {
	Append(log *model.AuditLogModel) error
	FindByActor(actorID string) ([]*model.AuditLogModel, error)
	FindByEntity(entityType string, entityID string) ([]*model.AuditLogModel, error)
	FindByEntities(entityType string, entityIDs []string) ([]*model.AuditLogModel, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append 追加审计日志
func (r *auditLogRepository) Append(log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.Create(log).Error
}

// FindByActor 根据操作人查找审计日志
func (r *auditLogRepository) FindByActor(actorID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("actor_id = ?", actorID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByEntity 根据实体查找审计日志
func (r *auditLogRepository) FindByEntity(entityType string, entityID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// FindByEntities 查找同类型多个实体的审计日志
func (r *auditLogRepository) FindByEntities(entityType string, entityIDs []string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	if len(entityIDs) == 0 {
		return logs, nil
	}
	err := r.db.Where("entity_type = ? AND entity_id IN ?", entityType, entityIDs).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
