package repository

import (
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 通知发件箱仓储接口
type NotificationRepository interface {
	Save(notification *model.NotificationModel) error
	FindByDocument(documentID string) ([]*model.NotificationModel, error)
	FindPending(limit int) ([]*model.NotificationModel, error)
	MarkSent(id string, at time.Time) error
	MarkFailed(id string, lastError string, final bool, at time.Time) error
}

// notificationRepository 通知发件箱仓储实现
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Save 保存通知
func (r *notificationRepository) Save(notification *model.NotificationModel) error {
	if err := notification.Validate(); err != nil {
		return err
	}
	return r.db.Save(notification).Error
}

// FindByDocument 根据文档 ID 查找通知
func (r *notificationRepository) FindByDocument(documentID string) ([]*model.NotificationModel, error) {
	var notifications []*model.NotificationModel
	err := r.db.Where("document_id = ?", documentID).Order("created_at ASC").Find(&notifications).Error
	return notifications, err
}

// FindPending 查找待投递的通知
func (r *notificationRepository) FindPending(limit int) ([]*model.NotificationModel, error) {
	var notifications []*model.NotificationModel
	query := r.db.Where("status = ?", model.NotificationPending).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}

// MarkSent 标记为已投递
func (r *notificationRepository) MarkSent(id string, at time.Time) error {
	return r.db.Model(&model.NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.NotificationSent,
			"sent_at":    at,
			"updated_at": at,
			"last_error": "",
		}).Error
}

// MarkFailed 记录一次投递失败, final 为 true 时不再重试
func (r *notificationRepository) MarkFailed(id string, lastError string, final bool, at time.Time) error {
	status := model.NotificationPending
	if final {
		status = model.NotificationFailed
	}
	return r.db.Model(&model.NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"retry_count": gorm.Expr("retry_count + ?", 1),
			"last_error":  lastError,
			"updated_at":  at,
		}).Error
}
