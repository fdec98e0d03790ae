package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 通知状态
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// NotificationModel 通知发件箱数据模型
type NotificationModel struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Event      string         `gorm:"type:varchar(64);not null;index" json:"event"`
	Template   string         `gorm:"type:varchar(128)" json:"template"`
	DocumentID string         `gorm:"type:varchar(64);index" json:"documentId"`
	ApprovalID string         `gorm:"type:varchar(64);index" json:"approvalId"`
	StepKey    string         `gorm:"type:varchar(64)" json:"stepKey"`
	Recipients datatypes.JSON `gorm:"not null" json:"recipients"` // 已解析的用户 ID 列表
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	Status     string         `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	RetryCount int            `gorm:"type:int;default:0" json:"retryCount"`
	LastError  string         `gorm:"type:text" json:"lastError"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updatedAt"`
	SentAt     *time.Time     `json:"sentAt"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// Validate 验证通知模型
func (m *NotificationModel) Validate() error {
	if m.ID == "" {
		return errors.New("notification ID is required")
	}
	if m.Event == "" {
		return errors.New("notification event is required")
	}
	if len(m.Recipients) == 0 {
		return errors.New("notification recipients are required")
	}
	if m.Status == "" {
		m.Status = NotificationPending
	}
	return nil
}
