package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 审计结果
const (
	AuditSuccess = "SUCCESS"
	AuditFailure = "FAILURE"
	AuditWarning = "WARNING"
)

// AuditLogModel 审计日志数据模型, 只追加
type AuditLogModel struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ActorID    string         `gorm:"type:varchar(64);not null;index" json:"actorId"`
	Action     string         `gorm:"type:varchar(64);not null;index" json:"action"` // create/update/delete/approve/reject/escalate/remind
	EntityType string         `gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:1" json:"entityType"`
	EntityID   string         `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2" json:"entityId"`
	OldValue   datatypes.JSON `json:"oldValue"` // 变更前快照
	NewValue   datatypes.JSON `json:"newValue"` // 变更后快照
	Status     string         `gorm:"type:varchar(16);not null;index" json:"status"`
	Message    string         `gorm:"type:text" json:"message"`
	RequestID  string         `gorm:"type:varchar(64);index" json:"requestId"`
	IP         string         `gorm:"type:varchar(45)" json:"ip"` // IPv4 或 IPv6
	UserAgent  string         `gorm:"type:text" json:"userAgent"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"createdAt"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "auditlogs"
}

// Validate 验证审计日志模型
func (m *AuditLogModel) Validate() error {
	if m.ID == "" {
		return errors.New("audit log ID is required")
	}
	if m.ActorID == "" {
		return errors.New("actor ID is required")
	}
	if m.Action == "" {
		return errors.New("action is required")
	}
	if m.EntityType == "" {
		return errors.New("entity type is required")
	}
	if m.EntityID == "" {
		return errors.New("entity ID is required")
	}
	switch m.Status {
	case AuditSuccess, AuditFailure, AuditWarning:
	default:
		return errors.New("audit status must be SUCCESS, FAILURE or WARNING")
	}
	return nil
}
