package model

import (
	"errors"
	"time"
)

// DocumentStepModel 文档步骤进度, 每个文档每个步骤一条
type DocumentStepModel struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DocumentID  string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_document_step,priority:1" json:"documentId"`
	StepKey     string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_document_step,priority:2" json:"stepKey"`
	State       string     `gorm:"type:varchar(32);not null;index" json:"state"` // ACTIVE/COMPLETED/REJECTED/SKIPPED
	Reason      string     `gorm:"type:text" json:"reason"`
	ActivatedAt *time.Time `json:"activatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt"`
	CreatedAt   time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (DocumentStepModel) TableName() string {
	return "document_steps"
}

// Validate 验证步骤进度模型
func (m *DocumentStepModel) Validate() error {
	if m.ID == "" {
		return errors.New("document step ID is required")
	}
	if m.DocumentID == "" {
		return errors.New("document ID is required")
	}
	if m.StepKey == "" {
		return errors.New("step key is required")
	}
	if m.State == "" {
		return errors.New("state is required")
	}
	return nil
}
