package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// DocumentModel 文档数据模型(仅元数据, 文件存储在外部)
type DocumentModel struct {
	ID              string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title           string         `gorm:"type:varchar(255);not null" json:"title"`
	FileName        string         `gorm:"type:varchar(255)" json:"fileName"`
	FileType        string         `gorm:"type:varchar(32);index" json:"fileType"`
	Department      string         `gorm:"type:varchar(128);index" json:"department"`
	UploadedBy      string         `gorm:"type:varchar(64);not null;index" json:"uploadedBy"`
	TemplateID      string         `gorm:"type:varchar(64);not null;index" json:"templateId"`
	TemplateVersion int            `gorm:"type:int;not null;default:0" json:"templateVersion"` // 提交时固定
	Status          string         `gorm:"type:varchar(32);not null;index" json:"status"`
	Data            datatypes.JSON `json:"data"` // 条件和公式使用的业务数据
	CreatedAt       time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updatedAt"`
	SubmittedAt     *time.Time     `gorm:"index" json:"submittedAt"`
	CompletedAt     *time.Time     `json:"completedAt"`
}

// TableName 指定表名
func (DocumentModel) TableName() string {
	return "documents"
}

// Validate 验证文档模型
func (m *DocumentModel) Validate() error {
	if m.ID == "" {
		return errors.New("document ID is required")
	}
	if m.Title == "" {
		return errors.New("document title is required")
	}
	if m.TemplateID == "" {
		return errors.New("template ID is required")
	}
	if m.Status == "" {
		return errors.New("document status is required")
	}
	return nil
}

// DataMap decodes the document data, returning an empty map when none is stored.
func (m *DocumentModel) DataMap() map[string]interface{} {
	out := make(map[string]interface{})
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &out)
	}
	return out
}
