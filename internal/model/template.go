package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/datatypes"
)

// WorkflowModel 工作流模板数据模型, 主键组合 (id, version)
type WorkflowModel struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)"`
	Version     int            `gorm:"primaryKey;type:int;not null;default:1"`
	Name        string         `gorm:"type:varchar(255);not null;index"`
	Description string         `gorm:"type:text"`
	Department  string         `gorm:"type:varchar(128);not null;index"`
	Active      bool           `gorm:"not null"`
	Data        datatypes.JSON `gorm:"not null"` // 序列化后的 workflow.Template
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
	CreatedBy   string         `gorm:"type:varchar(64)"`
	UpdatedBy   string         `gorm:"type:varchar(64)"`
}

// TableName 指定表名
func (WorkflowModel) TableName() string {
	return "workflows"
}

// Validate 验证模板模型
func (m *WorkflowModel) Validate() error {
	if m.ID == "" {
		return errors.New("workflow ID is required")
	}
	if m.Version < 1 {
		return errors.New("workflow version must be positive")
	}
	if m.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(m.Data) == 0 {
		return errors.New("workflow data is required")
	}
	return nil
}

// ToDomain decodes the stored template.
func (m *WorkflowModel) ToDomain() (*workflow.Template, error) {
	var tpl workflow.Template
	if err := json.Unmarshal(m.Data, &tpl); err != nil {
		return nil, err
	}
	tpl.ID = m.ID
	tpl.Version = m.Version
	tpl.Active = m.Active
	tpl.CreatedBy = m.CreatedBy
	tpl.CreatedAt = m.CreatedAt
	tpl.UpdatedAt = m.UpdatedAt
	return &tpl, nil
}

// NewWorkflowModel encodes a template version and its step rows.
func NewWorkflowModel(tpl *workflow.Template, actor string) (*WorkflowModel, []*WorkflowStepModel, error) {
	data, err := json.Marshal(tpl)
	if err != nil {
		return nil, nil, err
	}
	m := &WorkflowModel{
		ID:          tpl.ID,
		Version:     tpl.Version,
		Name:        tpl.Name,
		Description: tpl.Description,
		Department:  tpl.Department,
		Active:      tpl.Active,
		Data:        datatypes.JSON(data),
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
		CreatedBy:   tpl.CreatedBy,
		UpdatedBy:   actor,
	}

	steps := make([]*WorkflowStepModel, 0, len(tpl.Steps))
	for i := range tpl.Steps {
		stepData, err := json.Marshal(tpl.Steps[i])
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, &WorkflowStepModel{
			ID:              StepRowID(tpl.ID, tpl.Version, tpl.Steps[i].ID),
			WorkflowID:      tpl.ID,
			WorkflowVersion: tpl.Version,
			StepKey:         tpl.Steps[i].ID,
			Name:            tpl.Steps[i].Name,
			Type:            string(tpl.Steps[i].Type),
			Position:        i,
			Data:            datatypes.JSON(stepData),
			CreatedAt:       tpl.UpdatedAt,
		})
	}
	return m, steps, nil
}
