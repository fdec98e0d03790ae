package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// WorkflowStepModel is one step row of one template version. Approval records point at it.
type WorkflowStepModel struct {
	ID              string         `gorm:"primaryKey;type:varchar(160)"`
	WorkflowID      string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_workflow_step_key,priority:1"`
	WorkflowVersion int            `gorm:"type:int;not null;uniqueIndex:idx_workflow_step_key,priority:2"`
	StepKey         string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_workflow_step_key,priority:3"`
	Name            string         `gorm:"type:varchar(255);not null"`
	Type            string         `gorm:"type:varchar(32);not null"`
	Position        int            `gorm:"type:int;not null"`
	Data            datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"not null"`
}

// TableName 指定表名
func (WorkflowStepModel) TableName() string {
	return "workflow_steps"
}

// StepRowID is the deterministic row id of a step within a template version.
func StepRowID(workflowID string, version int, stepKey string) string {
	return fmt.Sprintf("%s@v%d/%s", workflowID, version, stepKey)
}
