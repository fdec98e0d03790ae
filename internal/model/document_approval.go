package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/datatypes"
)

// DocumentApprovalModel 审批记录数据模型, 每个文档/步骤/审批人一条, 永不删除
type DocumentApprovalModel struct {
	ID               string         `gorm:"primaryKey;type:varchar(64)"`
	DocumentID       string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_approval_doc_step_approver,priority:1;index"`
	WorkflowStepID   string         `gorm:"type:varchar(160);not null;uniqueIndex:idx_approval_doc_step_approver,priority:2"`
	StepKey          string         `gorm:"type:varchar(64);not null"`
	ApproverID       string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_approval_doc_step_approver,priority:3;index"`
	Status           string         `gorm:"type:varchar(32);not null;index"`
	Action           string         `gorm:"type:varchar(32)"`
	Comments         string         `gorm:"type:text"`
	FormData         datatypes.JSON
	ApprovedAt       *time.Time
	Deadline         *time.Time `gorm:"index"`
	RemindersSent    int        `gorm:"type:int;not null;default:0"`
	LastReminderSent *time.Time
	IsEscalated      bool       `gorm:"not null;default:false"`
	EscalatedAt      *time.Time
	EscalatedTo      string    `gorm:"type:varchar(64);index"`
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`

	// 外键约束, 只用于迁移建表, 不做关联加载
	// escalated_to 未升级时为空字符串, 由升级流程校验替补审批人
	Document     *DocumentModel     `gorm:"foreignKey:DocumentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	WorkflowStep *WorkflowStepModel `gorm:"foreignKey:WorkflowStepID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Approver     *UserModel         `gorm:"foreignKey:ApproverID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// TableName 指定表名
func (DocumentApprovalModel) TableName() string {
	return "documentapprovals"
}

// Validate 验证审批记录模型
func (m *DocumentApprovalModel) Validate() error {
	if m.ID == "" {
		return errors.New("approval ID is required")
	}
	if m.DocumentID == "" {
		return errors.New("document ID is required")
	}
	if m.WorkflowStepID == "" {
		return errors.New("workflow step ID is required")
	}
	if m.ApproverID == "" {
		return errors.New("approver ID is required")
	}
	if m.Status == "" {
		m.Status = string(workflow.ApprovalPending)
	}
	return nil
}

// ToDomain 转换为领域对象
func (m *DocumentApprovalModel) ToDomain() *workflow.Approval {
	a := &workflow.Approval{
		ID:               m.ID,
		DocumentID:       m.DocumentID,
		WorkflowStepID:   m.WorkflowStepID,
		StepKey:          m.StepKey,
		ApproverID:       m.ApproverID,
		Status:           workflow.ApprovalStatus(m.Status),
		Action:           workflow.ActionKind(m.Action),
		Comments:         m.Comments,
		ApprovedAt:       m.ApprovedAt,
		Deadline:         m.Deadline,
		RemindersSent:    m.RemindersSent,
		LastReminderSent: m.LastReminderSent,
		IsEscalated:      m.IsEscalated,
		EscalatedAt:      m.EscalatedAt,
		EscalatedTo:      m.EscalatedTo,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if len(m.FormData) > 0 {
		_ = json.Unmarshal(m.FormData, &a.FormData)
	}
	return a
}

// NewDocumentApprovalModel 从领域对象创建数据模型
func NewDocumentApprovalModel(a *workflow.Approval) *DocumentApprovalModel {
	m := &DocumentApprovalModel{
		ID:               a.ID,
		DocumentID:       a.DocumentID,
		WorkflowStepID:   a.WorkflowStepID,
		StepKey:          a.StepKey,
		ApproverID:       a.ApproverID,
		Status:           string(a.Status),
		Action:           string(a.Action),
		Comments:         a.Comments,
		ApprovedAt:       a.ApprovedAt,
		Deadline:         a.Deadline,
		RemindersSent:    a.RemindersSent,
		LastReminderSent: a.LastReminderSent,
		IsEscalated:      a.IsEscalated,
		EscalatedAt:      a.EscalatedAt,
		EscalatedTo:      a.EscalatedTo,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.FormData != nil {
		if data, err := json.Marshal(a.FormData); err == nil {
			m.FormData = datatypes.JSON(data)
		}
	}
	return m
}
