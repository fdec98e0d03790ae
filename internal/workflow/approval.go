package workflow

import (
	"time"
)

// ApprovalStatus 审批记录状态
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// DocumentStatus 文档状态
type DocumentStatus string

const (
	DocumentDraft      DocumentStatus = "DRAFT"
	DocumentInProgress DocumentStatus = "IN_PROGRESS"
	DocumentApproved   DocumentStatus = "APPROVED"
	DocumentRejected   DocumentStatus = "REJECTED"
)

// Approval is one approver's execution record for one step of one document.
type Approval struct {
	ID               string                 `json:"id"`
	DocumentID       string                 `json:"documentId"`
	WorkflowStepID   string                 `json:"workflowStepId"`
	StepKey          string                 `json:"stepKey"`
	ApproverID       string                 `json:"approverId"`
	Status           ApprovalStatus         `json:"status"`
	Action           ActionKind             `json:"action,omitempty"`
	Comments         string                 `json:"comments,omitempty"`
	FormData         map[string]interface{} `json:"formData,omitempty"`
	ApprovedAt       *time.Time             `json:"approvedAt,omitempty"`
	Deadline         *time.Time             `json:"deadline,omitempty"`
	RemindersSent    int                    `json:"remindersSent"`
	LastReminderSent *time.Time             `json:"lastReminderSent,omitempty"`
	IsEscalated      bool                   `json:"isEscalated"`
	EscalatedAt      *time.Time             `json:"escalatedAt,omitempty"`
	EscalatedTo      string                 `json:"escalatedTo,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Assignee returns the user currently expected to act.
func (a *Approval) Assignee() string {
	if a.IsEscalated && a.EscalatedTo != "" {
		return a.EscalatedTo
	}
	return a.ApproverID
}

// CanAct reports whether actor may decide this approval.
func (a *Approval) CanAct(actor string) bool {
	return actor != "" && actor == a.Assignee()
}

// Overdue reports whether a pending approval has passed its deadline.
func (a *Approval) Overdue(now time.Time) bool {
	return a.Status == ApprovalPending && a.Deadline != nil && !now.Before(*a.Deadline)
}

func (a *Approval) conflict(reason string) error {
	return &StateConflictError{Entity: "approval", ID: a.ID, Current: string(a.Status), Reason: reason}
}

// Approve resolves the approval positively. action records what the participant did
// (approve, review, sign or complete).
func (a *Approval) Approve(actor string, action ActionKind, comments string, formData map[string]interface{}, now time.Time) error {
	if a.Status != ApprovalPending {
		return a.conflict("only pending approvals can be approved")
	}
	if !a.CanAct(actor) {
		return ErrNotAssignee
	}
	if action == "" || action.IsRejection() {
		action = ActionApprove
	}
	at := now
	a.Status = ApprovalApproved
	a.Action = action
	a.Comments = comments
	a.FormData = formData
	a.ApprovedAt = &at
	a.UpdatedAt = now
	return nil
}

// Reject resolves the approval negatively.
func (a *Approval) Reject(actor, comments string, now time.Time) error {
	if a.Status != ApprovalPending {
		return a.conflict("only pending approvals can be rejected")
	}
	if !a.CanAct(actor) {
		return ErrNotAssignee
	}
	at := now
	a.Status = ApprovalRejected
	a.Action = ActionReject
	a.Comments = comments
	a.ApprovedAt = &at
	a.UpdatedAt = now
	return nil
}

// Decide applies a participant action, dispatching to Approve or Reject.
func (a *Approval) Decide(actor string, req ActionRequest, now time.Time) error {
	if req.Action.IsRejection() {
		return a.Reject(actor, req.Remarks, now)
	}
	return a.Approve(actor, req.Action, req.Remarks, req.FormData, now)
}

// EscalationDue reports whether the approval is past its deadline or inside the
// policy's warning window.
func (a *Approval) EscalationDue(policy *SLAPolicy, now time.Time) bool {
	if a.Deadline == nil {
		return false
	}
	if !now.Before(*a.Deadline) {
		return true
	}
	if policy == nil || policy.WarningThreshold <= 0 {
		return false
	}
	return a.Deadline.Sub(now) <= hoursToDuration(policy.WarningThreshold)
}

// Escalate reassigns the approval to a substitute. The status stays PENDING.
// Escalating again to the current substitute changes nothing.
func (a *Approval) Escalate(to string, now time.Time, policy *SLAPolicy) error {
	if a.Status != ApprovalPending {
		return a.conflict("only pending approvals can be escalated")
	}
	if to == "" {
		return &EscalationConfigError{ApprovalID: a.ID, Reason: "no substitute approver"}
	}
	if to == a.ApproverID {
		return &EscalationConfigError{ApprovalID: a.ID, Reason: "substitute is the original approver"}
	}
	if a.IsEscalated && a.EscalatedTo == to {
		return nil
	}
	if !a.EscalationDue(policy, now) {
		return ErrEscalationNotDue
	}
	at := now
	a.IsEscalated = true
	a.EscalatedAt = &at
	a.EscalatedTo = to
	a.UpdatedAt = now
	return nil
}

// Remind records a reminder sent now.
func (a *Approval) Remind(now time.Time) error {
	if a.Status != ApprovalPending {
		return a.conflict("reminders apply to pending approvals only")
	}
	at := now
	a.RemindersSent++
	a.LastReminderSent = &at
	a.UpdatedAt = now
	return nil
}

// hoursToDuration 转换小时数, 超出上限的值按上限处理
func hoursToDuration(hours float64) time.Duration {
	if hours > MaxDeadlineHours {
		hours = MaxDeadlineHours
	}
	return time.Duration(hours * float64(time.Hour))
}
