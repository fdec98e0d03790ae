package workflow

import (
	"encoding/json"
	"time"
)

// StepType 步骤类型
type StepType string

const (
	StepApproval  StepType = "approval"
	StepReview    StepType = "review"
	StepSign      StepType = "sign"
	StepRoute     StepType = "route"
	StepNotify    StepType = "notify"
	StepCondition StepType = "condition"
	StepAction    StepType = "action"
)

// StepTypes lists every supported step type.
var StepTypes = []StepType{StepApproval, StepReview, StepSign, StepRoute, StepNotify, StepCondition, StepAction}

// IsAutomatic reports whether steps of this type complete without a participant.
func (t StepType) IsAutomatic() bool {
	return t == StepNotify || t == StepCondition || t == StepAction
}

// Template is a validated, versioned workflow definition.
type Template struct {
	ID          string     `json:"id"`
	Version     int        `json:"version"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Department  string     `json:"department"`
	FileTypes   []string   `json:"fileTypes,omitempty"`
	Steps       []Step     `json:"steps"`
	SLA         *SLAPolicy `json:"sla,omitempty"`
	Active      bool       `json:"active"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Step 工作流步骤
type Step struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Type              StepType           `json:"type"`
	AssignTo          AssignmentRule     `json:"assignTo"`
	Deadline          DeadlineRule       `json:"-"`
	Dependencies      []string           `json:"dependencies,omitempty"`
	Parallel          bool               `json:"parallel,omitempty"`
	RequiredApprovals *int               `json:"requiredApprovals,omitempty"`
	Conditions        []Condition        `json:"conditions,omitempty"`
	Actions           []Action           `json:"actions,omitempty"`
	Notifications     []NotificationRule `json:"notifications,omitempty"`
}

type stepAlias Step

type stepJSON struct {
	stepAlias
	Deadline *deadlineJSON `json:"deadline,omitempty"`
}

// MarshalJSON writes the deadline in its tagged form.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{stepAlias: stepAlias(s), Deadline: marshalDeadline(s.Deadline)})
}

// UnmarshalJSON reads the tagged deadline form.
func (s *Step) UnmarshalJSON(data []byte) error {
	var in stepJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	deadline, err := unmarshalDeadline(in.Deadline)
	if err != nil {
		return err
	}
	*s = Step(in.stepAlias)
	s.Deadline = deadline
	return nil
}

// RequiredCount returns how many approvals complete the step given the number of approvers.
// Non-parallel steps are decided by the first responder.
func (s *Step) RequiredCount(approvers int) int {
	required := 1
	if s.Parallel && s.RequiredApprovals != nil {
		required = *s.RequiredApprovals
	}
	if approvers > 0 && required > approvers {
		required = approvers
	}
	return required
}

// NotificationsFor returns the rules of this step bound to event.
func (s *Step) NotificationsFor(event string) []NotificationRule {
	var out []NotificationRule
	for _, n := range s.Notifications {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

// Condition is a predicate over the document data.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Action is executed by action-type steps.
type Action struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Action types.
const (
	ActionSetField = "set_field"
	ActionNotify   = "notify"
	ActionWebhook  = "webhook"
)

// NotificationRule binds a lifecycle event to a message template and its recipients.
type NotificationRule struct {
	Event      string        `json:"event"`
	Template   string        `json:"template"`
	Recipients RecipientRule `json:"recipients"`
}

// Notification events.
const (
	EventStepAssigned      = "step.assigned"
	EventStepCompleted     = "step.completed"
	EventStepRejected      = "step.rejected"
	EventApprovalReminder  = "approval.reminder"
	EventApprovalWarning   = "approval.warning"
	EventApprovalEscalated = "approval.escalated"
	EventDocumentCompleted = "document.completed"
	EventDocumentRejected  = "document.rejected"
)

// Events lists every notification event.
var Events = []string{
	EventStepAssigned, EventStepCompleted, EventStepRejected, EventApprovalReminder,
	EventApprovalWarning, EventApprovalEscalated, EventDocumentCompleted, EventDocumentRejected,
}

// SLAPolicy 模板级 SLA 策略
type SLAPolicy struct {
	// WarningThreshold is the number of hours before the deadline at which a warning is sent.
	WarningThreshold float64 `json:"warningThreshold"`
	AutoReassign     bool    `json:"autoReassign"`
	// BackupAssignees maps a role or department name to the substitute user id.
	BackupAssignees map[string]string `json:"backupAssignees,omitempty"`
	// ReminderInterval repeats the warning every so many hours; 0 warns once.
	ReminderInterval float64 `json:"reminderInterval,omitempty"`
}

// StepByID returns the step with id, or nil.
func (t *Template) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// AcceptsFileType reports whether documents of fileType may use this template.
// An empty list accepts everything.
func (t *Template) AcceptsFileType(fileType string) bool {
	if len(t.FileTypes) == 0 {
		return true
	}
	for _, ft := range t.FileTypes {
		if ft == normalizeFileType(fileType) {
			return true
		}
	}
	return false
}
