package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the ValidationError of a payload: every violated rule, collected in one pass.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends an error for field.
func (e *FieldErrors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// Has reports whether an error was recorded for field.
func (e FieldErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// StateConflictError is returned when a transition is attempted on a record that is no
// longer in the state the transition requires.
type StateConflictError struct {
	Entity  string
	ID      string
	Current string
	Reason  string
}

func (e *StateConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: state conflict (current %s): %s", e.Entity, e.ID, e.Current, e.Reason)
	}
	return fmt.Sprintf("%s %s: state conflict (current %s)", e.Entity, e.ID, e.Current)
}

// DependencyUnsatisfiedError 依赖步骤尚未完成
type DependencyUnsatisfiedError struct {
	StepID  string
	Pending []string
}

func (e *DependencyUnsatisfiedError) Error() string {
	return fmt.Sprintf("step %s: dependencies not completed: %s", e.StepID, strings.Join(e.Pending, ", "))
}

// EscalationConfigError 升级配置错误(无可用的备选审批人)
type EscalationConfigError struct {
	ApprovalID string
	Reason     string
}

func (e *EscalationConfigError) Error() string {
	return fmt.Sprintf("approval %s: escalation misconfigured: %s", e.ApprovalID, e.Reason)
}

var (
	// ErrNotAssignee is returned when the actor is neither the approver nor the current escalation target.
	ErrNotAssignee = errors.New("actor is not assigned to this approval")
	// ErrNoAssignees is returned when an assignment rule resolves to nobody.
	ErrNoAssignees = errors.New("assignment rule resolved to no users")
	// ErrEscalationNotDue is returned when escalation is requested before the deadline window.
	ErrEscalationNotDue = errors.New("approval is not due for escalation")
)

// IsStateConflict reports whether err wraps a StateConflictError.
func IsStateConflict(err error) bool {
	var target *StateConflictError
	return errors.As(err, &target)
}
