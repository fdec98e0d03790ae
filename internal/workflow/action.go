package workflow

import (
	"strings"
)

// ActionKind is what a participant does to a pending approval.
type ActionKind string

const (
	ActionApprove  ActionKind = "approve"
	ActionReject   ActionKind = "reject"
	ActionReview   ActionKind = "review"
	ActionSign     ActionKind = "sign"
	ActionComplete ActionKind = "complete"
)

// ActionRequest is a validated workflow action payload.
type ActionRequest struct {
	Action   ActionKind             `json:"action"`
	Remarks  string                 `json:"remarks,omitempty"`
	FormData map[string]interface{} `json:"formData,omitempty"`
}

type actionRequestPayload struct {
	Action   string                 `json:"action" validate:"required,oneof=approve reject review sign complete"`
	Remarks  string                 `json:"remarks" validate:"max=4000"`
	FormData map[string]interface{} `json:"formData"`
}

// ValidateAction checks a raw action payload.
func ValidateAction(raw []byte) (*ActionRequest, FieldErrors) {
	var payload actionRequestPayload
	errs, fatal := decodePayload(raw, &payload)
	if fatal {
		return nil, errs
	}
	if err := payloadValidator().Struct(&payload); err != nil {
		for _, fe := range translateValidationErrors(err) {
			if !errs.Has(fe.Field) {
				errs = append(errs, fe)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &ActionRequest{
		Action:   ActionKind(payload.Action),
		Remarks:  strings.TrimSpace(payload.Remarks),
		FormData: payload.FormData,
	}, nil
}

var stepActions = map[StepType][]ActionKind{
	StepApproval: {ActionApprove, ActionReject},
	StepReview:   {ActionReview, ActionApprove, ActionReject},
	StepSign:     {ActionSign, ActionReject},
	StepRoute:    {ActionComplete, ActionApprove, ActionReject},
}

// AllowedActions returns the participant actions meaningful for a step type.
func AllowedActions(t StepType) []ActionKind {
	return stepActions[t]
}

// CheckActionForStep returns a field error when action does not apply to steps of type t.
func CheckActionForStep(action ActionKind, t StepType) FieldErrors {
	allowed := stepActions[t]
	for _, a := range allowed {
		if a == action {
			return nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		names = append(names, string(a))
	}
	if len(names) == 0 {
		return FieldErrors{{Field: "action", Message: "step type " + string(t) + " does not accept participant actions"}}
	}
	return FieldErrors{{Field: "action", Message: "step type " + string(t) + " accepts: " + strings.Join(names, ", ")}}
}

// IsRejection reports whether the action resolves the approval as rejected.
func (a ActionKind) IsRejection() bool {
	return a == ActionReject
}
