package workflow

import (
	"sort"
	"time"
)

// StepState is the per-document progress of a step.
type StepState string

const (
	StepNotStarted StepState = "NOT_STARTED"
	StepActive     StepState = "ACTIVE"
	StepCompleted  StepState = "COMPLETED"
	StepRejected   StepState = "REJECTED"
	StepSkipped    StepState = "SKIPPED"
)

// IsResolved reports whether the step can no longer change.
func (s StepState) IsResolved() bool {
	return s == StepCompleted || s == StepRejected || s == StepSkipped
}

// StepResult is the outcome of a step derived from its approval records.
type StepResult struct {
	State      StepState
	Approvals  int
	Rejections int
	Required   int
	ResolvedAt *time.Time
}

// EvaluateStep derives the outcome of a participant step from its approvals. Decisions
// are replayed in approvedAt order, a rejection winning a tie, and the first one that
// resolves the step fixes the outcome.
func EvaluateStep(step *Step, approvals []*Approval) StepResult {
	result := StepResult{State: StepActive, Required: step.RequiredCount(len(approvals))}
	if len(approvals) == 0 {
		result.State = StepNotStarted
		return result
	}

	decided := make([]*Approval, 0, len(approvals))
	for _, a := range approvals {
		if a.Status.IsTerminal() && a.ApprovedAt != nil {
			decided = append(decided, a)
		}
	}
	sort.SliceStable(decided, func(i, j int) bool {
		ti, tj := *decided[i].ApprovedAt, *decided[j].ApprovedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return decided[i].Status == ApprovalRejected && decided[j].Status != ApprovalRejected
	})

	for _, a := range decided {
		if a.Status == ApprovalRejected {
			result.Rejections++
		} else {
			result.Approvals++
		}
		if result.State != StepActive {
			continue
		}
		switch {
		case a.Status == ApprovalRejected:
			result.State = StepRejected
			result.ResolvedAt = a.ApprovedAt
		case result.Approvals >= result.Required:
			result.State = StepCompleted
			result.ResolvedAt = a.ApprovedAt
		}
	}
	return result
}

// Plan is the set of transitions implied by the current step states.
type Plan struct {
	Activate []*Step
	Skip     []*Step
}

// Empty reports whether nothing needs to change.
func (p Plan) Empty() bool {
	return len(p.Activate) == 0 && len(p.Skip) == 0
}

// Next computes which not-started steps become eligible and which are skipped. A step
// is skipped when a dependency was rejected or skipped, or when its gating conditions
// do not hold against data. Condition-type steps are activated and evaluated by the caller.
func (t *Template) Next(states map[string]StepState, data map[string]interface{}) (Plan, error) {
	var plan Plan
	for i := range t.Steps {
		step := &t.Steps[i]
		if st, ok := states[step.ID]; ok && st != StepNotStarted {
			continue
		}

		ready := true
		blocked := false
		for _, dep := range step.Dependencies {
			switch states[dep] {
			case StepCompleted:
			case StepRejected, StepSkipped:
				blocked = true
			default:
				ready = false
			}
		}
		if blocked {
			plan.Skip = append(plan.Skip, step)
			continue
		}
		if !ready {
			continue
		}
		if step.Type != StepCondition && len(step.Conditions) > 0 {
			ok, err := EvaluateConditions(step.Conditions, data)
			if err != nil {
				return Plan{}, err
			}
			if !ok {
				plan.Skip = append(plan.Skip, step)
				continue
			}
		}
		plan.Activate = append(plan.Activate, step)
	}
	return plan, nil
}

// CheckReady returns a DependencyUnsatisfiedError unless every dependency of stepID is completed.
func (t *Template) CheckReady(stepID string, states map[string]StepState) error {
	step := t.StepByID(stepID)
	if step == nil {
		return &DependencyUnsatisfiedError{StepID: stepID, Pending: []string{stepID}}
	}
	var pending []string
	for _, dep := range step.Dependencies {
		if states[dep] != StepCompleted {
			pending = append(pending, dep)
		}
	}
	if len(pending) > 0 {
		return &DependencyUnsatisfiedError{StepID: stepID, Pending: pending}
	}
	return nil
}

// Outcome derives the document status from step states.
func (t *Template) Outcome(states map[string]StepState) DocumentStatus {
	done := true
	for i := range t.Steps {
		switch states[t.Steps[i].ID] {
		case StepRejected:
			return DocumentRejected
		case StepCompleted, StepSkipped:
		default:
			done = false
		}
	}
	if done {
		return DocumentApproved
	}
	return DocumentInProgress
}
