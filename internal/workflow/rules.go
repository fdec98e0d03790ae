package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// AssignmentKind 审批人分配方式
type AssignmentKind string

const (
	AssignUser       AssignmentKind = "user"
	AssignRole       AssignmentKind = "role"
	AssignDepartment AssignmentKind = "department"
	AssignDynamic    AssignmentKind = "dynamic"
)

// AssignmentRule says who performs a step. For AssignDynamic, Formula holds the
// expression evaluated at instantiation time and IDs is empty.
type AssignmentRule struct {
	Kind    AssignmentKind
	IDs     []string
	Formula string
}

// NewAssignmentRule builds a static (user/role/department) rule.
func NewAssignmentRule(kind AssignmentKind, ids ...string) (AssignmentRule, error) {
	switch kind {
	case AssignUser, AssignRole, AssignDepartment:
	default:
		return AssignmentRule{}, fmt.Errorf("unsupported assignment kind %q", kind)
	}
	cleaned := compactIDs(ids)
	if len(cleaned) == 0 {
		return AssignmentRule{}, errors.New("assignment requires at least one identifier")
	}
	return AssignmentRule{Kind: kind, IDs: cleaned}, nil
}

// NewDynamicAssignment builds a rule resolved by formula.
func NewDynamicAssignment(formula string) (AssignmentRule, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return AssignmentRule{}, errors.New("dynamic assignment requires a formula")
	}
	return AssignmentRule{Kind: AssignDynamic, Formula: formula}, nil
}

type ruleJSON struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// MarshalJSON encodes a single identifier as a string and several as a list.
func (r AssignmentRule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{Type: string(r.Kind)}
	switch {
	case r.Kind == AssignDynamic:
		out.Value = r.Formula
	case len(r.IDs) == 1:
		out.Value = r.IDs[0]
	default:
		out.Value = r.IDs
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the stored form written by MarshalJSON.
func (r *AssignmentRule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind := AssignmentKind(in.Type)
	if kind == AssignDynamic {
		formula, _ := in.Value.(string)
		rule, err := NewDynamicAssignment(formula)
		if err != nil {
			return err
		}
		*r = rule
		return nil
	}
	ids, ok := identifierList(in.Value)
	if !ok {
		return fmt.Errorf("assignment value must be a string or list of strings")
	}
	rule, err := NewAssignmentRule(kind, ids...)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}

// RecipientRule addresses a notification. Dynamic resolution is not allowed here.
type RecipientRule struct {
	Kind AssignmentKind
	IDs  []string
}

func (r RecipientRule) MarshalJSON() ([]byte, error) {
	return AssignmentRule{Kind: r.Kind, IDs: r.IDs}.MarshalJSON()
}

func (r *RecipientRule) UnmarshalJSON(data []byte) error {
	var rule AssignmentRule
	if err := rule.UnmarshalJSON(data); err != nil {
		return err
	}
	if rule.Kind == AssignDynamic {
		return errors.New("notification recipients cannot be dynamic")
	}
	*r = RecipientRule{Kind: rule.Kind, IDs: rule.IDs}
	return nil
}

// DeadlineKind 截止时间类型
type DeadlineKind string

const (
	DeadlineFixed   DeadlineKind = "fixed"
	DeadlineDynamic DeadlineKind = "dynamic"
)

// DeadlineRule is either a FixedDeadline or a DynamicDeadline.
type DeadlineRule interface {
	Kind() DeadlineKind
	deadlineRule()
}

// MaxDeadlineHours caps every hour-based setting at ten years.
const MaxDeadlineHours = 10 * 365 * 24

// ValidHours reports whether hours is a finite, positive value within MaxDeadlineHours.
func ValidHours(hours float64) bool {
	return !math.IsNaN(hours) && !math.IsInf(hours, 0) && hours > 0 && hours <= MaxDeadlineHours
}

// FixedDeadline is a number of hours after the step is instantiated.
type FixedDeadline struct {
	Hours float64
}

func (FixedDeadline) Kind() DeadlineKind { return DeadlineFixed }
func (FixedDeadline) deadlineRule()      {}

// At returns the absolute deadline for a step started at start.
func (d FixedDeadline) At(start time.Time) (time.Time, error) {
	if !ValidHours(d.Hours) {
		return time.Time{}, fmt.Errorf("fixed deadline of %v hours is out of range (0, %d]", d.Hours, MaxDeadlineHours)
	}
	return start.Add(hoursToDuration(d.Hours)), nil
}

// DynamicDeadline is computed from a formula at instantiation time.
type DynamicDeadline struct {
	Formula string
}

func (DynamicDeadline) Kind() DeadlineKind { return DeadlineDynamic }
func (DynamicDeadline) deadlineRule()      {}

// NewFixedDeadline returns a fixed deadline of hours, which must be positive and at most MaxDeadlineHours.
func NewFixedDeadline(hours float64) (DeadlineRule, error) {
	if !ValidHours(hours) {
		return nil, fmt.Errorf("fixed deadline must be a positive number of hours up to %d", MaxDeadlineHours)
	}
	return FixedDeadline{Hours: hours}, nil
}

// NewDynamicDeadline returns a formula-driven deadline.
func NewDynamicDeadline(formula string) (DeadlineRule, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return nil, errors.New("dynamic deadline requires a formula")
	}
	return DynamicDeadline{Formula: formula}, nil
}

type deadlineJSON struct {
	Type    string   `json:"type"`
	Value   *float64 `json:"value,omitempty"`
	Formula string   `json:"formula,omitempty"`
}

func marshalDeadline(rule DeadlineRule) *deadlineJSON {
	switch d := rule.(type) {
	case FixedDeadline:
		hours := d.Hours
		return &deadlineJSON{Type: string(DeadlineFixed), Value: &hours}
	case DynamicDeadline:
		return &deadlineJSON{Type: string(DeadlineDynamic), Formula: d.Formula}
	}
	return nil
}

func unmarshalDeadline(in *deadlineJSON) (DeadlineRule, error) {
	if in == nil {
		return nil, nil
	}
	switch DeadlineKind(in.Type) {
	case DeadlineFixed:
		if in.Value == nil {
			return nil, errors.New("fixed deadline requires a value")
		}
		return NewFixedDeadline(*in.Value)
	case DeadlineDynamic:
		return NewDynamicDeadline(in.Formula)
	}
	return nil, fmt.Errorf("unknown deadline type %q", in.Type)
}

// identifierList accepts a string or a list of strings.
func identifierList(v interface{}) ([]string, bool) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, false
		}
		return []string{val}, true
	case []string:
		return val, len(val) > 0
	case []interface{}:
		if len(val) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
