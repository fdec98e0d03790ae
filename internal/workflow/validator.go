package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// templatePayload is the wire shape of a template submission. Fields whose JSON type is
// part of the rules (union values, formulas, counts) are decoded as interface{} and
// checked by the struct-level validators.
type templatePayload struct {
	Name        string        `json:"name" validate:"required,max=255"`
	Description string        `json:"description" validate:"max=2000"`
	Department  string        `json:"department" validate:"required"`
	FileTypes   []string      `json:"fileTypes"`
	Steps       []stepPayload `json:"steps" validate:"required,min=1,dive"`
	SLA         *slaPayload   `json:"sla"`
	Active      *bool         `json:"active"`
}

type stepPayload struct {
	ID                string                `json:"id" validate:"required,max=64"`
	Name              string                `json:"name" validate:"required"`
	Type              string                `json:"type" validate:"required,oneof=approval review sign route notify condition action"`
	AssignTo          *assignPayload        `json:"assignTo" validate:"required"`
	Deadline          *deadlinePayload      `json:"deadline"`
	Dependencies      []string              `json:"dependencies"`
	Parallel          bool                  `json:"parallel"`
	RequiredApprovals interface{}           `json:"requiredApprovals"`
	Conditions        []conditionPayload    `json:"conditions" validate:"dive"`
	Actions           []actionPayload       `json:"actions" validate:"dive"`
	Notifications     []notificationPayload `json:"notifications" validate:"dive"`
}

type assignPayload struct {
	Type  string      `json:"type" validate:"required,oneof=user role department dynamic"`
	Value interface{} `json:"value"`
}

type recipientsPayload struct {
	Type  string      `json:"type" validate:"required,oneof=user role department"`
	Value interface{} `json:"value"`
}

type deadlinePayload struct {
	Type    string      `json:"type" validate:"required,oneof=fixed dynamic"`
	Value   interface{} `json:"value"`
	Formula interface{} `json:"formula"`
}

type conditionPayload struct {
	Field    string      `json:"field" validate:"required"`
	Operator string      `json:"operator" validate:"required,oneof=eq ne gt gte lt lte in nin contains exists"`
	Value    interface{} `json:"value"`
}

type actionPayload struct {
	Type   string                 `json:"type" validate:"required,oneof=set_field notify webhook"`
	Config map[string]interface{} `json:"config"`
}

type notificationPayload struct {
	Event      string             `json:"event" validate:"required"`
	Template   string             `json:"template" validate:"required"`
	Recipients *recipientsPayload `json:"recipients" validate:"required"`
}

type slaPayload struct {
	WarningThreshold float64           `json:"warningThreshold" validate:"gte=0,lte=87600"`
	AutoReassign     bool              `json:"autoReassign"`
	BackupAssignees  map[string]string `json:"backupAssignees"`
	ReminderInterval float64           `json:"reminderInterval" validate:"gte=0,lte=87600"`
}

var customMessages = map[string]string{
	"identifier":     "must be a non-empty string or a non-empty list of strings",
	"formula":        "must be a non-empty formula string",
	"number":         "must be a number",
	"positive":       "must be greater than 0",
	"max_hours":      fmt.Sprintf("must be at most %d hours", MaxDeadlineHours),
	"integer":        "must be an integer greater than or equal to 1",
	"present":        "is required",
	"parallel_count": "is required when parallel is true",
	"has_condition":  "condition steps require at least one condition",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(jsonFieldName)
		v.RegisterStructValidation(validateIdentifierRule, assignPayload{}, recipientsPayload{})
		v.RegisterStructValidation(validateDeadlineRule, deadlinePayload{})
		v.RegisterStructValidation(validateStepRules, stepPayload{})
		v.RegisterStructValidation(validateConditionRule, conditionPayload{})
		v.RegisterStructValidation(validateActionRule, actionPayload{})
		validate = v
	})
	return validate
}

// ValidateTemplate checks a raw template payload. It returns the normalised template
// when every rule holds and the complete list of violations otherwise, never both.
func ValidateTemplate(raw []byte) (*Template, FieldErrors) {
	var payload templatePayload
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
	checkStepGraph(payload.Steps, &errs)

	if len(errs) > 0 {
		return nil, errs
	}

	tpl, err := payload.toTemplate()
	if err != nil {
		return nil, FieldErrors{{Field: "body", Message: err.Error()}}
	}
	return tpl, nil
}

// Validate re-checks an already-built template against the same rules as ValidateTemplate.
func (t *Template) Validate() FieldErrors {
	raw, err := json.Marshal(t)
	if err != nil {
		return FieldErrors{{Field: "body", Message: err.Error()}}
	}
	_, errs := ValidateTemplate(raw)
	return errs
}

// decodePayload unmarshals raw into dst. Every type mismatch is reported under its indexed
// path and the offending value is dropped so decoding continues; malformed JSON is fatal.
func decodePayload(raw []byte, dst interface{}) (FieldErrors, bool) {
	var errs FieldErrors
	if len(strings.TrimSpace(string(raw))) == 0 {
		errs.Add("body", "request body is required")
		return errs, true
	}
	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		errs.Add("body", "malformed JSON: "+err.Error())
		return errs, true
	}
	if _, ok := tree.(map[string]interface{}); !ok {
		errs.Add("body", "must be a JSON object")
		return errs, true
	}

	tree = checkJSONTypes(tree, reflect.TypeOf(dst), "", &errs)
	cleaned, err := json.Marshal(tree)
	if err != nil {
		errs.Add("body", err.Error())
		return errs, true
	}
	if err := json.Unmarshal(cleaned, dst); err != nil {
		// 键名大小写不一致时 encoding/json 仍会匹配字段, 这里只能给出不带下标的路径
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			errs.Add(typeErr.Field, mustBe(typeErr.Type))
			return errs, false
		}
		errs.Add("body", "malformed JSON: "+err.Error())
		return errs, true
	}
	return errs, false
}

// checkJSONTypes walks a generic JSON value against the Go type it decodes into. A value of
// the wrong JSON type is reported at path and replaced with null.
func checkJSONTypes(v interface{}, t reflect.Type, path string, errs *FieldErrors) interface{} {
	if v == nil {
		return nil
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Interface:
		return v
	case reflect.String:
		if _, ok := v.(string); ok {
			return v
		}
	case reflect.Bool:
		if _, ok := v.(bool); ok {
			return v
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if _, ok := v.(float64); ok {
			return v
		}
	case reflect.Slice, reflect.Array:
		if items, ok := v.([]interface{}); ok {
			for i, item := range items {
				items[i] = checkJSONTypes(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i), errs)
			}
			return items
		}
	case reflect.Map:
		if obj, ok := v.(map[string]interface{}); ok {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				obj[k] = checkJSONTypes(obj[k], t.Elem(), joinPath(path, k), errs)
			}
			return obj
		}
	case reflect.Struct:
		if obj, ok := v.(map[string]interface{}); ok {
			for i := 0; i < t.NumField(); i++ {
				name := jsonFieldName(t.Field(i))
				item, present := obj[name]
				if name == "" || !present {
					continue
				}
				obj[name] = checkJSONTypes(item, t.Field(i).Type, joinPath(path, name), errs)
			}
			return obj
		}
	default:
		return v
	}
	errs.Add(path, mustBe(t))
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func mustBe(t reflect.Type) string {
	name := jsonTypeName(t)
	switch name {
	case "array", "object":
		return "must be an " + name
	}
	return "must be a " + name
}

func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonTypeName(t.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	}
	return "value"
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// translateValidationErrors maps validator errors to JSON paths such as steps[0].deadline.value.
func translateValidationErrors(err error) FieldErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{{Field: "body", Message: err.Error()}}
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	return out
}

func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	}
	if msg, ok := customMessages[fe.Tag()]; ok {
		return msg
	}
	return "failed " + fe.Tag() + " validation"
}

func validateIdentifierRule(sl validator.StructLevel) {
	var kind string
	var value interface{}
	switch p := sl.Current().Interface().(type) {
	case assignPayload:
		kind, value = p.Type, p.Value
	case recipientsPayload:
		kind, value = p.Type, p.Value
	default:
		return
	}

	if value == nil {
		sl.ReportError(value, "value", "Value", "present", "")
		return
	}
	if AssignmentKind(kind) == AssignDynamic {
		if s, ok := value.(string); !ok || strings.TrimSpace(s) == "" {
			sl.ReportError(value, "value", "Value", "formula", "")
		}
		return
	}
	if _, ok := identifierList(value); !ok {
		sl.ReportError(value, "value", "Value", "identifier", "")
	}
}

// validateDeadlineRule checks only the field the discriminant selects.
func validateDeadlineRule(sl validator.StructLevel) {
	d := sl.Current().Interface().(deadlinePayload)
	switch DeadlineKind(d.Type) {
	case DeadlineFixed:
		if d.Value == nil {
			sl.ReportError(d.Value, "value", "Value", "present", "")
			return
		}
		hours, ok := d.Value.(float64)
		if !ok {
			sl.ReportError(d.Value, "value", "Value", "number", "")
			return
		}
		switch {
		case hours <= 0:
			sl.ReportError(d.Value, "value", "Value", "positive", "")
		case !ValidHours(hours):
			sl.ReportError(d.Value, "value", "Value", "max_hours", "")
		}
	case DeadlineDynamic:
		if d.Formula == nil {
			sl.ReportError(d.Formula, "formula", "Formula", "present", "")
			return
		}
		if s, ok := d.Formula.(string); !ok || strings.TrimSpace(s) == "" {
			sl.ReportError(d.Formula, "formula", "Formula", "formula", "")
		}
	}
}

func validateStepRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(stepPayload)
	if s.RequiredApprovals != nil {
		if _, ok := positiveInt(s.RequiredApprovals); !ok {
			sl.ReportError(s.RequiredApprovals, "requiredApprovals", "RequiredApprovals", "integer", "")
		}
	} else if s.Parallel && StepType(s.Type) == StepApproval {
		sl.ReportError(s.RequiredApprovals, "requiredApprovals", "RequiredApprovals", "parallel_count", "")
	}
	if StepType(s.Type) == StepCondition && len(s.Conditions) == 0 {
		sl.ReportError(s.Conditions, "conditions", "Conditions", "has_condition", "")
	}
}

func validateConditionRule(sl validator.StructLevel) {
	c := sl.Current().Interface().(conditionPayload)
	if c.Value == nil {
		sl.ReportError(c.Value, "value", "Value", "present", "")
	}
}

func validateActionRule(sl validator.StructLevel) {
	a := sl.Current().Interface().(actionPayload)
	var key string
	switch a.Type {
	case ActionSetField:
		key = "field"
	case ActionWebhook:
		key = "url"
	case ActionNotify:
		key = "event"
	default:
		return
	}
	if s, ok := a.Config[key].(string); !ok || strings.TrimSpace(s) == "" {
		sl.ReportError(a.Config, "config."+key, "Config", "present", "")
	}
}

func positiveInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// checkStepGraph validates the dependency structure: unique ids, known references,
// no self-dependency and no cycle.
func checkStepGraph(steps []stepPayload, errs *FieldErrors) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		if j, dup := index[id]; dup {
			errs.Add(fmt.Sprintf("steps[%d].id", i), fmt.Sprintf("duplicate step id %q (first used by steps[%d])", id, j))
			continue
		}
		index[id] = i
	}

	edges := make(map[int][]int, len(steps))
	for i, s := range steps {
		for j, dep := range s.Dependencies {
			dep = strings.TrimSpace(dep)
			path := fmt.Sprintf("steps[%d].dependencies[%d]", i, j)
			target, known := index[dep]
			switch {
			case dep == strings.TrimSpace(s.ID):
				errs.Add(path, "step cannot depend on itself")
			case !known:
				errs.Add(path, fmt.Sprintf("unknown step %q", dep))
			default:
				edges[i] = append(edges[i], target)
			}
		}
	}

	if cycle := findCycle(len(steps), edges); cycle != nil {
		names := make([]string, 0, len(cycle))
		for _, i := range cycle {
			names = append(names, steps[i].ID)
		}
		errs.Add(fmt.Sprintf("steps[%d].dependencies", cycle[0]), "dependency cycle: "+strings.Join(names, " -> "))
	}
}

// findCycle returns the step indexes of the first cycle found, closed on its first element.
func findCycle(n int, edges map[int][]int) []int {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, n)
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = grey
		stack = append(stack, i)
		for _, next := range edges[i] {
			switch color[next] {
			case grey:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == next {
						cycle = append(append([]int{}, stack[k:]...), next)
						break
					}
				}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := 0; i < n; i++ {
		if color[i] == white && visit(i) {
			return cycle
		}
	}
	return nil
}

func (p *templatePayload) toTemplate() (*Template, error) {
	tpl := &Template{
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Department:  strings.TrimSpace(p.Department),
		Active:      p.Active == nil || *p.Active,
	}
	seen := make(map[string]struct{})
	for _, ft := range p.FileTypes {
		ft = normalizeFileType(ft)
		if _, ok := seen[ft]; ok || ft == "" {
			continue
		}
		seen[ft] = struct{}{}
		tpl.FileTypes = append(tpl.FileTypes, ft)
	}

	for i := range p.Steps {
		step, err := p.Steps[i].toStep()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		tpl.Steps = append(tpl.Steps, step)
	}

	if p.SLA != nil {
		backups := make(map[string]string, len(p.SLA.BackupAssignees))
		for k, v := range p.SLA.BackupAssignees {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				backups[k] = v
			}
		}
		tpl.SLA = &SLAPolicy{
			WarningThreshold: p.SLA.WarningThreshold,
			AutoReassign:     p.SLA.AutoReassign,
			BackupAssignees:  backups,
			ReminderInterval: p.SLA.ReminderInterval,
		}
	}
	return tpl, nil
}

func (p *stepPayload) toStep() (Step, error) {
	step := Step{
		ID:       strings.TrimSpace(p.ID),
		Name:     strings.TrimSpace(p.Name),
		Type:     StepType(p.Type),
		Parallel: p.Parallel,
	}

	var err error
	if AssignmentKind(p.AssignTo.Type) == AssignDynamic {
		formula, _ := p.AssignTo.Value.(string)
		step.AssignTo, err = NewDynamicAssignment(formula)
	} else {
		ids, _ := identifierList(p.AssignTo.Value)
		step.AssignTo, err = NewAssignmentRule(AssignmentKind(p.AssignTo.Type), ids...)
	}
	if err != nil {
		return Step{}, err
	}

	if p.Deadline != nil {
		switch DeadlineKind(p.Deadline.Type) {
		case DeadlineFixed:
			hours, _ := p.Deadline.Value.(float64)
			step.Deadline, err = NewFixedDeadline(hours)
		case DeadlineDynamic:
			formula, _ := p.Deadline.Formula.(string)
			step.Deadline, err = NewDynamicDeadline(formula)
		}
		if err != nil {
			return Step{}, err
		}
	}

	if deps := compactIDs(p.Dependencies); len(deps) > 0 {
		step.Dependencies = deps
	}
	if n, ok := positiveInt(p.RequiredApprovals); ok {
		step.RequiredApprovals = &n
	}

	for _, c := range p.Conditions {
		step.Conditions = append(step.Conditions, Condition{
			Field:    strings.TrimSpace(c.Field),
			Operator: c.Operator,
			Value:    c.Value,
		})
	}
	for _, a := range p.Actions {
		step.Actions = append(step.Actions, Action{Type: a.Type, Config: a.Config})
	}
	for _, n := range p.Notifications {
		ids, _ := identifierList(n.Recipients.Value)
		rule, err := NewAssignmentRule(AssignmentKind(n.Recipients.Type), ids...)
		if err != nil {
			return Step{}, err
		}
		step.Notifications = append(step.Notifications, NotificationRule{
			Event:      strings.TrimSpace(n.Event),
			Template:   strings.TrimSpace(n.Template),
			Recipients: RecipientRule{Kind: rule.Kind, IDs: rule.IDs},
		})
	}
	return step, nil
}

func normalizeFileType(ft string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
}
