// Package formula evaluates the JavaScript expressions used by dynamic deadlines and
// dynamic assignment rules.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 250 * time.Millisecond

// MaxDeadline is the furthest a computed deadline may lie ahead of now.
const MaxDeadline = 10 * 365 * 24 * time.Hour

// ErrTimeout is returned when a formula runs longer than the evaluator allows.
var ErrTimeout = errors.New("formula evaluation timed out")

// Evaluator runs formulas in a fresh goja runtime per call.
type Evaluator struct {
	timeout time.Duration
	logger  *logrus.Logger
}

// NewEvaluator 创建公式求值器
func NewEvaluator(timeout time.Duration, logger *logrus.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Evaluator{timeout: timeout, logger: logger}
}

// Eval runs formula with env bound as globals and returns the exported result.
func (e *Evaluator) Eval(formula string, env map[string]interface{}) (interface{}, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := e.setupConsole(vm); err != nil {
		return nil, err
	}
	for k, v := range env {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	val, err := vm.RunString(formula)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("formula error: %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, errors.New("formula returned no value")
	}
	return val.Export(), nil
}

// Deadline evaluates a dynamic deadline. A number is read as hours from now, a string as
// an RFC3339 timestamp and a Date as an absolute time.
func (e *Evaluator) Deadline(formula string, document map[string]interface{}, now time.Time) (time.Time, error) {
	out, err := e.Eval(formula, map[string]interface{}{
		"document": document,
		"now":      now.UnixMilli(),
	})
	if err != nil {
		return time.Time{}, err
	}

	var deadline time.Time
	switch v := out.(type) {
	case int64:
		if v > int64(MaxDeadline/time.Hour) {
			return time.Time{}, fmt.Errorf("formula returned %d hours, more than the %s limit", v, MaxDeadline)
		}
		deadline = now.Add(time.Duration(v) * time.Hour)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v > MaxDeadline.Hours() {
			return time.Time{}, fmt.Errorf("formula returned %v hours, outside the %s limit", v, MaxDeadline)
		}
		deadline = now.Add(time.Duration(v * float64(time.Hour)))
	case string:
		deadline, err = time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, fmt.Errorf("formula returned an invalid timestamp %q: %w", v, err)
		}
	case time.Time:
		deadline = v
	default:
		return time.Time{}, fmt.Errorf("formula returned unsupported type %T", out)
	}
	if !deadline.After(now) {
		return time.Time{}, fmt.Errorf("formula returned a deadline in the past: %s", deadline.Format(time.RFC3339))
	}
	if deadline.Sub(now) > MaxDeadline {
		return time.Time{}, fmt.Errorf("formula returned a deadline more than %s ahead: %s", MaxDeadline, deadline.Format(time.RFC3339))
	}
	return deadline.UTC(), nil
}

// Assignees evaluates a dynamic assignment and returns the user ids it yields.
func (e *Evaluator) Assignees(formula string, document map[string]interface{}) ([]string, error) {
	out, err := e.Eval(formula, map[string]interface{}{"document": document})
	if err != nil {
		return nil, err
	}

	var ids []string
	switch v := out.(type) {
	case string:
		ids = []string{v}
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("formula returned a non-string assignee %v", item)
			}
			ids = append(ids, s)
		}
	default:
		return nil, fmt.Errorf("formula returned unsupported type %T", out)
	}

	cleaned := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return cleaned, nil
}

// setupConsole routes console.log from formulas to the service logger.
func (e *Evaluator) setupConsole(vm *goja.Runtime) error {
	console := vm.NewObject()
	logFn := func(level logrus.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				args = append(args, arg.Export())
			}
			e.logger.WithField("component", "formula").Log(level, args...)
			return goja.Undefined()
		}
	}
	if err := console.Set("log", logFn(logrus.DebugLevel)); err != nil {
		return fmt.Errorf("failed to set console.log: %w", err)
	}
	if err := console.Set("warn", logFn(logrus.WarnLevel)); err != nil {
		return fmt.Errorf("failed to set console.warn: %w", err)
	}
	return vm.Set("console", console)
}
