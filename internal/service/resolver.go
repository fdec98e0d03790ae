package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/formula"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/gorm"
)

// resolver turns assignment, recipient and deadline rules into concrete users and times.
// It reads the organisation tables through whatever handle it is given, so inside a
// transition it must be built on the transaction.
type resolver struct {
	users       repository.UserRepository
	departments repository.DepartmentRepository
	formula     *formula.Evaluator
}

func newResolver(db *gorm.DB, evaluator *formula.Evaluator) *resolver {
	return &resolver{
		users:       repository.NewUserRepository(db),
		departments: repository.NewDepartmentRepository(db),
		formula:     evaluator,
	}
}

// assignees 解析步骤审批人, 结果为空时返回 ErrNoAssignees
func (r *resolver) assignees(step *workflow.Step, data map[string]interface{}) ([]string, error) {
	rule := step.AssignTo
	var ids []string
	var err error
	if rule.Kind == workflow.AssignDynamic {
		if r.formula == nil {
			return nil, errors.New("dynamic assignment requires a formula evaluator")
		}
		ids, err = r.formula.Assignees(rule.Formula, data)
		if err != nil {
			return nil, fmt.Errorf("step %s: assignment formula: %w", step.ID, err)
		}
		if ids, err = r.activeUsers(ids); err != nil {
			return nil, err
		}
	} else {
		ids, err = r.byKind(rule.Kind, rule.IDs)
		if err != nil {
			return nil, err
		}
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("step %s (%s %v): %w", step.ID, rule.Kind, rule.IDs, workflow.ErrNoAssignees)
	}
	return ids, nil
}

// recipients 解析通知接收人. 解析为空不视为错误.
func (r *resolver) recipients(rule workflow.RecipientRule) ([]string, error) {
	ids, err := r.byKind(rule.Kind, rule.IDs)
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func (r *resolver) byKind(kind workflow.AssignmentKind, ids []string) ([]string, error) {
	switch kind {
	case workflow.AssignUser:
		return r.activeUsers(ids)
	case workflow.AssignRole:
		var out []string
		for _, role := range ids {
			users, err := r.users.FindActiveByRole(role)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve role %s: %w", role, err)
			}
			for _, u := range users {
				out = append(out, u.ID)
			}
		}
		return out, nil
	case workflow.AssignDepartment:
		var out []string
		for _, dep := range ids {
			found, err := r.departmentMembers(dep)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported assignment kind %q", kind)
}

// activeUsers 过滤掉不存在或已停用的员工, 保持原有顺序
func (r *resolver) activeUsers(ids []string) ([]string, error) {
	ids = dedupe(ids)
	users, err := r.users.FindActiveByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users %v: %w", ids, err)
	}
	active := make(map[string]struct{}, len(users))
	for _, u := range users {
		active[u.ID] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := active[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// isActiveUser 判断员工存在且在职
func (r *resolver) isActiveUser(id string) (bool, error) {
	found, err := r.activeUsers([]string{id})
	if err != nil {
		return false, err
	}
	return len(found) == 1, nil
}

// departmentMembers 按部门 ID 查找, 找不到时按部门名称查找
func (r *resolver) departmentMembers(ref string) ([]string, error) {
	users, err := r.users.FindActiveByDepartment(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve department %s: %w", ref, err)
	}
	if len(users) == 0 {
		dep, err := r.departments.FindByName(ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to resolve department %s: %w", ref, err)
		}
		if users, err = r.users.FindActiveByDepartment(dep.ID); err != nil {
			return nil, fmt.Errorf("failed to resolve department %s: %w", ref, err)
		}
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out, nil
}

// deadline 计算步骤截止时间, 未配置时返回 nil
func (r *resolver) deadline(step *workflow.Step, data map[string]interface{}, now time.Time) (*time.Time, error) {
	switch d := step.Deadline.(type) {
	case nil:
		return nil, nil
	case workflow.FixedDeadline:
		at, err := d.At(now)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		return &at, nil
	case workflow.DynamicDeadline:
		if r.formula == nil {
			return nil, errors.New("dynamic deadline requires a formula evaluator")
		}
		at, err := r.formula.Deadline(d.Formula, data, now)
		if err != nil {
			return nil, fmt.Errorf("step %s: deadline formula: %w", step.ID, err)
		}
		return &at, nil
	}
	return nil, fmt.Errorf("step %s: unsupported deadline rule %T", step.ID, step.Deadline)
}

// profile 返回审批人的角色和部门名称, 用于选择替补审批人
func (r *resolver) profile(userID string) (workflow.ApproverProfile, error) {
	user, err := r.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.ApproverProfile{}, nil
		}
		return workflow.ApproverProfile{}, err
	}
	profile := workflow.ApproverProfile{Role: user.Role, Department: user.DepartmentID}
	if user.DepartmentID != "" {
		if dep, err := r.departments.FindByID(user.DepartmentID); err == nil {
			profile.Department = dep.Name
		}
	}
	return profile, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
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
