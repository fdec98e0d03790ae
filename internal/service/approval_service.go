package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApprovalService 审批服务接口
type ApprovalService interface {
	Get(id string) (*workflow.Approval, error)
	Act(ctx context.Context, id string, req *workflow.ActionRequest) (*workflow.Approval, error)
	Remind(ctx context.Context, id string) (*workflow.Approval, error)
	Warn(ctx context.Context, id string) (*workflow.Approval, error)
	Escalate(ctx context.Context, id string, to string) (*workflow.Approval, error)
}

// approvalService 审批服务实现
type approvalService struct {
	db     *gorm.DB
	engine *Engine
	now    func() time.Time
}

// NewApprovalService 创建审批服务
func NewApprovalService(db *gorm.DB, engine *Engine) ApprovalService {
	return &approvalService{db: db, engine: engine, now: time.Now}
}

// approvalScope is an approval together with everything a transition on it needs,
// loaded inside the transition.
type approvalScope struct {
	approval *workflow.Approval
	before   workflow.Approval
	doc      *model.DocumentModel
	tpl      *workflow.Template
	step     *workflow.Step
	states   map[string]workflow.StepState
}

// load reads the approval and its document, template version and step progress. The
// document must be in progress and the step active.
func (s *approvalService) load(uow *unitOfWork, id string) (*approvalScope, error) {
	approvals := repository.NewDocumentApprovalRepository(uow.tx)
	m, err := approvals.FindByID(id)
	if err != nil {
		return nil, err
	}

	// 锁定文档行, 同一文档上的决定依次读取兄弟记录; 加锁后重新读取审批记录
	doc, err := repository.NewDocumentRepository(uow.tx).FindByIDForUpdate(m.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", m.DocumentID, err)
	}
	if m, err = approvals.FindByID(id); err != nil {
		return nil, err
	}
	a := m.ToDomain()
	sc := &approvalScope{approval: a, before: *a, doc: doc}

	if sc.doc.Status != string(workflow.DocumentInProgress) {
		return nil, &workflow.StateConflictError{Entity: EntityDocument, ID: sc.doc.ID, Current: sc.doc.Status, Reason: "document is not in progress"}
	}
	if sc.tpl, err = s.engine.templates.load(uow.tx, sc.doc.TemplateID, sc.doc.TemplateVersion); err != nil {
		return nil, fmt.Errorf("failed to load template %s v%d: %w", sc.doc.TemplateID, sc.doc.TemplateVersion, err)
	}
	if sc.step = sc.tpl.StepByID(a.StepKey); sc.step == nil {
		return nil, fmt.Errorf("step %s not found in template %s v%d", a.StepKey, sc.tpl.ID, sc.tpl.Version)
	}
	if sc.states, err = loadStates(uow.tx, sc.doc.ID); err != nil {
		return nil, err
	}

	switch state := sc.states[sc.step.ID]; {
	case state.IsResolved():
		return nil, &workflow.StateConflictError{Entity: "step", ID: sc.step.ID, Current: string(state), Reason: "step is already resolved"}
	case state != workflow.StepActive:
		if err := sc.tpl.CheckReady(sc.step.ID, sc.states); err != nil {
			return nil, err
		}
		return nil, &workflow.StateConflictError{Entity: "step", ID: sc.step.ID, Current: string(workflow.StepNotStarted), Reason: "step is not active"}
	}
	return sc, nil
}

// Get 获取审批记录
func (s *approvalService) Get(id string) (*workflow.Approval, error) {
	m, err := repository.NewDocumentApprovalRepository(s.db).FindByID(id)
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Act applies a participant action, resolves the step when the action decides it and
// advances the document, all in one transaction.
func (s *approvalService) Act(ctx context.Context, id string, req *workflow.ActionRequest) (*workflow.Approval, error) {
	now := s.now()
	actor := auth.ActorFrom(ctx)
	var result *workflow.Approval

	entry := &AuditEntry{Action: string(req.Action), EntityType: EntityApproval, EntityID: id}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		sc, err := s.load(uow, id)
		if err != nil {
			return err
		}
		if errs := workflow.CheckActionForStep(req.Action, sc.step.Type); len(errs) > 0 {
			return errs
		}

		a := sc.approval
		if err := a.Decide(actor, *req, now); err != nil {
			return err
		}
		var formData datatypes.JSON
		if len(a.FormData) > 0 {
			encoded, err := json.Marshal(a.FormData)
			if err != nil {
				return fmt.Errorf("failed to encode form data: %w", err)
			}
			formData = datatypes.JSON(encoded)
		}

		approvals := repository.NewDocumentApprovalRepository(uow.tx)
		ok, err := approvals.Decide(a.ID, string(a.Status), string(a.Action), a.Comments, formData, now)
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !ok {
			return &workflow.StateConflictError{Entity: EntityApproval, ID: a.ID, Current: "decided", Reason: "approval was decided concurrently"}
		}

		siblings, err := approvals.FindByDocumentStep(sc.doc.ID, sc.step.ID)
		if err != nil {
			return fmt.Errorf("failed to load step approvals: %w", err)
		}
		records := make([]*workflow.Approval, 0, len(siblings))
		for _, m := range siblings {
			records = append(records, m.ToDomain())
		}
		res := newResolver(uow.tx, s.engine.formula)
		if _, err := s.engine.resolveParticipantStep(uow, res, sc.doc, sc.step, records); err != nil {
			return err
		}
		if err := s.engine.advance(ctx, uow, sc.doc, sc.tpl); err != nil {
			return err
		}

		entry.Before = &sc.before
		entry.After = a
		result = a
		action := string(a.Action)
		uow.onCommit(func(context.Context) { metrics.RecordApproval(action) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remind 手动提醒当前审批人
func (s *approvalService) Remind(ctx context.Context, id string) (*workflow.Approval, error) {
	return s.remindAt(ctx, id, workflow.EventApprovalReminder, s.now())
}

// Warn 截止时间临近时提醒审批人(巡检使用)
func (s *approvalService) Warn(ctx context.Context, id string) (*workflow.Approval, error) {
	return s.remindAt(ctx, id, workflow.EventApprovalWarning, s.now())
}

func (s *approvalService) remindAt(ctx context.Context, id string, event string, now time.Time) (*workflow.Approval, error) {
	var result *workflow.Approval

	entry := &AuditEntry{Action: "remind", EntityType: EntityApproval, EntityID: id}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		sc, err := s.load(uow, id)
		if err != nil {
			return err
		}
		a := sc.approval
		if err := a.Remind(now); err != nil {
			return err
		}
		ok, err := repository.NewDocumentApprovalRepository(uow.tx).Remind(a.ID, now)
		if err != nil {
			return fmt.Errorf("failed to record reminder: %w", err)
		}
		if !ok {
			return &workflow.StateConflictError{Entity: EntityApproval, ID: a.ID, Current: "decided", Reason: "approval was decided concurrently"}
		}

		n := approvalNotice(sc, event)
		n.Payload["remindersSent"] = a.RemindersSent
		if err := s.engine.notifier.emit(uow, newResolver(uow.tx, s.engine.formula), sc.step, n, a.Assignee()); err != nil {
			return err
		}

		entry.Before = &sc.before
		entry.After = a
		result = a
		uow.onCommit(func(context.Context) { metrics.RecordReminder(event) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Escalate 将审批升级给替补审批人. to 为空时按模板 SLA 策略的角色/部门替补表选择.
func (s *approvalService) Escalate(ctx context.Context, id string, to string) (*workflow.Approval, error) {
	return s.escalateAt(ctx, id, to, s.now())
}

func (s *approvalService) escalateAt(ctx context.Context, id string, to string, now time.Time) (*workflow.Approval, error) {
	var result *workflow.Approval

	entry := &AuditEntry{Action: "escalate", EntityType: EntityApproval, EntityID: id}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		sc, err := s.load(uow, id)
		if err != nil {
			return err
		}
		a := sc.approval
		res := newResolver(uow.tx, s.engine.formula)

		if to == "" {
			profile, err := res.profile(a.ApproverID)
			if err != nil {
				return fmt.Errorf("failed to load approver profile: %w", err)
			}
			to = sc.tpl.SLA.BackupFor(profile)
		}
		alreadyEscalated := a.IsEscalated && a.EscalatedTo == to
		if err := a.Escalate(to, now, sc.tpl.SLA); err != nil {
			return err
		}
		entry.Before = &sc.before
		entry.After = a
		result = a
		if alreadyEscalated {
			return nil
		}
		active, err := res.isActiveUser(to)
		if err != nil {
			return err
		}
		if !active {
			return &workflow.EscalationConfigError{ApprovalID: a.ID, Reason: fmt.Sprintf("substitute %s is not an active user", to)}
		}

		ok, err := repository.NewDocumentApprovalRepository(uow.tx).Escalate(a.ID, to, now)
		if err != nil {
			return fmt.Errorf("failed to record escalation: %w", err)
		}
		if !ok {
			return &workflow.StateConflictError{Entity: EntityApproval, ID: a.ID, Current: "decided", Reason: "approval was decided concurrently"}
		}

		n := approvalNotice(sc, workflow.EventApprovalEscalated)
		n.Payload["escalatedTo"] = to
		n.Payload["approverId"] = a.ApproverID
		if err := s.engine.notifier.emit(uow, res, sc.step, n, to, a.ApproverID); err != nil {
			return err
		}
		s.engine.grant(uow, to, a.ID, sc.doc.ID)
		uow.onCommit(func(context.Context) {
			metrics.RecordEscalation()
			logrus.WithFields(logrus.Fields{
				"approval_id": a.ID,
				"approver":    a.ApproverID,
				"escalatedTo": to,
			}).Info("Approval escalated")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func approvalNotice(sc *approvalScope, event string) notice {
	n := stepNotice(sc.doc, sc.step, event)
	n.ApprovalID = sc.approval.ID
	n.Payload["approvalId"] = sc.approval.ID
	if sc.approval.Deadline != nil {
		n.Payload["deadline"] = sc.approval.Deadline.Format(time.RFC3339)
	}
	return n
}
