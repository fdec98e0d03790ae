package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/formula"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventActionWebhook is the outbox event of a webhook action. The dispatcher posts its
// payload to the configured url instead of fanning it out to recipients.
const EventActionWebhook = "action.webhook"

// templateCacheEntry 模板缓存条目
type templateCacheEntry struct {
	template  *workflow.Template
	expiresAt time.Time
}

// templateCache caches pinned template versions. A version never changes once written,
// so only deletion needs to invalidate.
type templateCache struct {
	entries sync.Map
	ttl     time.Duration
}

func newTemplateCache(ttl time.Duration) *templateCache {
	return &templateCache{ttl: ttl}
}

func (c *templateCache) load(db *gorm.DB, id string, version int) (*workflow.Template, error) {
	key := fmt.Sprintf("%s:%d", id, version)
	if version > 0 {
		if val, ok := c.entries.Load(key); ok {
			entry := val.(*templateCacheEntry)
			if time.Now().Before(entry.expiresAt) {
				return entry.template, nil
			}
			c.entries.Delete(key)
		}
	}

	m, err := repository.NewWorkflowRepository(db).FindByID(id, version)
	if err != nil {
		return nil, err
	}
	tpl, err := m.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %s v%d: %w", m.ID, m.Version, err)
	}
	c.entries.Store(fmt.Sprintf("%s:%d", tpl.ID, tpl.Version), &templateCacheEntry{template: tpl, expiresAt: time.Now().Add(c.ttl)})
	return tpl, nil
}

func (c *templateCache) invalidate(id string) {
	prefix := id + ":"
	c.entries.Range(func(key, _ interface{}) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
		}
		return true
	})
}

// Engine moves a document through its template: it activates eligible steps, runs
// automatic ones, skips blocked ones and finalises the document.
type Engine struct {
	formula   *formula.Evaluator
	notifier  *notifier
	authz     auth.Authorizer
	templates *templateCache
}

// NewEngine 创建流程推进引擎. authz 和 dispatcher 可以为 nil.
func NewEngine(evaluator *formula.Evaluator, dispatcher NotificationDispatcher, authz auth.Authorizer, cacheTTL time.Duration) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Engine{
		formula:   evaluator,
		notifier:  &notifier{dispatcher: dispatcher},
		authz:     authz,
		templates: newTemplateCache(cacheTTL),
	}
}

func loadStates(tx *gorm.DB, documentID string) (map[string]workflow.StepState, error) {
	rows, err := repository.NewDocumentStepRepository(tx).FindByDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step progress: %w", err)
	}
	states := make(map[string]workflow.StepState, len(rows))
	for _, r := range rows {
		states[r.StepKey] = workflow.StepState(r.State)
	}
	return states, nil
}

func documentNotice(doc *model.DocumentModel, event string) notice {
	return notice{
		Event:      event,
		DocumentID: doc.ID,
		Payload: map[string]interface{}{
			"documentId": doc.ID,
			"title":      doc.Title,
			"templateId": doc.TemplateID,
		},
	}
}

func stepNotice(doc *model.DocumentModel, step *workflow.Step, event string) notice {
	n := documentNotice(doc, event)
	n.StepKey = step.ID
	n.Payload["stepId"] = step.ID
	n.Payload["stepName"] = step.Name
	return n
}

// advance runs until no step changes state, then finalises the document when every step
// is resolved. It must run inside the transition that changed the document.
func (e *Engine) advance(ctx context.Context, uow *unitOfWork, doc *model.DocumentModel, tpl *workflow.Template) error {
	res := newResolver(uow.tx, e.formula)
	data := doc.DataMap()
	dataChanged := false

	for {
		states, err := loadStates(uow.tx, doc.ID)
		if err != nil {
			return err
		}
		plan, err := tpl.Next(states, data)
		if err != nil {
			return fmt.Errorf("failed to evaluate step conditions: %w", err)
		}
		if plan.Empty() {
			break
		}
		for _, step := range plan.Skip {
			if err := e.skip(uow, doc.ID, step, skipReason(step, states)); err != nil {
				return err
			}
		}
		for _, step := range plan.Activate {
			changed, err := e.activate(ctx, uow, res, doc, tpl, step, states, data)
			if err != nil {
				return err
			}
			dataChanged = dataChanged || changed
		}
	}

	if dataChanged {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if err := repository.NewDocumentRepository(uow.tx).UpdateData(doc.ID, datatypes.JSON(encoded), uow.now); err != nil {
			return fmt.Errorf("failed to update document data: %w", err)
		}
		doc.Data = datatypes.JSON(encoded)
	}

	states, err := loadStates(uow.tx, doc.ID)
	if err != nil {
		return err
	}
	return e.finish(uow, res, doc, tpl, states)
}

func skipReason(step *workflow.Step, states map[string]workflow.StepState) string {
	for _, dep := range step.Dependencies {
		switch states[dep] {
		case workflow.StepRejected:
			return "dependency " + dep + " was rejected"
		case workflow.StepSkipped:
			return "dependency " + dep + " was skipped"
		}
	}
	return "conditions not met"
}

func (e *Engine) skip(uow *unitOfWork, documentID string, step *workflow.Step, reason string) error {
	now := uow.now
	_, err := repository.NewDocumentStepRepository(uow.tx).CreateIfAbsent(&model.DocumentStepModel{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		StepKey:    step.ID,
		State:      string(workflow.StepSkipped),
		Reason:     reason,
		ResolvedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("failed to skip step %s: %w", step.ID, err)
	}
	return nil
}

// activate marks step ACTIVE and either runs it (automatic steps) or instantiates one
// approval per resolved assignee. It reports whether the document data changed.
func (e *Engine) activate(ctx context.Context, uow *unitOfWork, res *resolver, doc *model.DocumentModel, tpl *workflow.Template,
	step *workflow.Step, states map[string]workflow.StepState, data map[string]interface{}) (bool, error) {
	if err := tpl.CheckReady(step.ID, states); err != nil {
		return false, err
	}

	now := uow.now
	created, err := repository.NewDocumentStepRepository(uow.tx).CreateIfAbsent(&model.DocumentStepModel{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		StepKey:     step.ID,
		State:       string(workflow.StepActive),
		ActivatedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to activate step %s: %w", step.ID, err)
	}
	if !created {
		return false, nil
	}

	if step.Type.IsAutomatic() {
		return e.runAutomatic(uow, res, doc, step, data)
	}
	return false, e.instantiate(ctx, uow, res, doc, tpl, step, data)
}

// instantiate creates the approvals of a participant step. The unique index on
// (document, step, approver) makes repeated instantiation a no-op.
func (e *Engine) instantiate(ctx context.Context, uow *unitOfWork, res *resolver, doc *model.DocumentModel, tpl *workflow.Template,
	step *workflow.Step, data map[string]interface{}) error {
	approvers, err := res.assignees(step, data)
	if err != nil {
		return err
	}
	deadline, err := res.deadline(step, data, uow.now)
	if err != nil {
		return err
	}

	repo := repository.NewDocumentApprovalRepository(uow.tx)
	for _, approver := range approvers {
		a := &workflow.Approval{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			WorkflowStepID: model.StepRowID(tpl.ID, tpl.Version, step.ID),
			StepKey:        step.ID,
			ApproverID:     approver,
			Status:         workflow.ApprovalPending,
			Deadline:       deadline,
			CreatedAt:      uow.now,
			UpdatedAt:      uow.now,
		}
		created, err := repo.CreateIfAbsent(model.NewDocumentApprovalModel(a))
		if err != nil {
			return fmt.Errorf("failed to create approval for %s: %w", approver, err)
		}
		if !created {
			continue
		}
		if err := appendAudit(ctx, uow, AuditEntry{Action: "instantiate", EntityType: EntityApproval, EntityID: a.ID, After: a}); err != nil {
			return err
		}
		e.grant(uow, approver, a.ID, doc.ID)

		n := stepNotice(doc, step, workflow.EventStepAssigned)
		n.ApprovalID = a.ID
		n.Payload["approvalId"] = a.ID
		if deadline != nil {
			n.Payload["deadline"] = deadline.Format(time.RFC3339)
		}
		if err := e.notifier.emit(uow, res, step, n, approver); err != nil {
			return err
		}
	}
	return nil
}

// runAutomatic executes a notify, condition or action step and resolves it.
func (e *Engine) runAutomatic(uow *unitOfWork, res *resolver, doc *model.DocumentModel, step *workflow.Step, data map[string]interface{}) (bool, error) {
	outcome := workflow.StepCompleted
	reason := ""
	changed := false

	switch step.Type {
	case workflow.StepNotify:
		if err := e.notifier.emitRules(uow, res, step.Notifications, stepNotice(doc, step, "")); err != nil {
			return false, err
		}
	case workflow.StepCondition:
		ok, err := workflow.EvaluateConditions(step.Conditions, data)
		if err != nil {
			return false, fmt.Errorf("step %s: %w", step.ID, err)
		}
		if !ok {
			outcome = workflow.StepSkipped
			reason = "conditions not met"
		}
	case workflow.StepAction:
		for i, action := range step.Actions {
			c, err := e.runAction(uow, res, doc, step, action, data)
			if err != nil {
				return false, fmt.Errorf("step %s: actions[%d]: %w", step.ID, i, err)
			}
			changed = changed || c
		}
	}

	ok, err := repository.NewDocumentStepRepository(uow.tx).Transition(doc.ID, step.ID, string(workflow.StepActive), string(outcome), reason, uow.now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &workflow.StateConflictError{Entity: "step", ID: step.ID, Current: "resolved", Reason: "step resolved concurrently"}
	}
	if outcome == workflow.StepCompleted {
		if err := e.notifier.emit(uow, res, step, stepNotice(doc, step, workflow.EventStepCompleted)); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func (e *Engine) runAction(uow *unitOfWork, res *resolver, doc *model.DocumentModel, step *workflow.Step, action workflow.Action, data map[string]interface{}) (bool, error) {
	switch action.Type {
	case workflow.ActionSetField:
		field, _ := action.Config["field"].(string)
		if field == "" {
			return false, fmt.Errorf("set_field requires config.field")
		}
		workflow.SetPath(data, field, action.Config["value"])
		return true, nil

	case workflow.ActionNotify:
		n := stepNotice(doc, step, fmt.Sprint(action.Config["event"]))
		n.Template, _ = action.Config["template"].(string)
		recipients := []string{doc.UploadedBy}
		if raw, ok := action.Config["recipients"]; ok {
			var rule workflow.RecipientRule
			encoded, err := json.Marshal(raw)
			if err != nil {
				return false, err
			}
			if err := json.Unmarshal(encoded, &rule); err != nil {
				return false, fmt.Errorf("invalid recipients: %w", err)
			}
			if recipients, err = res.recipients(rule); err != nil {
				return false, err
			}
		}
		n.Recipients = recipients
		return false, e.notifier.enqueue(uow, n)

	case workflow.ActionWebhook:
		n := stepNotice(doc, step, EventActionWebhook)
		n.Payload["url"] = action.Config["url"]
		method, _ := action.Config["method"].(string)
		if method == "" {
			method = "POST"
		}
		n.Payload["method"] = strings.ToUpper(method)
		n.Payload["data"] = data
		return false, e.notifier.enqueue(uow, n)
	}
	return false, fmt.Errorf("unknown action type %q", action.Type)
}

// resolveParticipantStep closes an ACTIVE participant step once its approvals decide it.
func (e *Engine) resolveParticipantStep(uow *unitOfWork, res *resolver, doc *model.DocumentModel, step *workflow.Step, approvals []*workflow.Approval) (workflow.StepResult, error) {
	result := workflow.EvaluateStep(step, approvals)
	if !result.State.IsResolved() {
		return result, nil
	}

	reason := fmt.Sprintf("%d of %d approvals", result.Approvals, result.Required)
	if result.State == workflow.StepRejected {
		reason = "rejected"
	}
	ok, err := repository.NewDocumentStepRepository(uow.tx).Transition(doc.ID, step.ID, string(workflow.StepActive), string(result.State), reason, uow.now)
	if err != nil {
		return result, fmt.Errorf("failed to resolve step %s: %w", step.ID, err)
	}
	if !ok {
		return result, &workflow.StateConflictError{Entity: "step", ID: step.ID, Current: "resolved", Reason: "step resolved concurrently"}
	}

	event := workflow.EventStepCompleted
	if result.State == workflow.StepRejected {
		event = workflow.EventStepRejected
	}
	return result, e.notifier.emit(uow, res, step, stepNotice(doc, step, event), doc.UploadedBy)
}

// finish moves the document to its terminal status once the template outcome is decided.
func (e *Engine) finish(uow *unitOfWork, res *resolver, doc *model.DocumentModel, tpl *workflow.Template, states map[string]workflow.StepState) error {
	outcome := tpl.Outcome(states)
	if outcome == workflow.DocumentInProgress {
		return nil
	}

	ok, err := repository.NewDocumentRepository(uow.tx).Finish(doc.ID, string(outcome), uow.now)
	if err != nil {
		return fmt.Errorf("failed to finish document: %w", err)
	}
	if !ok {
		return &workflow.StateConflictError{Entity: "document", ID: doc.ID, Current: doc.Status, Reason: "document is not in progress"}
	}
	now := uow.now
	doc.Status = string(outcome)
	doc.CompletedAt = &now

	event := workflow.EventDocumentCompleted
	if outcome == workflow.DocumentRejected {
		event = workflow.EventDocumentRejected
	}
	var rules []workflow.NotificationRule
	for i := range tpl.Steps {
		rules = append(rules, tpl.Steps[i].NotificationsFor(event)...)
	}
	n := documentNotice(doc, event)
	n.Payload["status"] = doc.Status
	if len(rules) > 0 {
		return e.notifier.emitRules(uow, res, rules, n, doc.UploadedBy)
	}
	n.Recipients = []string{doc.UploadedBy}
	return e.notifier.enqueue(uow, n)
}

// grant writes the approver tuples once the transition commits. Authorization is advisory
// here, so failures are logged.
func (e *Engine) grant(uow *unitOfWork, userID, approvalID, documentID string) {
	if e.authz == nil {
		return
	}
	authz := e.authz
	uow.onCommit(func(ctx context.Context) {
		if err := authz.SetRelation(ctx, userID, auth.RelationApprover, auth.ObjectApproval, approvalID); err != nil {
			logrus.WithError(err).WithField("approval_id", approvalID).Warn("Failed to grant approver relation")
		}
		if err := authz.SetRelation(ctx, userID, auth.RelationParticipant, auth.ObjectDocument, documentID); err != nil {
			logrus.WithError(err).WithField("document_id", documentID).Warn("Failed to grant document participant relation")
		}
	})
}
