package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/datatypes"
)

// NotificationDispatcher 通知投递器. 发件箱记录提交后调用 Kick 唤醒投递.
type NotificationDispatcher interface {
	Kick()
}

// notice 一条待写入发件箱的通知
type notice struct {
	Event      string
	Template   string
	DocumentID string
	ApprovalID string
	StepKey    string
	Recipients []string
	Payload    map[string]interface{}
}

// notifier writes notifications to the outbox inside the caller's transaction. Delivery
// happens after commit, so a rolled back transition never notifies anyone.
type notifier struct {
	dispatcher NotificationDispatcher
}

func (n *notifier) enqueue(uow *unitOfWork, nt notice) error {
	recipients := nt.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	rec, err := json.Marshal(recipients)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(nt.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	m := &model.NotificationModel{
		ID:         uuid.New().String(),
		Event:      nt.Event,
		Template:   nt.Template,
		DocumentID: nt.DocumentID,
		ApprovalID: nt.ApprovalID,
		StepKey:    nt.StepKey,
		Recipients: datatypes.JSON(rec),
		Payload:    datatypes.JSON(payload),
		Status:     model.NotificationPending,
		CreatedAt:  uow.now,
		UpdatedAt:  uow.now,
	}
	if err := repository.NewNotificationRepository(uow.tx).Save(m); err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", nt.Event, err)
	}

	if n.dispatcher != nil && !uow.notified {
		uow.notified = true
		uow.onCommit(func(context.Context) { n.dispatcher.Kick() })
	}
	return nil
}

// emitRules enqueues one notification per rule, resolving each rule's recipients. extra
// recipients (the assignee, the uploader) are added to every rule.
func (n *notifier) emitRules(uow *unitOfWork, res *resolver, rules []workflow.NotificationRule, base notice, extra ...string) error {
	for _, rule := range rules {
		ids, err := res.recipients(rule.Recipients)
		if err != nil {
			return err
		}
		nt := base
		nt.Event = rule.Event
		nt.Template = rule.Template
		nt.Recipients = dedupe(append(ids, extra...))
		if err := n.enqueue(uow, nt); err != nil {
			return err
		}
	}
	return nil
}

// emit enqueues event for the step's matching rules, or a single default notification to
// extra when the step has none.
func (n *notifier) emit(uow *unitOfWork, res *resolver, step *workflow.Step, base notice, extra ...string) error {
	var rules []workflow.NotificationRule
	if step != nil {
		rules = step.NotificationsFor(base.Event)
	}
	if len(rules) > 0 {
		return n.emitRules(uow, res, rules, base, extra...)
	}
	if len(extra) == 0 {
		return nil
	}
	base.Recipients = dedupe(extra)
	return n.enqueue(uow, base)
}
