package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 巡检结果, 同时用作指标标签
const (
	SweepResultNone          = "none"
	SweepResultWarned        = "warned"
	SweepResultEscalated     = "escalated"
	SweepResultMisconfigured = "misconfigured"
	SweepResultFailed        = "failed"
)

// SweepReport 一次 SLA 巡检的结果
type SweepReport struct {
	StartedAt     time.Time `json:"startedAt"`
	Scanned       int       `json:"scanned"`
	Warned        int       `json:"warned"`
	Escalated     int       `json:"escalated"`
	Misconfigured int       `json:"misconfigured"`
	Failed        int       `json:"failed"`
	DurationMs    int64     `json:"durationMs"`
}

// SweepService SLA 巡检服务接口
type SweepService interface {
	Sweep(ctx context.Context, now time.Time) (*SweepReport, error)
}

// sweepService 巡检服务实现
type sweepService struct {
	db        *gorm.DB
	engine    *Engine
	approvals *approvalService
	auditLog  AuditLogService
}

// NewSweepService 创建巡检服务
func NewSweepService(db *gorm.DB, engine *Engine, auditLog AuditLogService) SweepService {
	return &sweepService{
		db:        db,
		engine:    engine,
		approvals: &approvalService{db: db, engine: engine, now: time.Now},
		auditLog:  auditLog,
	}
}

// Sweep evaluates every pending approval with a deadline whose step is still active and
// warns or escalates as the template's SLA policy says. A failing approval is logged and
// counted; it never stops the sweep. Running it twice at the same instant changes nothing
// the second time.
func (s *sweepService) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	started := time.Now()
	ctx = auth.WithActor(ctx, auth.SystemActor)

	pending, err := repository.NewDocumentApprovalRepository(s.db.WithContext(ctx)).FindPendingWithDeadline()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}

	report := &SweepReport{StartedAt: now, Scanned: len(pending)}
	res := newResolver(s.db.WithContext(ctx), s.engine.formula)
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			report.DurationMs = time.Since(started).Milliseconds()
			return report, err
		}

		result, err := s.sweepOne(ctx, res, m.ToDomain(), now)
		if err != nil {
			result = SweepResultFailed
			logrus.WithError(err).WithFields(logrus.Fields{
				"approval_id": m.ID,
				"document_id": m.DocumentID,
			}).Error("SLA sweep failed for approval")
		}
		switch result {
		case SweepResultWarned:
			report.Warned++
		case SweepResultEscalated:
			report.Escalated++
		case SweepResultMisconfigured:
			report.Misconfigured++
		case SweepResultFailed:
			report.Failed++
		}
		metrics.RecordSweepItem(result)
	}

	elapsed := time.Since(started)
	report.DurationMs = elapsed.Milliseconds()
	metrics.ObserveSweepDuration(elapsed.Seconds())
	logrus.WithFields(logrus.Fields{
		"scanned":       report.Scanned,
		"warned":        report.Warned,
		"escalated":     report.Escalated,
		"misconfigured": report.Misconfigured,
		"failed":        report.Failed,
		"duration_ms":   report.DurationMs,
	}).Info("SLA sweep finished")
	return report, nil
}

func (s *sweepService) sweepOne(ctx context.Context, res *resolver, a *workflow.Approval, now time.Time) (string, error) {
	doc, err := repository.NewDocumentRepository(s.db.WithContext(ctx)).FindByID(a.DocumentID)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	tpl, err := s.engine.templates.load(s.db.WithContext(ctx), doc.TemplateID, doc.TemplateVersion)
	if err != nil {
		return "", fmt.Errorf("failed to load template: %w", err)
	}
	if tpl.SLA == nil {
		return SweepResultNone, nil
	}
	profile, err := res.profile(a.ApproverID)
	if err != nil {
		return "", fmt.Errorf("failed to load approver profile: %w", err)
	}

	decision := workflow.EvaluateSLA(a, tpl.SLA, profile, now)
	if decision.Kind == workflow.SLAEscalate {
		// 替补审批人不存在或已停用时按配置错误处理
		_, err := s.approvals.escalateAt(ctx, a.ID, decision.BackupID, now)
		var cfg *workflow.EscalationConfigError
		switch {
		case err == nil:
			return SweepResultEscalated, nil
		case errors.As(err, &cfg):
			decision = workflow.SLADecision{Kind: workflow.SLAMisconfigured, Reason: cfg.Reason}
		default:
			return "", err
		}
	}
	switch decision.Kind {
	case workflow.SLAWarn:
		if _, err := s.approvals.remindAt(ctx, a.ID, workflow.EventApprovalWarning, now); err != nil {
			return "", err
		}
		return SweepResultWarned, nil

	case workflow.SLAMisconfigured:
		logrus.WithFields(logrus.Fields{
			"approval_id": a.ID,
			"template_id": tpl.ID,
			"approver":    a.ApproverID,
		}).Warn("Escalation misconfigured: " + decision.Reason)
		err := s.auditLog.Record(ctx, AuditEntry{
			Action:     "escalate",
			EntityType: EntityApproval,
			EntityID:   a.ID,
			Before:     a,
			Status:     model.AuditWarning,
			Message:    (&workflow.EscalationConfigError{ApprovalID: a.ID, Reason: decision.Reason}).Error(),
		})
		if err != nil {
			return "", fmt.Errorf("failed to record escalation warning: %w", err)
		}
		return SweepResultMisconfigured, nil
	}
	return SweepResultNone, nil
}
