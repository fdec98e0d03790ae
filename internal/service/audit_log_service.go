package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审计实体类型
const (
	EntityTemplate = "workflow_template"
	EntityDocument = "document"
	EntityApproval = "document_approval"
)

// AuditEntry 一条待写入的审计记录
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	Before     interface{}
	After      interface{}
	Status     string
	Message    string
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	Record(ctx context.Context, entry AuditEntry) error
	FindByEntity(entityType, entityID string) ([]*model.AuditLogModel, error)
	FindByEntities(entityType string, entityIDs []string) ([]*model.AuditLogModel, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
	now       func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{auditRepo: auditRepo, now: time.Now}
}

// Record 直接写入一条审计记录(不在状态变更事务内, 例如巡检告警)
func (s *auditLogService) Record(ctx context.Context, entry AuditEntry) error {
	log, err := newAuditLog(ctx, entry, s.now())
	if err != nil {
		return err
	}
	return s.auditRepo.Append(log)
}

// FindByEntity 查询实体的审计轨迹
func (s *auditLogService) FindByEntity(entityType, entityID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByEntity(entityType, entityID)
}

// FindByEntities 查询同类型多个实体的审计轨迹
func (s *auditLogService) FindByEntities(entityType string, entityIDs []string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByEntities(entityType, entityIDs)
}

// newAuditLog 根据 context 中的操作人和请求信息构建审计记录
func newAuditLog(ctx context.Context, entry AuditEntry, at time.Time) (*model.AuditLogModel, error) {
	oldValue, err := snapshot(entry.Before)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot old value: %w", err)
	}
	newValue, err := snapshot(entry.After)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot new value: %w", err)
	}

	actor := auth.ActorFrom(ctx)
	if actor == "" {
		actor = auth.SystemActor
	}
	meta := auth.RequestMetaFrom(ctx)

	return &model.AuditLogModel{
		ID:         uuid.New().String(),
		ActorID:    actor,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldValue:   oldValue,
		NewValue:   newValue,
		Status:     entry.Status,
		Message:    entry.Message,
		RequestID:  meta.RequestID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  at,
	}, nil
}

func snapshot(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// unitOfWork 一次状态变更的事务及提交后的副作用
type unitOfWork struct {
	tx          *gorm.DB
	now         time.Time
	notified    bool
	afterCommit []func(ctx context.Context)
}

// onCommit 注册事务提交后执行的动作(外部授权元组, 通知投递唤醒, 指标)
func (u *unitOfWork) onCommit(fn func(ctx context.Context)) {
	u.afterCommit = append(u.afterCommit, fn)
}

// auditedTransition runs fn in a transaction and writes exactly one audit entry for it.
// On success the entry (with the before/after snapshots fn left in entry) is written in the
// same transaction. On failure the transaction is rolled back and a FAILURE entry is
// written on its own.
func auditedTransition(ctx context.Context, db *gorm.DB, now time.Time, entry *AuditEntry, fn func(uow *unitOfWork) error) error {
	uow := &unitOfWork{now: now}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		if err := fn(uow); err != nil {
			return err
		}
		entry.Status = model.AuditSuccess
		log, err := newAuditLog(ctx, *entry, now)
		if err != nil {
			return err
		}
		return repository.NewAuditLogRepository(tx).Append(log)
	})
	if err != nil {
		failed := *entry
		failed.Status = model.AuditFailure
		failed.After = nil
		failed.Message = err.Error()
		if log, lerr := newAuditLog(ctx, failed, now); lerr == nil {
			lerr = repository.NewAuditLogRepository(db.WithContext(ctx)).Append(log)
			if lerr != nil {
				logrus.WithError(lerr).WithFields(logrus.Fields{
					"action": entry.Action,
					"entity": entry.EntityType + "/" + entry.EntityID,
				}).Error("Failed to write failure audit entry")
			}
		}
		return err
	}

	for _, fn := range uow.afterCommit {
		fn(ctx)
	}
	return nil
}

// appendAudit writes an extra SUCCESS entry inside an open transaction, for records the
// transition creates as a side effect (approval instantiation).
func appendAudit(ctx context.Context, uow *unitOfWork, entry AuditEntry) error {
	entry.Status = model.AuditSuccess
	log, err := newAuditLog(ctx, entry, uow.now)
	if err != nil {
		return err
	}
	return repository.NewAuditLogRepository(uow.tx).Append(log)
}

// mergeAuditTrails 合并多个审计轨迹并按时间排序
func mergeAuditTrails(trails ...[]*model.AuditLogModel) []*model.AuditLogModel {
	var out []*model.AuditLogModel
	for _, t := range trails {
		out = append(out, t...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
