package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentService 文档服务接口
type DocumentService interface {
	Create(ctx context.Context, req *CreateDocumentRequest) (*model.DocumentModel, error)
	Get(id string) (*model.DocumentModel, error)
	List(filter *DocumentListFilter) (*DocumentListResponse, error)
	Submit(ctx context.Context, id string) (*model.DocumentModel, error)
	Steps(id string) ([]*model.DocumentStepModel, error)
	ListApprovals(id string) ([]*workflow.Approval, error)
	AuditTrail(id string) ([]*model.AuditLogModel, error)
}

// CreateDocumentRequest 创建文档请求(文件本身存储在外部)
type CreateDocumentRequest struct {
	Title      string                 `json:"title" binding:"required"`
	FileName   string                 `json:"fileName"`
	FileType   string                 `json:"fileType"`
	Department string                 `json:"department"`
	TemplateID string                 `json:"templateId" binding:"required"`
	Data       map[string]interface{} `json:"data"`
}

// DocumentListFilter 文档列表查询过滤器
type DocumentListFilter struct {
	Page       int
	PageSize   int
	Status     string
	UploadedBy string
	TemplateID string
	Department string
	SortBy     string
	Order      string
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Data       []*model.DocumentModel `json:"data"`
	Pagination PaginationInfo         `json:"pagination"`
}

var documentSortFields = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"submitted_at": "submitted_at",
	"title":        "title",
	"status":       "status",
}

// documentService 文档服务实现
type documentService struct {
	db       *gorm.DB
	engine   *Engine
	auditLog AuditLogService
	now      func() time.Time
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB, engine *Engine, auditLog AuditLogService) DocumentService {
	return &documentService{db: db, engine: engine, auditLog: auditLog, now: time.Now}
}

// Create 创建草稿文档. 模板必须存在, 启用且接受该文件类型.
func (s *documentService) Create(ctx context.Context, req *CreateDocumentRequest) (*model.DocumentModel, error) {
	var errs workflow.FieldErrors
	if err := utils.ValidateName(req.Title); err != nil {
		errs.Add("title", err.Error())
	}
	tpl, err := s.engine.templates.load(s.db, req.TemplateID, 0)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		errs.Add("templateId", "template "+req.TemplateID+" does not exist")
	} else {
		if !tpl.Active {
			errs.Add("templateId", "template is inactive")
		}
		if !tpl.AcceptsFileType(req.FileType) {
			errs.Add("fileType", fmt.Sprintf("template accepts only %v", tpl.FileTypes))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	data := req.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document data: %w", err)
	}

	actor := auth.ActorFrom(ctx)
	if actor == "" {
		actor = auth.SystemActor
	}
	department := req.Department
	if department == "" {
		department = tpl.Department
	}
	now := s.now()
	doc := &model.DocumentModel{
		ID:         uuid.New().String(),
		Title:      utils.SanitizeString(req.Title),
		FileName:   req.FileName,
		FileType:   req.FileType,
		Department: department,
		UploadedBy: actor,
		TemplateID: tpl.ID,
		Status:     string(workflow.DocumentDraft),
		Data:       datatypes.JSON(encoded),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	entry := &AuditEntry{Action: "create", EntityType: EntityDocument, EntityID: doc.ID}
	err = auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		if err := repository.NewDocumentRepository(uow.tx).Create(doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		entry.After = doc
		if authz := s.engine.authz; authz != nil {
			uow.onCommit(func(ctx context.Context) {
				if err := authz.SetRelation(ctx, actor, auth.RelationCreator, auth.ObjectDocument, doc.ID); err != nil {
					logrus.WithError(err).WithField("document_id", doc.ID).Warn("Failed to grant document creator relation")
				}
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Get 获取文档
func (s *documentService) Get(id string) (*model.DocumentModel, error) {
	return repository.NewDocumentRepository(s.db).FindByID(id)
}

// List 查询文档列表
func (s *documentService) List(filter *DocumentListFilter) (*DocumentListResponse, error) {
	if filter == nil {
		filter = &DocumentListFilter{}
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := s.db.Model(&model.DocumentModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UploadedBy != "" {
		query = query.Where("uploaded_by = ?", filter.UploadedBy)
	}
	if filter.TemplateID != "" {
		query = query.Where("template_id = ?", filter.TemplateID)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	order, err := utils.SortClause(filter.SortBy, filter.Order, documentSortFields, "created_at")
	if err != nil {
		return nil, workflow.FieldErrors{{Field: "sort_by", Message: err.Error()}}
	}

	var docs []*model.DocumentModel
	if err := query.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	return &DocumentListResponse{Data: docs, Pagination: newPaginationInfo(page, pageSize, total)}, nil
}

// Submit 提交草稿文档: 固定模板版本, 实例化首批步骤. 任一步骤无法实例化时整个提交回滚.
func (s *documentService) Submit(ctx context.Context, id string) (*model.DocumentModel, error) {
	now := s.now()
	var doc *model.DocumentModel
	entry := &AuditEntry{Action: "submit", EntityType: EntityDocument, EntityID: id}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		// 1. 锁定文档并检查状态
		docs := repository.NewDocumentRepository(uow.tx)
		current, err := docs.FindByIDForUpdate(id)
		if err != nil {
			return err
		}
		if current.Status != string(workflow.DocumentDraft) {
			return &workflow.StateConflictError{Entity: EntityDocument, ID: id, Current: current.Status, Reason: "only draft documents can be submitted"}
		}
		before := *current

		// 2. 固定当前最新的模板版本
		tpl, err := s.engine.templates.load(uow.tx, current.TemplateID, 0)
		if err != nil {
			return fmt.Errorf("failed to load template %s: %w", current.TemplateID, err)
		}
		if !tpl.Active {
			return &workflow.StateConflictError{Entity: EntityTemplate, ID: tpl.ID, Current: "inactive", Reason: "template is inactive"}
		}
		ok, err := docs.Submit(id, tpl.Version, now)
		if err != nil {
			return fmt.Errorf("failed to submit document: %w", err)
		}
		if !ok {
			return &workflow.StateConflictError{Entity: EntityDocument, ID: id, Current: current.Status, Reason: "document was submitted concurrently"}
		}
		current.Status = string(workflow.DocumentInProgress)
		current.TemplateVersion = tpl.Version
		current.SubmittedAt = &now
		current.UpdatedAt = now

		// 3. 推进流程
		if err := s.engine.advance(ctx, uow, current, tpl); err != nil {
			return err
		}

		entry.Before = &before
		entry.After = current
		doc = current
		uow.onCommit(func(context.Context) { metrics.RecordDocumentSubmitted() })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Steps 返回文档的步骤进度
func (s *documentService) Steps(id string) ([]*model.DocumentStepModel, error) {
	if _, err := repository.NewDocumentRepository(s.db).FindByID(id); err != nil {
		return nil, err
	}
	return repository.NewDocumentStepRepository(s.db).FindByDocument(id)
}

// ListApprovals 返回文档的全部审批记录
func (s *documentService) ListApprovals(id string) ([]*workflow.Approval, error) {
	if _, err := repository.NewDocumentRepository(s.db).FindByID(id); err != nil {
		return nil, err
	}
	models, err := repository.NewDocumentApprovalRepository(s.db).FindByDocument(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	approvals := make([]*workflow.Approval, 0, len(models))
	for _, m := range models {
		approvals = append(approvals, m.ToDomain())
	}
	return approvals, nil
}

// AuditTrail 返回文档及其审批记录的审计轨迹, 按时间排序
func (s *documentService) AuditTrail(id string) ([]*model.AuditLogModel, error) {
	approvals, err := s.ListApprovals(id)
	if err != nil {
		return nil, err
	}
	docTrail, err := s.auditLog.FindByEntity(EntityDocument, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(approvals))
	for _, a := range approvals {
		ids = append(ids, a.ID)
	}
	approvalTrail, err := s.auditLog.FindByEntities(EntityApproval, ids)
	if err != nil {
		return nil, err
	}
	return mergeAuditTrails(docTrail, approvalTrail), nil
}
