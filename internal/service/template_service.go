package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TemplateService 模板服务接口
type TemplateService interface {
	Create(ctx context.Context, raw []byte) (*workflow.Template, error)
	Get(id string, version int) (*workflow.Template, error)
	Update(ctx context.Context, id string, raw []byte) (*workflow.Template, error)
	Delete(ctx context.Context, id string) error
	List(filter *TemplateListFilter) (*TemplateListResponse, error)
	ListVersions(id string) ([]int, error)
}

// TemplateListFilter 模板列表查询过滤器
type TemplateListFilter struct {
	Page       int
	PageSize   int
	Search     string
	Department string
	SortBy     string
	Order      string // asc/desc
}

// TemplateListResponse 模板列表响应
type TemplateListResponse struct {
	Data       []*workflow.Template `json:"data"`
	Pagination PaginationInfo       `json:"pagination"`
}

// PaginationInfo 分页信息
type PaginationInfo struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}

func newPaginationInfo(page, pageSize int, total int64) PaginationInfo {
	totalPage := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPage++
	}
	return PaginationInfo{Page: page, PageSize: pageSize, Total: total, TotalPage: totalPage}
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

var templateSortFields = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"department": "department",
}

// templateService 模板服务实现
type templateService struct {
	db     *gorm.DB
	engine *Engine
	now    func() time.Time
}

// NewTemplateService 创建模板服务. 模板缓存与流程引擎共享.
func NewTemplateService(db *gorm.DB, engine *Engine) TemplateService {
	return &templateService{db: db, engine: engine, now: time.Now}
}

// generateTemplateID 生成模板 ID
func generateTemplateID() string {
	return "wf-" + uuid.New().String()
}

// Create 校验并创建模板的第一个版本
func (s *templateService) Create(ctx context.Context, raw []byte) (*workflow.Template, error) {
	// 1. 校验模板
	tpl, errs := workflow.ValidateTemplate(raw)
	if len(errs) > 0 {
		return nil, errs
	}

	// 2. 补全版本信息
	now := s.now()
	actor := auth.ActorFrom(ctx)
	tpl.ID = generateTemplateID()
	tpl.Version = 1
	tpl.CreatedBy = actor
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	// 3. 写入并记录审计日志
	entry := &AuditEntry{Action: "create", EntityType: EntityTemplate, EntityID: tpl.ID}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		m, steps, err := model.NewWorkflowModel(tpl, actor)
		if err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		if err := repository.NewWorkflowRepository(uow.tx).Create(m, steps); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		entry.After = tpl
		s.grantOwner(uow, actor, tpl.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// Get 获取模板, version <= 0 时返回最新版本
func (s *templateService) Get(id string, version int) (*workflow.Template, error) {
	return s.engine.templates.load(s.db, id, version)
}

// Update 写入新版本. 已提交的文档继续使用原版本.
func (s *templateService) Update(ctx context.Context, id string, raw []byte) (*workflow.Template, error) {
	tpl, errs := workflow.ValidateTemplate(raw)
	if len(errs) > 0 {
		return nil, errs
	}

	now := s.now()
	actor := auth.ActorFrom(ctx)
	entry := &AuditEntry{Action: "update", EntityType: EntityTemplate, EntityID: id}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		repo := repository.NewWorkflowRepository(uow.tx)
		current, err := repo.FindByID(id, 0)
		if err != nil {
			return err
		}
		before, err := current.ToDomain()
		if err != nil {
			return fmt.Errorf("failed to decode template: %w", err)
		}

		tpl.ID = current.ID
		tpl.Version = current.Version + 1
		tpl.CreatedBy = before.CreatedBy
		tpl.CreatedAt = before.CreatedAt
		tpl.UpdatedAt = now

		m, steps, err := model.NewWorkflowModel(tpl, actor)
		if err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		if err := repo.Create(m, steps); err != nil {
			return fmt.Errorf("failed to create template version %d: %w", tpl.Version, err)
		}
		entry.Before = before
		entry.After = tpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// Delete 删除模板的全部版本. 任一版本被审批记录引用时拒绝删除.
func (s *templateService) Delete(ctx context.Context, id string) error {
	now := s.now()
	entry := &AuditEntry{Action: "delete", EntityType: EntityTemplate, EntityID: id}
	return auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		repo := repository.NewWorkflowRepository(uow.tx)
		current, err := repo.FindByID(id, 0)
		if err != nil {
			return err
		}
		before, err := current.ToDomain()
		if err != nil {
			return fmt.Errorf("failed to decode template: %w", err)
		}

		refs, err := repo.CountApprovalReferences(id)
		if err != nil {
			return fmt.Errorf("failed to count template references: %w", err)
		}
		if refs > 0 {
			return &workflow.StateConflictError{
				Entity:  EntityTemplate,
				ID:      id,
				Current: "referenced",
				Reason:  fmt.Sprintf("%d approval records reference this template", refs),
			}
		}

		if err := repo.Delete(id); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		entry.Before = before
		uow.onCommit(func(context.Context) { s.engine.templates.invalidate(id) })
		s.revokeOwner(uow, before.CreatedBy, id)
		return nil
	})
}

// List 查询模板列表, 每个模板只返回最新版本
func (s *templateService) List(filter *TemplateListFilter) (*TemplateListResponse, error) {
	if filter == nil {
		filter = &TemplateListFilter{}
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := s.db.Model(&model.WorkflowModel{}).Where(repository.LatestWorkflowVersion)
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", searchPattern, searchPattern)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	order, err := utils.SortClause(filter.SortBy, filter.Order, templateSortFields, "created_at")
	if err != nil {
		return nil, workflow.FieldErrors{{Field: "sort_by", Message: err.Error()}}
	}

	var models []*model.WorkflowModel
	if err := query.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find templates: %w", err)
	}

	templates := make([]*workflow.Template, 0, len(models))
	for _, m := range models {
		tpl, err := m.ToDomain()
		if err != nil {
			logrus.WithError(err).WithField("template_id", m.ID).Warn("Skipping undecodable template")
			continue
		}
		templates = append(templates, tpl)
	}

	return &TemplateListResponse{Data: templates, Pagination: newPaginationInfo(page, pageSize, total)}, nil
}

// ListVersions 列出模板版本, 从新到旧
func (s *templateService) ListVersions(id string) ([]int, error) {
	models, err := repository.NewWorkflowRepository(s.db).FindVersions(id)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	versions := make([]int, 0, len(models))
	for _, m := range models {
		versions = append(versions, m.Version)
	}
	return versions, nil
}

func (s *templateService) grantOwner(uow *unitOfWork, actor, templateID string) {
	authz := s.engine.authz
	if authz == nil || actor == "" || actor == auth.SystemActor {
		return
	}
	uow.onCommit(func(ctx context.Context) {
		if err := authz.SetRelation(ctx, actor, auth.RelationOwner, auth.ObjectTemplate, templateID); err != nil {
			logrus.WithError(err).WithField("template_id", templateID).Warn("Failed to grant template owner relation")
		}
	})
}

func (s *templateService) revokeOwner(uow *unitOfWork, owner, templateID string) {
	authz := s.engine.authz
	if authz == nil || owner == "" || owner == auth.SystemActor {
		return
	}
	uow.onCommit(func(ctx context.Context) {
		if err := authz.DeleteRelation(ctx, owner, auth.RelationOwner, auth.ObjectTemplate, templateID); err != nil {
			logrus.WithError(err).WithField("template_id", templateID).Warn("Failed to revoke template owner relation")
		}
	})
}
