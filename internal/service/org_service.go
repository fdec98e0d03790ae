package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
	"gorm.io/gorm"
)

// 组织架构审计实体类型
const (
	EntityDepartment  = "department"
	EntityDesignation = "designation"
	EntityUser        = "user"
)

// OrgService 组织架构服务接口. 审批人解析依赖这里维护的员工, 角色和部门.
type OrgService interface {
	CreateDepartment(ctx context.Context, req *CreateDepartmentRequest) (*model.DepartmentModel, error)
	ListDepartments() ([]*model.DepartmentModel, error)
	CreateDesignation(ctx context.Context, req *CreateDesignationRequest) (*model.DesignationModel, error)
	ListDesignations() ([]*model.DesignationModel, error)
	SaveUser(ctx context.Context, req *SaveUserRequest) (*model.UserModel, error)
	GetUser(id string) (*model.UserModel, error)
	ListUsers() ([]*model.UserModel, error)
}

// CreateDepartmentRequest 创建部门请求
type CreateDepartmentRequest struct {
	Name   string `json:"name" binding:"required"`
	Code   string `json:"code"`
	HeadID string `json:"headId"`
}

// CreateDesignationRequest 创建职务请求
type CreateDesignationRequest struct {
	Title string `json:"title" binding:"required"`
	Level int    `json:"level"`
}

// SaveUserRequest 创建或更新员工请求. ID 通常是身份提供方的 subject, 为空时生成.
type SaveUserRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"omitempty,email"`
	Role          string `json:"role"`
	DepartmentID  string `json:"departmentId"`
	DesignationID string `json:"designationId"`
	ManagerID     string `json:"managerId"`
	Active        *bool  `json:"active"`
}

// orgService 组织架构服务实现
type orgService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOrgService 创建组织架构服务
func NewOrgService(db *gorm.DB) OrgService {
	return &orgService{db: db, now: time.Now}
}

// CreateDepartment 创建部门, 名称唯一
func (s *orgService) CreateDepartment(ctx context.Context, req *CreateDepartmentRequest) (*model.DepartmentModel, error) {
	var errs workflow.FieldErrors
	if err := utils.ValidateName(req.Name); err != nil {
		errs.Add("name", err.Error())
	}
	code, err := utils.NormalizeCode(req.Code, 32)
	if err != nil {
		errs.Add("code", err.Error())
	}
	if len(errs) > 0 {
		return nil, errs
	}
	now := s.now()
	dep := &model.DepartmentModel{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Code:      code,
		HeadID:    req.HeadID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entry := &AuditEntry{Action: "create", EntityType: EntityDepartment, EntityID: dep.ID}
	err = auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		repo := repository.NewDepartmentRepository(uow.tx)
		if _, err := repo.FindByName(dep.Name); err == nil {
			return workflow.FieldErrors{{Field: "name", Message: "department " + dep.Name + " already exists"}}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := repo.Save(dep); err != nil {
			return fmt.Errorf("failed to create department: %w", err)
		}
		entry.After = dep
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// ListDepartments 列出部门
func (s *orgService) ListDepartments() ([]*model.DepartmentModel, error) {
	return repository.NewDepartmentRepository(s.db).FindAll()
}

// CreateDesignation 创建职务
func (s *orgService) CreateDesignation(ctx context.Context, req *CreateDesignationRequest) (*model.DesignationModel, error) {
	if err := utils.ValidateName(req.Title); err != nil {
		return nil, workflow.FieldErrors{{Field: "title", Message: err.Error()}}
	}
	now := s.now()
	d := &model.DesignationModel{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(req.Title),
		Level:     req.Level,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entry := &AuditEntry{Action: "create", EntityType: EntityDesignation, EntityID: d.ID}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		if err := repository.NewDesignationRepository(uow.tx).Save(d); err != nil {
			return fmt.Errorf("failed to create designation: %w", err)
		}
		entry.After = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDesignations 列出职务
func (s *orgService) ListDesignations() ([]*model.DesignationModel, error) {
	return repository.NewDesignationRepository(s.db).FindAll()
}

// SaveUser 创建或更新员工. 部门和职务必须存在.
func (s *orgService) SaveUser(ctx context.Context, req *SaveUserRequest) (*model.UserModel, error) {
	var errs workflow.FieldErrors
	if err := utils.ValidateName(req.Name); err != nil {
		errs.Add("name", err.Error())
	}
	if req.ID != "" {
		if err := utils.ValidateID(req.ID); err != nil {
			errs.Add("id", err.Error())
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	now := s.now()
	user := &model.UserModel{
		ID:            req.ID,
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Role:          strings.TrimSpace(req.Role),
		DepartmentID:  req.DepartmentID,
		DesignationID: req.DesignationID,
		ManagerID:     req.ManagerID,
		Active:        req.Active == nil || *req.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	entry := &AuditEntry{Action: "create", EntityType: EntityUser, EntityID: user.ID}
	err := auditedTransition(ctx, s.db, now, entry, func(uow *unitOfWork) error {
		var errs workflow.FieldErrors
		if user.DepartmentID != "" {
			if _, err := repository.NewDepartmentRepository(uow.tx).FindByID(user.DepartmentID); err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				errs.Add("departmentId", "department "+user.DepartmentID+" does not exist")
			}
		}
		if user.DesignationID != "" {
			if _, err := repository.NewDesignationRepository(uow.tx).FindByID(user.DesignationID); err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				errs.Add("designationId", "designation "+user.DesignationID+" does not exist")
			}
		}
		if len(errs) > 0 {
			return errs
		}

		users := repository.NewUserRepository(uow.tx)
		existing, err := users.FindByID(user.ID)
		switch {
		case err == nil:
			entry.Action = "update"
			entry.Before = existing
			user.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := users.Save(user); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		entry.After = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 获取员工
func (s *orgService) GetUser(id string) (*model.UserModel, error) {
	return repository.NewUserRepository(s.db).FindByID(id)
}

// ListUsers 列出员工
func (s *orgService) ListUsers() ([]*model.UserModel, error) {
	return repository.NewUserRepository(s.db).FindAll()
}
