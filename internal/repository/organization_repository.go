package repository

import (
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"gorm.io/gorm"
)

// UserRepository 员工仓储接口
type UserRepository interface {
	Save(user *model.UserModel) error
	FindByID(id string) (*model.UserModel, error)
	FindAll() ([]*model.UserModel, error)
	FindActiveByRole(role string) ([]*model.UserModel, error)
	FindActiveByDepartment(departmentID string) ([]*model.UserModel, error)
	FindActiveByIDs(ids []string) ([]*model.UserModel, error)
}

// userRepository 员工仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建员工仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Save 保存员工
func (r *userRepository) Save(user *model.UserModel) error {
	return r.db.Save(user).Error
}

// FindByID 根据 ID 查找员工
func (r *userRepository) FindByID(id string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAll 查找所有员工
func (r *userRepository) FindAll() ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.Order("name ASC").Find(&users).Error
	return users, err
}

// FindActiveByRole 查找某角色的在职员工
func (r *userRepository) FindActiveByRole(role string) ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.Where("role = ? AND active = ?", role, true).Order("id ASC").Find(&users).Error
	return users, err
}

// FindActiveByDepartment 查找某部门的在职员工
func (r *userRepository) FindActiveByDepartment(departmentID string) ([]*model.UserModel, error) {
	var users []*model.UserModel
	err := r.db.Where("department_id = ? AND active = ?", departmentID, true).Order("id ASC").Find(&users).Error
	return users, err
}

// FindActiveByIDs 查找给定 ID 中存在且在职的员工
func (r *userRepository) FindActiveByIDs(ids []string) ([]*model.UserModel, error) {
	var users []*model.UserModel
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ? AND active = ?", ids, true).Find(&users).Error
	return users, err
}

// DepartmentRepository 部门仓储接口
type DepartmentRepository interface {
	Save(department *model.DepartmentModel) error
	FindByID(id string) (*model.DepartmentModel, error)
	FindByName(name string) (*model.DepartmentModel, error)
	FindAll() ([]*model.DepartmentModel, error)
}

// departmentRepository 部门仓储实现
type departmentRepository struct {
	db *gorm.DB
}

// NewDepartmentRepository 创建部门仓储
func NewDepartmentRepository(db *gorm.DB) DepartmentRepository {
	return &departmentRepository{db: db}
}

// Save 保存部门
func (r *departmentRepository) Save(department *model.DepartmentModel) error {
	return r.db.Save(department).Error
}

// FindByID 根据 ID 查找部门
func (r *departmentRepository) FindByID(id string) (*model.DepartmentModel, error) {
	var department model.DepartmentModel
	if err := r.db.Where("id = ?", id).First(&department).Error; err != nil {
		return nil, err
	}
	return &department, nil
}

// FindByName 根据名称查找部门
func (r *departmentRepository) FindByName(name string) (*model.DepartmentModel, error) {
	var department model.DepartmentModel
	if err := r.db.Where("name = ?", name).First(&department).Error; err != nil {
		return nil, err
	}
	return &department, nil
}

// FindAll 查找所有部门
func (r *departmentRepository) FindAll() ([]*model.DepartmentModel, error) {
	var departments []*model.DepartmentModel
	err := r.db.Order("name ASC").Find(&departments).Error
	return departments, err
}

// DesignationRepository 职务仓储接口
type DesignationRepository interface {
	Save(designation *model.DesignationModel) error
	FindByID(id string) (*model.DesignationModel, error)
	FindAll() ([]*model.DesignationModel, error)
}

// designationRepository 职务仓储实现
type designationRepository struct {
	db *gorm.DB
}

// NewDesignationRepository 创建职务仓储
func NewDesignationRepository(db *gorm.DB) DesignationRepository {
	return &designationRepository{db: db}
}

// Save 保存职务
func (r *designationRepository) Save(designation *model.DesignationModel) error {
	return r.db.Save(designation).Error
}

// FindByID 根据 ID 查找职务
func (r *designationRepository) FindByID(id string) (*model.DesignationModel, error) {
	var designation model.DesignationModel
	if err := r.db.Where("id = ?", id).First(&designation).Error; err != nil {
		return nil, err
	}
	return &designation, nil
}

// FindAll 查找所有职务
func (r *designationRepository) FindAll() ([]*model.DesignationModel, error) {
	var designations []*model.DesignationModel
	err := r.db.Order("level DESC, title ASC").Find(&designations).Error
	return designations, err
}
