package model

import (
	"errors"
	"time"
)

// UserModel 员工数据模型
type UserModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	Email         string    `gorm:"type:varchar(255);index" json:"email"`
	Role          string    `gorm:"type:varchar(64);index" json:"role"`
	DepartmentID  string    `gorm:"type:varchar(64);index" json:"departmentId"`
	DesignationID string    `gorm:"type:varchar(64)" json:"designationId"`
	ManagerID     string    `gorm:"type:varchar(64)" json:"managerId"`
	Active        bool      `gorm:"not null;index" json:"active"`
	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// Validate 验证用户模型
func (m *UserModel) Validate() error {
	if m.ID == "" {
		return errors.New("user ID is required")
	}
	if m.Name == "" {
		return errors.New("user name is required")
	}
	return nil
}

// DepartmentModel 部门数据模型
type DepartmentModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"name"`
	Code      string    `gorm:"type:varchar(32);index" json:"code"`
	HeadID    string    `gorm:"type:varchar(64)" json:"headId"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (DepartmentModel) TableName() string {
	return "departments"
}

// Validate 验证部门模型
func (m *DepartmentModel) Validate() error {
	if m.ID == "" {
		return errors.New("department ID is required")
	}
	if m.Name == "" {
		return errors.New("department name is required")
	}
	return nil
}

// DesignationModel 职务数据模型
type DesignationModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title     string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"title"`
	Level     int       `gorm:"type:int;default:0" json:"level"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// TableName 指定表名
func (DesignationModel) TableName() string {
	return "designations"
}

// Validate 验证职务模型
func (m *DesignationModel) Validate() error {
	if m.ID == "" {
		return errors.New("designation ID is required")
	}
	if m.Title == "" {
		return errors.New("designation title is required")
	}
	return nil
}
