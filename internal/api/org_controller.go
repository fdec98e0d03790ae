package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
)

// OrgController 组织架构控制器
type OrgController struct {
	orgService service.OrgService
}

// NewOrgController 创建组织架构控制器
func NewOrgController(orgService service.OrgService) *OrgController {
	return &OrgController{orgService: orgService}
}

// CreateDepartment 创建部门
func (c *OrgController) CreateDepartment(ctx *gin.Context) {
	var req service.CreateDepartmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	dep, err := c.orgService.CreateDepartment(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, dep)
}

// ListDepartments 部门列表
func (c *OrgController) ListDepartments(ctx *gin.Context) {
	deps, err := c.orgService.ListDepartments()
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, deps)
}

// CreateDesignation 创建职务
func (c *OrgController) CreateDesignation(ctx *gin.Context) {
	var req service.CreateDesignationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	d, err := c.orgService.CreateDesignation(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, d)
}

// ListDesignations 职务列表
func (c *OrgController) ListDesignations(ctx *gin.Context) {
	ds, err := c.orgService.ListDesignations()
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, ds)
}

// SaveUser 创建或更新员工
func (c *OrgController) SaveUser(ctx *gin.Context) {
	var req service.SaveUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	user, err := c.orgService.SaveUser(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, user)
}

// GetUser 获取员工
func (c *OrgController) GetUser(ctx *gin.Context) {
	user, err := c.orgService.GetUser(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, user)
}

// ListUsers 员工列表
func (c *OrgController) ListUsers(ctx *gin.Context) {
	users, err := c.orgService.ListUsers()
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, users)
}
