package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
)

// ApprovalController 审批控制器
type ApprovalController struct {
	approvalService service.ApprovalService
}

// NewApprovalController 创建审批控制器
func NewApprovalController(approvalService service.ApprovalService) *ApprovalController {
	return &ApprovalController{approvalService: approvalService}
}

// EscalateRequest 手动升级请求, to 为空时按模板 SLA 策略选择替补
type EscalateRequest struct {
	To string `json:"to"`
}

// Validate 只校验操作请求
func (c *ApprovalController) Validate(ctx *gin.Context) {
	raw, ok := readBody(ctx)
	if !ok {
		return
	}
	req, errs := workflow.ValidateAction(raw)
	if len(errs) > 0 {
		ValidationFailed(ctx, errs)
		return
	}
	Success(ctx, req)
}

// Get 获取审批记录
func (c *ApprovalController) Get(ctx *gin.Context) {
	a, err := c.approvalService.Get(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, a)
}

// Act 审批操作: approve, reject, review, sign, complete
func (c *ApprovalController) Act(ctx *gin.Context) {
	raw, ok := readBody(ctx)
	if !ok {
		return
	}
	req, errs := workflow.ValidateAction(raw)
	if len(errs) > 0 {
		ValidationFailed(ctx, errs)
		return
	}
	a, err := c.approvalService.Act(ctx.Request.Context(), ctx.Param("id"), req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, a)
}

// Remind 提醒当前审批人
func (c *ApprovalController) Remind(ctx *gin.Context) {
	a, err := c.approvalService.Remind(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, a)
}

// Escalate 升级审批
func (c *ApprovalController) Escalate(ctx *gin.Context) {
	var req EscalateRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}
	a, err := c.approvalService.Escalate(ctx.Request.Context(), ctx.Param("id"), req.To)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, a)
}
