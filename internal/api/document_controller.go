package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
)

// DocumentController 文档控制器
type DocumentController struct {
	documentService service.DocumentService
}

// NewDocumentController 创建文档控制器
func NewDocumentController(documentService service.DocumentService) *DocumentController {
	return &DocumentController{documentService: documentService}
}

// Create 创建草稿文档
func (c *DocumentController) Create(ctx *gin.Context) {
	var req service.CreateDocumentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	doc, err := c.documentService.Create(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, doc)
}

// Get 获取文档
func (c *DocumentController) Get(ctx *gin.Context) {
	doc, err := c.documentService.Get(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, doc)
}

// List 文档列表
func (c *DocumentController) List(ctx *gin.Context) {
	page, pageSize, ok := pageParams(ctx)
	if !ok {
		return
	}
	result, err := c.documentService.List(&service.DocumentListFilter{
		Page:       page,
		PageSize:   pageSize,
		Status:     ctx.Query("status"),
		UploadedBy: ctx.Query("uploaded_by"),
		TemplateID: ctx.Query("template_id"),
		Department: ctx.Query("department"),
		SortBy:     ctx.Query("sort_by"),
		Order:      ctx.Query("order"),
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	Paginated(ctx, result.Data, result.Pagination)
}

// Submit 提交文档进入审批
func (c *DocumentController) Submit(ctx *gin.Context) {
	doc, err := c.documentService.Submit(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, doc)
}

// Steps 文档步骤进度
func (c *DocumentController) Steps(ctx *gin.Context) {
	steps, err := c.documentService.Steps(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, steps)
}

// Approvals 文档的审批记录
func (c *DocumentController) Approvals(ctx *gin.Context) {
	approvals, err := c.documentService.ListApprovals(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, approvals)
}

// AuditTrail 文档审计轨迹
func (c *DocumentController) AuditTrail(ctx *gin.Context) {
	trail, err := c.documentService.AuditTrail(ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, trail)
}
