package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/utils"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/workflow"
)

// maxTemplateBody 模板请求体上限
const maxTemplateBody = 1 << 20

// TemplateController 模板控制器
type TemplateController struct {
	templateService service.TemplateService
}

// NewTemplateController 创建模板控制器
func NewTemplateController(templateService service.TemplateService) *TemplateController {
	return &TemplateController{
		templateService: templateService,
	}
}

func readBody(ctx *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxTemplateBody+1))
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return nil, false
	}
	if len(raw) > maxTemplateBody {
		Error(ctx, http.StatusRequestEntityTooLarge, "request body too large", "")
		return nil, false
	}
	return raw, true
}

// Validate 只校验模板, 不保存. 通过时原样返回规范化后的模板.
func (c *TemplateController) Validate(ctx *gin.Context) {
	raw, ok := readBody(ctx)
	if !ok {
		return
	}
	tpl, errs := workflow.ValidateTemplate(raw)
	if len(errs) > 0 {
		ValidationFailed(ctx, errs)
		return
	}
	Success(ctx, tpl)
}

// Create 创建模板
func (c *TemplateController) Create(ctx *gin.Context) {
	raw, ok := readBody(ctx)
	if !ok {
		return
	}
	tpl, err := c.templateService.Create(ctx.Request.Context(), raw)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, tpl)
}

// Get 获取模板, 支持 version 查询参数
func (c *TemplateController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}

	version := 0
	if versionStr := ctx.Query("version"); versionStr != "" {
		v, err := strconv.Atoi(versionStr)
		if err != nil || v <= 0 {
			Error(ctx, http.StatusBadRequest, "invalid version", "version must be a positive integer")
			return
		}
		version = v
	}

	tpl, err := c.templateService.Get(id, version)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, tpl)
}

// Update 写入模板新版本
func (c *TemplateController) Update(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}
	raw, ok := readBody(ctx)
	if !ok {
		return
	}
	tpl, err := c.templateService.Update(ctx.Request.Context(), id, raw)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, tpl)
}

// Delete 删除模板
func (c *TemplateController) Delete(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}
	if err := c.templateService.Delete(ctx.Request.Context(), id); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}

// List 模板列表
func (c *TemplateController) List(ctx *gin.Context) {
	page, pageSize, ok := pageParams(ctx)
	if !ok {
		return
	}
	result, err := c.templateService.List(&service.TemplateListFilter{
		Page:       page,
		PageSize:   pageSize,
		Search:     ctx.Query("search"),
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

// ListVersions 列出模板版本
func (c *TemplateController) ListVersions(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid template id", err.Error())
		return
	}
	versions, err := c.templateService.ListVersions(id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, versions)
}

// pageParams 解析分页参数
func pageParams(ctx *gin.Context) (int, int, bool) {
	page, pageSize := 1, 20
	if v := ctx.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(ctx, http.StatusBadRequest, "invalid page", "page must be a positive integer")
			return 0, 0, false
		}
		page = n
	}
	if v := ctx.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(ctx, http.StatusBadRequest, "invalid page_size", "page_size must be a positive integer")
			return 0, 0, false
		}
		pageSize = n
	}
	return page, pageSize, true
}
