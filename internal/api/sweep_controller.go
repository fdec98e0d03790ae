package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
)

// SweepController SLA 巡检控制器
type SweepController struct {
	sweepService service.SweepService
}

// NewSweepController 创建巡检控制器
func NewSweepController(sweepService service.SweepService) *SweepController {
	return &SweepController{sweepService: sweepService}
}

// Sweep 立即执行一次巡检
func (c *SweepController) Sweep(ctx *gin.Context) {
	report, err := c.sweepService.Sweep(ctx.Request.Context(), time.Now())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, report)
}
