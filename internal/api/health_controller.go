package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthChecker 外部依赖的健康检查
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// HealthController 健康检查控制器
type HealthController struct {
	db       *gorm.DB
	checkers map[string]HealthChecker
}

// NewHealthController 创建健康检查控制器. checkers 中的 nil 项视为未配置.
func NewHealthController(db *gorm.DB, checkers map[string]HealthChecker) *HealthController {
	return &HealthController{db: db, checkers: checkers}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	for name, checker := range c.checkers {
		if checker == nil {
			checks[name] = "not configured"
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		healthy := checker.CheckHealth(checkCtx)
		cancel()
		if healthy {
			checks[name] = "healthy"
		} else {
			// 可选依赖不可用时服务降级运行
			if status == "healthy" {
				status = "degraded"
			}
			checks[name] = "unhealthy"
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
