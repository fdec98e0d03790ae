package api

import (
	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/config"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/websocket"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖. Validator 为 nil 时使用 X-User-ID 请求头识别用户, Authz 为 nil 时不做关系校验.
type RouterDeps struct {
	Config         *config.Config
	DB             *gorm.DB
	Templates      service.TemplateService
	Documents      service.DocumentService
	Approvals      service.ApprovalService
	Sweeps         service.SweepService
	Query          service.QueryService
	Statistics     service.StatisticsService
	Org            service.OrgService
	Hub            *websocket.Hub
	Validator      *auth.KeycloakTokenValidator
	Authz          auth.Authorizer
	HealthCheckers map[string]HealthChecker
}

// SetupRoutesWithConfig 配置路由
func SetupRoutesWithConfig(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查和指标
	router.GET("/health", NewHealthController(deps.DB, deps.HealthCheckers).Check)
	router.GET("/metrics", MetricsHandler)

	// 通知推送
	if deps.Hub != nil {
		router.GET("/ws/notifications", websocket.WebSocketHandler(deps.Hub, deps.Validator, cfg.CORS.AllowedOrigins))
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth.IdentityMiddleware(deps.Validator))
	v1.Use(RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	// permit 在启用 OpenFGA 时校验 :id 对象的关系
	permit := func(objectType, relation string) gin.HandlersChain {
		if deps.Authz == nil {
			return nil
		}
		return gin.HandlersChain{auth.PermissionMiddleware(deps.Authz, objectType, relation)}
	}
	with := func(chain gin.HandlersChain, h gin.HandlerFunc) []gin.HandlerFunc {
		return append(chain, h)
	}

	templateController := NewTemplateController(deps.Templates)
	v1.POST("/workflows/validate", templateController.Validate)
	templates := v1.Group("/templates")
	{
		templates.POST("", templateController.Create)
		templates.GET("", templateController.List)
		templates.GET("/:id", templateController.Get)
		templates.PUT("/:id", with(permit(auth.ObjectTemplate, "editor"), templateController.Update)...)
		templates.DELETE("/:id", with(permit(auth.ObjectTemplate, auth.RelationOwner), templateController.Delete)...)
		templates.GET("/:id/versions", templateController.ListVersions)
	}

	documentController := NewDocumentController(deps.Documents)
	documents := v1.Group("/documents")
	{
		documents.POST("", documentController.Create)
		documents.GET("", documentController.List)
		documents.GET("/:id", with(permit(auth.ObjectDocument, "viewer"), documentController.Get)...)
		documents.POST("/:id/submit", with(permit(auth.ObjectDocument, auth.RelationCreator), documentController.Submit)...)
		documents.GET("/:id/steps", with(permit(auth.ObjectDocument, "viewer"), documentController.Steps)...)
		documents.GET("/:id/approvals", with(permit(auth.ObjectDocument, "viewer"), documentController.Approvals)...)
		documents.GET("/:id/audit", with(permit(auth.ObjectDocument, "viewer"), documentController.AuditTrail)...)
	}

	queryController := NewQueryController(deps.Query, deps.Statistics)
	approvalController := NewApprovalController(deps.Approvals)
	approvals := v1.Group("/approvals")
	{
		approvals.POST("/validate", approvalController.Validate)
		approvals.GET("", queryController.ListApprovals)
		approvals.GET("/:id", with(permit(auth.ObjectApproval, "viewer"), approvalController.Get)...)
		approvals.POST("/:id/act", approvalController.Act)
		approvals.POST("/:id/remind", approvalController.Remind)
		approvals.POST("/:id/escalate", approvalController.Escalate)
	}

	v1.POST("/sla/sweep", NewSweepController(deps.Sweeps).Sweep)
	v1.GET("/statistics/approvals", queryController.ApprovalStatistics)
	v1.GET("/statistics/documents", queryController.DocumentStatistics)

	orgController := NewOrgController(deps.Org)
	v1.POST("/departments", orgController.CreateDepartment)
	v1.GET("/departments", orgController.ListDepartments)
	v1.POST("/designations", orgController.CreateDesignation)
	v1.GET("/designations", orgController.ListDesignations)
	v1.POST("/users", orgController.SaveUser)
	v1.GET("/users", orgController.ListUsers)
	v1.GET("/users/:id", orgController.GetUser)

	return router
}
