package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/api"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/config"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/database"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/formula"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/integration"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	permissionCacheTTL = time.Minute
	templateCacheTTL   = 5 * time.Minute
	collectInterval    = 30 * time.Second
	webhookTimeout     = 10 * time.Second
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、客户端等
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *gorm.DB

	validator  *auth.KeycloakTokenValidator
	fgaClient  *auth.OpenFGAClient
	authz      auth.Authorizer
	hub        *websocket.Hub
	natsSink   *integration.NATSSink
	dispatcher *integration.Dispatcher
	engine     *service.Engine

	templates  service.TemplateService
	documents  service.DocumentService
	approvals  service.ApprovalService
	sweeps     service.SweepService
	query      service.QueryService
	statistics service.StatisticsService
	org        service.OrgService
	auditLog   service.AuditLogService

	scheduler *service.SweepScheduler
	collector *metrics.Collector
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. 日志
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	api.SetLogger(logger)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.Level)
	logrus.SetOutput(logger.Out)

	// 2. 数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Container{cfg: cfg, logger: logger, db: db, hub: websocket.NewHub()}

	// 3. 身份认证和权限
	if cfg.Keycloak.Issuer != "" {
		c.validator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer)
	}
	if cfg.OpenFGA.Enabled() {
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fgaClient
		c.authz = auth.NewCachedAuthorizer(fgaClient, auth.NewPermissionCache(permissionCacheTTL))
	}

	// 4. 通知投递
	sinks := []integration.Sink{
		integration.NewWebhookSink(cfg.Notification.WebhookURL, webhookTimeout),
		integration.NewHubSink(c.hub),
	}
	if cfg.Notification.NATSURL != "" {
		natsSink, err := integration.ConnectNATS(cfg.Notification.NATSURL, cfg.Notification.Subject)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect NATS: %w", err)
		}
		c.natsSink = natsSink
		sinks = append(sinks, natsSink)
	}
	c.dispatcher = integration.NewDispatcher(db, integration.DispatcherConfig{
		Workers:      cfg.Notification.Workers,
		MaxRetries:   cfg.Notification.MaxRetries,
		PollInterval: cfg.Notification.PollInterval,
	}, sinks...)

	// 5. 工作流引擎和服务
	// authz 为 nil 接口时引擎跳过关系写入
	c.engine = service.NewEngine(formula.NewEvaluator(formula.DefaultTimeout, logger), c.dispatcher, c.authz, templateCacheTTL)
	c.auditLog = service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.templates = service.NewTemplateService(db, c.engine)
	c.documents = service.NewDocumentService(db, c.engine, c.auditLog)
	c.approvals = service.NewApprovalService(db, c.engine)
	c.sweeps = service.NewSweepService(db, c.engine, c.auditLog)
	c.query = service.NewQueryService(db)
	c.statistics = service.NewStatisticsService(db)
	c.org = service.NewOrgService(db)

	c.scheduler = service.NewSweepScheduler(c.sweeps, cfg.SLA.SweepInterval)
	c.collector = metrics.NewCollector(db, collectInterval)

	return c, nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Sweeps 获取 SLA 巡检服务
func (c *Container) Sweeps() service.SweepService {
	return c.sweeps
}

// Router 构建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	checkers := map[string]api.HealthChecker{
		"openfga": nil,
		"nats":    nil,
	}
	if c.fgaClient != nil {
		checkers["openfga"] = c.fgaClient
	}
	if c.natsSink != nil {
		checkers["nats"] = c.natsSink
	}

	return api.SetupRoutesWithConfig(api.RouterDeps{
		Config:         c.cfg,
		DB:             c.db,
		Templates:      c.templates,
		Documents:      c.documents,
		Approvals:      c.approvals,
		Sweeps:         c.sweeps,
		Query:          c.query,
		Statistics:     c.statistics,
		Org:            c.org,
		Hub:            c.hub,
		Validator:      c.validator,
		Authz:          c.authz,
		HealthCheckers: checkers,
	})
}

// Start 启动后台组件: 推送中心, 通知投递, 指标采集, 以及启用时的 SLA 定时巡检
func (c *Container) Start(ctx context.Context) {
	go c.hub.Run(ctx)
	c.dispatcher.Start(ctx)
	c.collector.Start()
	if c.cfg.SLA.Enabled {
		c.scheduler.Start(ctx)
		c.logger.WithField("interval", c.scheduler.Interval().String()).Info("SLA sweep scheduler started")
	}
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.natsSink != nil {
		c.natsSink.Close()
	}
	return database.Close(c.db)
}
