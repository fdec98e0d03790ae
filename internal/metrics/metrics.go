package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	documentsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_submitted_total",
			Help: "Total number of documents submitted into a workflow",
		},
	)

	// 审批操作数
	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approvals_total",
			Help: "Total number of approval decisions",
		},
		[]string{"action"}, // approve, reject, review, sign, complete
	)

	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_reminders_total",
			Help: "Total number of reminders recorded on pending approvals",
		},
		[]string{"event"},
	)

	escalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_escalations_total",
			Help: "Total number of escalated approvals",
		},
	)

	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_sweep_items_total",
			Help: "SLA sweep verdicts per approval",
		},
		[]string{"result"}, // warned, escalated, misconfigured, error
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "SLA sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification deliveries per sink and outcome",
		},
		[]string{"sink", "status"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	approvalsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "approvals_pending",
			Help: "Number of pending approvals",
		},
	)

	approvalsOverdue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "approvals_overdue",
			Help: "Number of pending approvals past their deadline",
		},
	)

	// 文档状态分布
	documentsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "documents_by_status",
			Help: "Number of documents by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(documentsSubmittedTotal)
	prometheus.MustRegister(approvalsTotal)
	prometheus.MustRegister(remindersTotal)
	prometheus.MustRegister(escalationsTotal)
	prometheus.MustRegister(sweepsTotal)
	prometheus.MustRegister(sweepDuration)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(approvalsPending)
	prometheus.MustRegister(approvalsOverdue)
	prometheus.MustRegister(documentsByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordDocumentSubmitted 记录文档提交
func RecordDocumentSubmitted() {
	documentsSubmittedTotal.Inc()
}

// RecordApproval 记录审批操作
func RecordApproval(action string) {
	approvalsTotal.WithLabelValues(action).Inc()
}

// RecordReminder 记录提醒
func RecordReminder(event string) {
	remindersTotal.WithLabelValues(event).Inc()
}

// RecordEscalation 记录升级
func RecordEscalation() {
	escalationsTotal.Inc()
}

// RecordSweepItem 记录一次巡检判定
func RecordSweepItem(result string) {
	sweepsTotal.WithLabelValues(result).Inc()
}

// ObserveSweepDuration 记录巡检耗时
func ObserveSweepDuration(seconds float64) {
	sweepDuration.Observe(seconds)
}

// RecordNotification 记录一次通知投递
func RecordNotification(sink, status string) {
	notificationsTotal.WithLabelValues(sink, status).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateApprovalGauges 更新待审批和超期数量
func UpdateApprovalGauges(pending, overdue int64) {
	approvalsPending.Set(float64(pending))
	approvalsOverdue.Set(float64(overdue))
}

// UpdateDocumentsByStatus 更新文档状态分布指标
func UpdateDocumentsByStatus(status string, count float64) {
	documentsByStatus.WithLabelValues(status).Set(count)
}
