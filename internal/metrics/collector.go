package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collector 指标收集器, 定期从数据库刷新仪表盘类指标
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  atomic.Bool
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.collect()
	}
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	if c.started.Load() {
		<-c.done
	}
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = UpdateDatabaseConnections(c.db)
			if err := c.Refresh(); err != nil {
				logrus.WithError(err).Warn("Failed to refresh workflow metrics")
			}
		}
	}
}

// Refresh 查询待审批, 超期审批和文档状态分布
func (c *Collector) Refresh() error {
	db := c.db.WithContext(c.ctx)

	var pending, overdue int64
	if err := db.Table("documentapprovals").Scopes(repository.Actionable).Count(&pending).Error; err != nil {
		return err
	}
	if err := db.Table("documentapprovals").Scopes(repository.Actionable).
		Where("documentapprovals.deadline IS NOT NULL AND documentapprovals.deadline <= ?", c.now()).
		Count(&overdue).Error; err != nil {
		return err
	}
	UpdateApprovalGauges(pending, overdue)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Table("documents").Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		UpdateDocumentsByStatus(r.Status, float64(r.Count))
	}
	return nil
}
