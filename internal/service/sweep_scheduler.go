package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepScheduler 进程内 SLA 巡检调度器. 也可以关闭它, 由外部调度器执行 sweep 命令.
type SweepScheduler struct {
	sweeps   SweepService
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSweepScheduler 创建巡检调度器
func NewSweepScheduler(sweeps SweepService, interval time.Duration) *SweepScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepScheduler{
		sweeps:   sweeps,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动巡检调度器
func (s *SweepScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop 停止巡检调度器
func (s *SweepScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Interval 返回巡检间隔
func (s *SweepScheduler) Interval() time.Duration {
	return s.interval
}

func (s *SweepScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 立即执行一次
	s.performSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.performSweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *SweepScheduler) performSweep(ctx context.Context) {
	if _, err := s.sweeps.Sweep(ctx, time.Now()); err != nil {
		logrus.WithError(err).Error("SLA sweep failed")
	}
}
