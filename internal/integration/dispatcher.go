package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/model"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Message 投递给各通道的通知内容
type Message struct {
	ID         string                 `json:"id"`
	Event      string                 `json:"event"`
	Template   string                 `json:"template,omitempty"`
	DocumentID string                 `json:"documentId,omitempty"`
	ApprovalID string                 `json:"approvalId,omitempty"`
	StepKey    string                 `json:"stepKey,omitempty"`
	Recipients []string               `json:"recipients"`
	Payload    map[string]interface{} `json:"payload"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// Sink 一个通知投递通道
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg *Message) error
}

// DispatcherConfig 投递器配置
type DispatcherConfig struct {
	Workers      int
	MaxRetries   int
	PollInterval time.Duration
	BatchSize    int
}

// Dispatcher 从发件箱读取待投递通知并发送到各通道. 状态转换提交后调用 Kick 唤醒,
// 另有定时轮询兜底, 因此进程重启不会丢失通知. 投递至少一次.
type Dispatcher struct {
	db       *gorm.DB
	repo     repository.NotificationRepository
	sinks    []Sink
	cfg      DispatcherConfig
	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
	now      func() time.Time
}

// NewDispatcher 创建投递器
func NewDispatcher(db *gorm.DB, cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{
		db:    db,
		repo:  repository.NewNotificationRepository(db),
		sinks: sinks,
		cfg:   cfg,
		kick:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// Kick 唤醒投递循环, 不阻塞
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Start 启动投递循环
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run(ctx)
}

// Stop 停止投递循环并等待当前批次完成
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		if d.started.Load() {
			<-d.done
		}
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DrainOnce(ctx); err != nil {
			logrus.WithError(err).Error("Notification dispatch failed")
		}
		select {
		case <-d.kick:
		case <-ticker.C:
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DrainOnce 投递一批待发送通知, 返回处理的条数
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	pending, err := d.repo.FindPending(d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// worker 池并发投递同一批次, 批次完成后才读取下一批
	queue := make(chan *model.NotificationModel)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range queue {
				d.deliver(ctx, n)
			}
		}()
	}
	for _, n := range pending {
		queue <- n
	}
	close(queue)
	wg.Wait()
	return len(pending), nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *model.NotificationModel) {
	log := logrus.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"event":           n.Event,
		"document_id":     n.DocumentID,
	})

	msg, err := decodeMessage(n)
	if err != nil {
		// 无法解码的记录不会因重试而改善
		log.WithError(err).Error("Dropping undecodable notification")
		if err := d.repo.MarkFailed(n.ID, err.Error(), true, d.now()); err != nil {
			log.WithError(err).Error("Failed to mark notification failed")
		}
		return
	}

	var failures []string
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, msg); err != nil {
			metrics.RecordNotification(sink.Name(), model.NotificationFailed)
			failures = append(failures, sink.Name()+": "+err.Error())
			log.WithError(err).WithField("sink", sink.Name()).Warn("Notification delivery failed")
			continue
		}
		metrics.RecordNotification(sink.Name(), model.NotificationSent)
	}

	now := d.now()
	if len(failures) == 0 {
		if err := d.repo.MarkSent(n.ID, now); err != nil {
			log.WithError(err).Error("Failed to mark notification sent")
		}
		return
	}

	final := n.RetryCount+1 >= d.cfg.MaxRetries
	if final {
		log.WithField("retries", n.RetryCount+1).Error("Notification delivery gave up")
	}
	if err := d.repo.MarkFailed(n.ID, fmt.Sprint(failures), final, now); err != nil {
		log.WithError(err).Error("Failed to record notification failure")
	}
}

func decodeMessage(n *model.NotificationModel) (*Message, error) {
	msg := &Message{
		ID:         n.ID,
		Event:      n.Event,
		Template:   n.Template,
		DocumentID: n.DocumentID,
		ApprovalID: n.ApprovalID,
		StepKey:    n.StepKey,
		CreatedAt:  n.CreatedAt,
	}
	if err := json.Unmarshal(n.Recipients, &msg.Recipients); err != nil {
		return nil, fmt.Errorf("failed to decode recipients: %w", err)
	}
	if len(n.Payload) > 0 {
		if err := json.Unmarshal(n.Payload, &msg.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return msg, nil
}
