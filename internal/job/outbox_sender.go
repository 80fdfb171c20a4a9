package job

import (
	"context"
	"time"

	"payprocessor/internal/metrics"
	"payprocessor/internal/model"

	"go.uber.org/zap"
)

// OutboxStore 由 repository.OutboxRepository 实现
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Publisher 由 mq.Producer 实现
type Publisher interface {
	SendMessage(topic, key, eventType, value string) error
}

// OutboxSender 轮询 outbox 表，把漂移告警和领域事件投递到 Kafka
type OutboxSender struct {
	store         OutboxStore
	publisher     Publisher
	recorder      metrics.Recorder
	logger        *zap.Logger
	maxRetryCount int
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewOutboxSender(store OutboxStore, publisher Publisher, maxRetryCount int, recorder metrics.Recorder, logger *zap.Logger) *OutboxSender {
	return &OutboxSender{
		store:         store,
		publisher:     publisher,
		recorder:      recorder,
		logger:        logger.Named("outbox_sender"),
		maxRetryCount: maxRetryCount,
		stopCh:        make(chan struct{}),
		interval:      100 * time.Millisecond,
		batchSize:     100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.EventType, msg.Payload)

	if err == nil {
		s.recorder.RecordOutboxPublish("sent")
		if updateErr := s.store.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 消息已经发出，下一轮会重复投递，消费方按 key 去重
			s.logger.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			s.logger.Debug("消息发送成功",
				zap.Int64("id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.String("key", msg.MessageKey))
		}
		return
	}

	s.recorder.RecordOutboxPublish("retry")
	s.logger.Warn("消息发送失败", zap.Int64("id", msg.ID), zap.Error(err))

	if err := s.store.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.store.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			s.recorder.RecordOutboxPublish("failed")
			s.logger.Error("消息超过最大重试次数，标记为失败",
				zap.Int64("id", msg.ID),
				zap.String("event_type", msg.EventType))
		}
	}
}
