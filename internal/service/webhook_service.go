package service

import (
	"context"
	"errors"
	"fmt"

	"payprocessor/internal/model"
	"payprocessor/internal/repository"
	"payprocessor/internal/webhook"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventVerifier 校验 Stripe-Signature 并解析事件，由 gateway.Stripe 实现
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// PayoutQueue 由 repository.PayoutRequestRepository 实现
type PayoutQueue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req *model.PayoutRequest) (bool, error)
}

// OutboxWriter 由 repository.OutboxRepository 实现
type OutboxWriter interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

type WebhookService struct {
	verifier    EventVerifier
	campgrounds CampgroundDirectory
	payouts     PayoutQueue
	outbox      OutboxWriter
	eventTopic  string
	logger      *zap.Logger
}

func NewWebhookService(verifier EventVerifier, campgrounds CampgroundDirectory, payouts PayoutQueue, outbox OutboxWriter, eventTopic string, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		verifier:    verifier,
		campgrounds: campgrounds,
		payouts:     payouts,
		outbox:      outbox,
		eventTopic:  eventTopic,
		logger:      logger,
	}
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Action    string `json:"action"`
}

// DomainEvent 投递到 domain_event topic 的消息体
type DomainEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Account   string         `json:"account,omitempty"`
	Action    string         `json:"action"`
	Data      webhook.Action `json:"data"`
}

// HandleWebhook 验签 -> 解析 -> 决策 -> 执行
// payout 对账只入队，由 PayoutRetryJob 异步处理；其他动作写入 outbox 交给下游
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	raw, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	event, err := webhook.Parse(raw)
	if err != nil {
		return nil, err
	}
	meta := event.EventMeta()
	action := webhook.Plan(event)

	result := &WebhookResult{
		EventID:   meta.EventID,
		EventType: meta.Type,
		Action:    webhook.ActionName(action),
	}

	switch a := action.(type) {
	case webhook.Ignore:
		s.logger.Debug("忽略 Webhook 事件", zap.String("event_id", meta.EventID), zap.String("reason", a.Reason))

	case webhook.ReconcilePayout:
		if err := s.enqueuePayout(ctx, meta, a); err != nil {
			return nil, err
		}

	default:
		msg, err := model.NewOutboxMessage(s.eventTopic, meta.EventID, result.Action, DomainEvent{
			EventID:   meta.EventID,
			EventType: meta.Type,
			Account:   meta.Account,
			Action:    result.Action,
			Data:      action,
		})
		if err != nil {
			return nil, fmt.Errorf("序列化事件失败: %w", err)
		}
		if err := s.outbox.Create(ctx, nil, msg); err != nil {
			return nil, fmt.Errorf("写入消息失败: %w", err)
		}
	}

	s.logger.Info("Webhook 处理完成",
		zap.String("event_id", meta.EventID),
		zap.String("event_type", meta.Type),
		zap.String("action", result.Action))
	return result, nil
}

func (s *WebhookService) enqueuePayout(ctx context.Context, meta webhook.Meta, a webhook.ReconcilePayout) error {
	account, err := s.campgrounds.GetByStripeAccountID(ctx, a.StripeAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrCampgroundAccountNotFound) {
			// 不认识的连接账户，返回成功避免 Stripe 无限重投
			s.logger.Warn("payout 所属连接账户未绑定营地",
				zap.String("payout_id", a.PayoutID),
				zap.String("stripe_account_id", a.StripeAccountID))
			return nil
		}
		return err
	}

	queued, err := s.payouts.Enqueue(ctx, nil, &model.PayoutRequest{
		PayoutID:        a.PayoutID,
		CampgroundID:    account.CampgroundID,
		StripeAccountID: a.StripeAccountID,
		SourceEventID:   meta.EventID,
	})
	if err != nil {
		return fmt.Errorf("payout 入队失败: %w", err)
	}
	if !queued {
		s.logger.Info("payout 已在队列中", zap.String("payout_id", a.PayoutID))
	}
	return nil
}
