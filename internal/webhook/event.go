// Package webhook 把验签后的 Stripe 事件转换为有限的领域事件，并决定后续动作
package webhook

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v76"

	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// Event 取值为 PaymentSucceeded、PaymentFailed、ChargeRefunded、PayoutPaid、DisputeCreated 或 Unhandled
type Event interface {
	EventMeta() Meta
	event()
}

// Meta 每个网关事件都有的字段
type Meta struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Account string    `json:"account,omitempty"` // 事件发生的连接账户
	Created time.Time `json:"created"`
}

func (m Meta) EventMeta() Meta { return m }
func (Meta) event()            {}

type PaymentSucceeded struct {
	Meta
	PaymentIntentID string            `json:"payment_intent_id"`
	Amount          money.Money       `json:"amount_cents"`
	ApplicationFee  money.Money       `json:"application_fee_cents"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type PaymentFailed struct {
	Meta
	PaymentIntentID string `json:"payment_intent_id"`
	FailureCode     string `json:"failure_code,omitempty"`
	FailureMessage  string `json:"failure_message,omitempty"`
}

type ChargeRefunded struct {
	Meta
	ChargeID        string      `json:"charge_id"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	AmountRefunded  money.Money `json:"amount_refunded_cents"`
	Currency        string      `json:"currency"`
}

type PayoutPaid struct {
	Meta
	PayoutID string      `json:"payout_id"`
	Amount   money.Money `json:"amount_cents"`
	Status   string      `json:"status"`
}

type DisputeCreated struct {
	Meta
	DisputeID string      `json:"dispute_id"`
	ChargeID  string      `json:"charge_id"`
	Amount    money.Money `json:"amount_cents"`
	Reason    string      `json:"reason"`
}

type Unhandled struct {
	Meta
}

const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
	TypeChargeRefunded   = "charge.refunded"
	TypePayoutPaid       = "payout.paid"
	TypePayoutUpdated    = "payout.updated"
	TypeDisputeCreated   = "charge.dispute.created"
)

// Parse 把验签后的事件映射到领域事件，不处理的类型返回 Unhandled 而不是错误
func Parse(e stripe.Event) (Event, error) {
	meta := Meta{
		EventID: e.ID,
		Type:    string(e.Type),
		Account: e.Account,
		Created: time.Unix(e.Created, 0).UTC(),
	}

	switch meta.Type {
	case TypePaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := decode(e, &pi); err != nil {
			return nil, err
		}
		return PaymentSucceeded{
			Meta:            meta,
			PaymentIntentID: pi.ID,
			Amount:          money.Cents(pi.AmountReceived),
			ApplicationFee:  money.Cents(pi.ApplicationFeeAmount),
			Currency:        string(pi.Currency),
			Metadata:        pi.Metadata,
		}, nil

	case TypePaymentFailed:
		var pi stripe.PaymentIntent
		if err := decode(e, &pi); err != nil {
			return nil, err
		}
		failed := PaymentFailed{Meta: meta, PaymentIntentID: pi.ID}
		if pi.LastPaymentError != nil {
			failed.FailureCode = string(pi.LastPaymentError.Code)
			failed.FailureMessage = pi.LastPaymentError.Msg
		}
		return failed, nil

	case TypeChargeRefunded:
		var ch stripe.Charge
		if err := decode(e, &ch); err != nil {
			return nil, err
		}
		refunded := ChargeRefunded{
			Meta:           meta,
			ChargeID:       ch.ID,
			AmountRefunded: money.Cents(ch.AmountRefunded),
			Currency:       string(ch.Currency),
		}
		if ch.PaymentIntent != nil {
			refunded.PaymentIntentID = ch.PaymentIntent.ID
		}
		return refunded, nil

	case TypePayoutPaid, TypePayoutUpdated:
		var po stripe.Payout
		if err := decode(e, &po); err != nil {
			return nil, err
		}
		return PayoutPaid{
			Meta:     meta,
			PayoutID: po.ID,
			Amount:   money.Cents(po.Amount),
			Status:   string(po.Status),
		}, nil

	case TypeDisputeCreated:
		var d stripe.Dispute
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		created := DisputeCreated{
			Meta:      meta,
			DisputeID: d.ID,
			Amount:    money.Cents(d.Amount),
			Reason:    string(d.Reason),
		}
		if d.Charge != nil {
			created.ChargeID = d.Charge.ID
		}
		return created, nil

	default:
		return Unhandled{Meta: meta}, nil
	}
}

func decode(e stripe.Event, v interface{}) error {
	if e.Data == nil || len(e.Data.Raw) == 0 {
		return apperror.Validation("webhook_payload", "event %s has no data object", e.ID)
	}
	if err := json.Unmarshal(e.Data.Raw, v); err != nil {
		return apperror.Wrap(apperror.KindValidation, "webhook_payload", err)
	}
	return nil
}
