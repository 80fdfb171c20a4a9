package webhook

import (
	"fmt"

	"payprocessor/pkg/money"
)

// Action 事件的后续动作：RecordPayment、FlagPaymentFailure、RecordRefund、ReconcilePayout、OpenDispute 或 Ignore
type Action interface {
	action()
}

type RecordPayment struct {
	PaymentIntentID string      `json:"payment_intent_id"`
	CampgroundID    string      `json:"campground_id,omitempty"`
	ReservationID   string      `json:"reservation_id,omitempty"`
	Amount          money.Money `json:"amount_cents"`
	ApplicationFee  money.Money `json:"application_fee_cents"`
	Currency        string      `json:"currency"`
}

type FlagPaymentFailure struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason"`
}

type RecordRefund struct {
	ChargeID        string      `json:"charge_id"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	Amount          money.Money `json:"amount_cents"`
	Currency        string      `json:"currency"`
}

// ReconcilePayout payout 到账后发起对账
type ReconcilePayout struct {
	PayoutID        string `json:"payout_id"`
	StripeAccountID string `json:"stripe_account_id"`
}

type OpenDispute struct {
	DisputeID string      `json:"dispute_id"`
	ChargeID  string      `json:"charge_id"`
	Amount    money.Money `json:"amount_cents"`
	Reason    string      `json:"reason"`
}

type Ignore struct {
	Reason string `json:"reason"`
}

func (RecordPayment) action()      {}
func (FlagPaymentFailure) action() {}
func (RecordRefund) action()       {}
func (ReconcilePayout) action()    {}
func (OpenDispute) action()        {}
func (Ignore) action()             {}

// ActionName outbox 事件类型和日志使用的固定名称
func ActionName(a Action) string {
	switch a.(type) {
	case RecordPayment:
		return "record_payment"
	case FlagPaymentFailure:
		return "flag_payment_failure"
	case RecordRefund:
		return "record_refund"
	case ReconcilePayout:
		return "reconcile_payout"
	case OpenDispute:
		return "open_dispute"
	default:
		return "ignore"
	}
}

// Plan 决定事件的后续动作，只有已到账且属于连接账户的 payout 才对账
func Plan(e Event) Action {
	switch ev := e.(type) {
	case PaymentSucceeded:
		return RecordPayment{
			PaymentIntentID: ev.PaymentIntentID,
			CampgroundID:    ev.Metadata["campground_id"],
			ReservationID:   ev.Metadata["reservation_id"],
			Amount:          ev.Amount,
			ApplicationFee:  ev.ApplicationFee,
			Currency:        ev.Currency,
		}

	case PaymentFailed:
		reason := ev.FailureMessage
		if reason == "" {
			reason = ev.FailureCode
		}
		return FlagPaymentFailure{PaymentIntentID: ev.PaymentIntentID, Reason: reason}

	case ChargeRefunded:
		return RecordRefund{
			ChargeID:        ev.ChargeID,
			PaymentIntentID: ev.PaymentIntentID,
			Amount:          ev.AmountRefunded,
			Currency:        ev.Currency,
		}

	case PayoutPaid:
		if ev.Status != "paid" {
			return Ignore{Reason: fmt.Sprintf("payout %s is %s", ev.PayoutID, ev.Status)}
		}
		if ev.Account == "" {
			return Ignore{Reason: fmt.Sprintf("payout %s is not on a connected account", ev.PayoutID)}
		}
		return ReconcilePayout{PayoutID: ev.PayoutID, StripeAccountID: ev.Account}

	case DisputeCreated:
		return OpenDispute{
			DisputeID: ev.DisputeID,
			ChargeID:  ev.ChargeID,
			Amount:    ev.Amount,
			Reason:    ev.Reason,
		}

	case Unhandled:
		return Ignore{Reason: "unhandled event type " + ev.Type}

	default:
		return Ignore{Reason: fmt.Sprintf("unknown event %T", e)}
	}
}
