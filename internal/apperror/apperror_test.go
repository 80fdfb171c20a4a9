package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("process payout: %w", Validation("base_amount_non_negative", "got %d", -1))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrInvalidAmount))
	assert.True(t, errors.Is(err, &Error{Kind: KindValidation, Rule: "base_amount_non_negative"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation, Rule: "other_rule"}))
}

func TestError_Message(t *testing.T) {
	err := Validation("currency_code", "currency %q must be 3 letters", "usdollar")
	assert.Equal(t, `VALIDATION_ERROR [currency_code]: currency "usdollar" must be 3 letters`, err.Error())

	cause := errors.New("connection reset")
	up := UpstreamUnavailable("fetch_payout", cause)
	assert.Contains(t, up.Error(), "UPSTREAM_UNAVAILABLE [fetch_payout]")
	assert.ErrorIs(t, up, cause)
}

func TestLockUnavailable(t *testing.T) {
	cause := errors.New("获取分布式锁失败")
	err := LockUnavailable(cause)

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Equal(t, RulePayoutLock, RuleOf(err))
	assert.Equal(t, "UPSTREAM_UNAVAILABLE [payout_lock]: payout lock unavailable: 获取分布式锁失败", err.Error())
}

func TestKindOfAndRetryable(t *testing.T) {
	up := fmt.Errorf("wrapped: %w", UpstreamUnavailable("fetch_payout", errors.New("timeout")))

	assert.Equal(t, KindUpstreamUnavailable, KindOf(up))
	assert.Equal(t, "fetch_payout", RuleOf(up))
	assert.True(t, Retryable(up))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Retryable(InvariantViolation("ledger_balanced", "debits != credits")))
}
