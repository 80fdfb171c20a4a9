package response

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"payprocessor/internal/apperror"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantRule string
	}{
		{"validation", apperror.Validation("base_amount_non_negative", "base amount -1 must be >= 0"), CodeParamError, "base_amount_non_negative"},
		{"invalid amount", apperror.InvalidAmount("posting_amount_positive", "amount 0"), CodeInvalidAmount, "posting_amount_positive"},
		{"not found", apperror.NotFound("record_exists", "no record"), CodeNotFound, "record_exists"},
		{"upstream", apperror.UpstreamUnavailable("fetch_payout", errors.New("dial tcp 10.0.0.1:443")), CodeUpstreamUnavailable, "fetch_payout"},
		{"lock", apperror.LockUnavailable(errors.New("redis: connection refused")), CodeUpstreamUnavailable, apperror.RulePayoutLock},
		{"invariant", apperror.InvariantViolation("ledger_balanced", "secret detail"), CodeInvariantViolation, "ledger_balanced"},
		{"plain", errors.New("boom"), CodeServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Build(tt.err)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantRule, resp.Rule)
		})
	}
}

func TestBuild_HidesInternals(t *testing.T) {
	resp := Build(apperror.UpstreamUnavailable("fetch_payout", errors.New("dial tcp 10.0.0.1:443")))
	assert.NotContains(t, resp.Message, "10.0.0.1")

	resp = Build(apperror.LockUnavailable(errors.New("redis: connection refused")))
	assert.NotContains(t, resp.Message, "支付网关")
	assert.NotContains(t, resp.Message, "redis")

	resp = Build(apperror.InvariantViolation("ledger_balanced", "secret detail"))
	assert.NotContains(t, resp.Message, "secret")
}
