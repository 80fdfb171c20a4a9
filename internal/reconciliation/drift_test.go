package reconciliation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

func mustThresholds(t *testing.T, warning, critical money.Money) Thresholds {
	t.Helper()
	th, err := NewThresholds(warning, critical)
	require.NoError(t, err)
	return th
}

func TestNewThresholds(t *testing.T) {
	_, err := NewThresholds(100, 1000)
	assert.NoError(t, err)

	_, err = NewThresholds(100, 100)
	assert.NoError(t, err)

	_, err = NewThresholds(1000, 100)
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
	assert.Equal(t, "critical_threshold_gte_warning", apperror.RuleOf(err))

	_, err = NewThresholds(-1, 100)
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestClassify_Ranges(t *testing.T) {
	th := mustThresholds(t, 100, 1000)

	tests := []struct {
		drift money.Money
		want  DriftStatus
	}{
		{0, StatusBalanced},
		{1, StatusWithinTolerance},
		{-1, StatusWithinTolerance},
		{100, StatusWithinTolerance},
		{-100, StatusWithinTolerance},
		{101, StatusWarning},
		{-500, StatusWarning},
		{1000, StatusWarning},
		{-1000, StatusWarning},
		{1001, StatusCritical},
		{-1001, StatusCritical},
		{math.MaxInt64, StatusCritical},
		{math.MinInt64, StatusCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.drift, th), "drift %d", tt.drift)
	}
}

func TestClassify_TotalAndNonOverlapping(t *testing.T) {
	thresholds := []Thresholds{
		mustThresholds(t, 0, 0),
		mustThresholds(t, 0, 50),
		mustThresholds(t, 25, 25),
		mustThresholds(t, 100, 1000),
	}

	for _, th := range thresholds {
		for d := money.Money(-2000); d <= 2000; d++ {
			status := Classify(d, th)
			abs, _ := d.Abs()

			var matches int
			if abs == 0 && status == StatusBalanced {
				matches++
			}
			if abs > 0 && abs <= th.Warning && status == StatusWithinTolerance {
				matches++
			}
			if abs > th.Warning && abs <= th.Critical && status == StatusWarning {
				matches++
			}
			if abs > th.Critical && status == StatusCritical {
				matches++
			}
			require.Equal(t, 1, matches, "drift %d thresholds %+v got %s", d, th, status)
		}
	}
}

func TestClassifyDrift_ZeroToleranceNeverWarns(t *testing.T) {
	th := mustThresholds(t, 0, 0)

	for d := money.Money(-500); d <= 500; d++ {
		alert := ClassifyDrift(Summary{PayoutID: "po_1", Drift: d}, th)
		if d == 0 {
			assert.Nil(t, alert)
			continue
		}
		require.NotNil(t, alert)
		assert.Equal(t, SeverityCritical, alert.Severity)
	}
}

func TestClassifyDrift_SamplePayouts(t *testing.T) {
	th := mustThresholds(t, 100, 1000)

	balanced, err := Summarize(sampleInput(50000))
	require.NoError(t, err)
	assert.Nil(t, ClassifyDrift(balanced, th))

	short, err := Summarize(sampleInput(49500))
	require.NoError(t, err)
	alert := ClassifyDrift(short, th)
	require.NotNil(t, alert)
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Equal(t, money.Money(-500), alert.Drift)
	assert.Equal(t, "po_123", alert.PayoutID)

	tolerated, err := Summarize(sampleInput(49950))
	require.NoError(t, err)
	assert.Nil(t, ClassifyDrift(tolerated, th))

	way, err := Summarize(sampleInput(40000))
	require.NoError(t, err)
	alert = ClassifyDrift(way, th)
	require.NotNil(t, alert)
	assert.Equal(t, SeverityCritical, alert.Severity)
}
