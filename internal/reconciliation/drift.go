package reconciliation

import (
	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// Severity 漂移告警等级
type Severity string

const (
	SeverityBalanced Severity = "balanced"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DriftStatus 每个 payout 都会记录的漂移分级
type DriftStatus string

const (
	StatusBalanced        DriftStatus = "balanced"
	StatusWithinTolerance DriftStatus = "within_tolerance"
	StatusWarning         DriftStatus = "warning"
	StatusCritical        DriftStatus = "critical"
)

// Thresholds 可容忍的漂移（分），通过 NewThresholds 构建
type Thresholds struct {
	Warning  money.Money `json:"warning_threshold_cents"`
	Critical money.Money `json:"critical_threshold_cents"`
}

// NewThresholds 拒绝负数阈值和 critical < warning，属于启动时的配置错误
func NewThresholds(warning, critical money.Money) (Thresholds, error) {
	if warning.IsNegative() || critical.IsNegative() {
		return Thresholds{}, apperror.Configuration("drift_thresholds_non_negative",
			"drift thresholds must be >= 0 (warning=%d, critical=%d)", warning, critical)
	}
	if critical < warning {
		return Thresholds{}, apperror.Configuration("critical_threshold_gte_warning",
			"critical threshold %d is below warning threshold %d", critical, warning)
	}
	return Thresholds{Warning: warning, Critical: critical}, nil
}

type DriftAlert struct {
	PayoutID string      `json:"payout_id"`
	Drift    money.Money `json:"drift_cents"`
	Severity Severity    `json:"severity"`
}

// Classify 把漂移映射到唯一的状态：
//
//	|d| == 0                    balanced
//	0 < |d| <= warning          within tolerance
//	warning < |d| <= critical   warning
//	|d| > critical              critical
func Classify(drift money.Money, t Thresholds) DriftStatus {
	abs, err := drift.Abs()
	if err != nil {
		// 只有 MinInt64 会走到这里，超过任何阈值
		return StatusCritical
	}
	switch {
	case abs == 0:
		return StatusBalanced
	case abs <= t.Warning:
		return StatusWithinTolerance
	case abs <= t.Critical:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// ClassifyDrift 漂移超过 warning 阈值时返回告警，否则返回 nil
func ClassifyDrift(s Summary, t Thresholds) *DriftAlert {
	var sev Severity
	switch Classify(s.Drift, t) {
	case StatusWarning:
		sev = SeverityWarning
	case StatusCritical:
		sev = SeverityCritical
	default:
		return nil
	}
	return &DriftAlert{PayoutID: s.PayoutID, Drift: s.Drift, Severity: sev}
}
