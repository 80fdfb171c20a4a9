package service

import (
	"payprocessor/internal/fee"
	"payprocessor/internal/metrics"
	"payprocessor/pkg/money"

	"go.uber.org/zap"
)

// FeeService 手续费计算，默认费率在启动时确定，请求可以整体覆盖
type FeeService struct {
	defaults fee.Config
	recorder metrics.Recorder
	logger   *zap.Logger
}

func NewFeeService(defaults fee.Config, recorder metrics.Recorder, logger *zap.Logger) *FeeService {
	return &FeeService{
		defaults: defaults,
		recorder: recorder,
		logger:   logger,
	}
}

func (s *FeeService) Defaults() fee.Config {
	return s.defaults
}

// Calculate override 为 nil 时使用默认费率
func (s *FeeService) Calculate(amount money.Money, override *fee.Config) (fee.Breakdown, error) {
	cfg := s.defaults
	if override != nil {
		cfg = *override
	}

	breakdown, err := fee.Calculate(amount, cfg)
	if err != nil {
		s.recorder.RecordFeeCalculation("rejected")
		s.logger.Debug("手续费计算被拒绝", zap.Int64("amount_cents", amount.Int64()), zap.Error(err))
		return fee.Breakdown{}, err
	}

	s.recorder.RecordFeeCalculation("ok")
	return breakdown, nil
}
