package fee

import (
	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// Calculate 计算一笔 base 分的收费明细
//
// 每项费用 = round_half_up(base * percent / 100) + flat
// pass 模式的费用加到付款人支付金额上，absorb 模式只记录不加收
// application fee 始终等于平台手续费，与模式无关，它是网关转给平台账户的部分
func Calculate(base money.Money, cfg Config) (Breakdown, error) {
	if base.IsNegative() {
		return Breakdown{}, apperror.Validation("base_amount_non_negative", "base amount %d must be >= 0", base)
	}
	if err := cfg.Validate(); err != nil {
		return Breakdown{}, err
	}

	platformFee, err := feeFor(base, cfg.Platform)
	if err != nil {
		return Breakdown{}, err
	}
	gatewayFee, err := feeFor(base, cfg.Gateway)
	if err != nil {
		return Breakdown{}, err
	}

	charge := base
	for _, f := range []struct {
		mode   Mode
		amount money.Money
	}{
		{cfg.Platform.Mode, platformFee},
		{cfg.Gateway.Mode, gatewayFee},
	} {
		if f.mode != ModePass {
			continue
		}
		if charge, err = charge.Add(f.amount); err != nil {
			return Breakdown{}, apperror.Wrap(apperror.KindValidation, "charge_amount_range", err)
		}
	}

	net, err := charge.Sub(platformFee)
	if err == nil {
		net, err = net.Sub(gatewayFee)
	}
	if err != nil {
		return Breakdown{}, apperror.Wrap(apperror.KindValidation, "net_amount_range", err)
	}

	return Breakdown{
		BaseAmount:      base,
		PlatformFee:     platformFee,
		GatewayFee:      gatewayFee,
		ApplicationFee:  platformFee,
		ChargeAmount:    charge,
		NetToCampground: net,
		PlatformFeeMode: cfg.Platform.Mode,
		GatewayFeeMode:  cfg.Gateway.Mode,
	}, nil
}

func feeFor(base money.Money, r Rate) (money.Money, error) {
	pct, err := base.Percent(r.Percent)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindValidation, "fee_amount_range", err)
	}
	total, err := pct.Add(r.FlatCents)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindValidation, "fee_amount_range", err)
	}
	return total, nil
}
