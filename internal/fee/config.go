// Package fee 计算付款人支付多少、各方各得多少
package fee

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"payprocessor/internal/apperror"
	"payprocessor/pkg/money"
)

// Mode 费用由谁承担
type Mode string

const (
	// ModeAbsorb 费用从收款方收入中扣除，付款人只付 base
	ModeAbsorb Mode = "absorb"
	// ModePass 费用加在 base 之上由付款人承担
	ModePass Mode = "pass"
)

var maxPercent = decimal.NewFromInt(100)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAbsorb, ModePass:
		return m, nil
	default:
		return "", apperror.Validation("fee_mode", "unknown fee mode %q (want absorb or pass)", s)
	}
}

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("fee mode: %w", err)
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Rate 百分比加固定金额
type Rate struct {
	FlatCents money.Money     `json:"cents"`
	Percent   decimal.Decimal `json:"percent"`
	Mode      Mode            `json:"mode"`
}

// Config 一笔收费的费率配置，值类型，启动时从配置构建，覆盖时按值传递
type Config struct {
	Platform Rate
	Gateway  Rate
}

// configJSON 手续费接口使用的扁平 JSON 结构
type configJSON struct {
	PlatformFeeCents   money.Money     `json:"platform_fee_cents"`
	PlatformFeePercent decimal.Decimal `json:"platform_fee_percent"`
	PlatformFeeMode    Mode            `json:"platform_fee_mode"`
	GatewayFeeCents    money.Money     `json:"gateway_fee_cents"`
	GatewayFeePercent  decimal.Decimal `json:"gateway_fee_percent"`
	GatewayFeeMode     Mode            `json:"gateway_fee_mode"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		PlatformFeeCents:   c.Platform.FlatCents,
		PlatformFeePercent: c.Platform.Percent,
		PlatformFeeMode:    c.Platform.Mode,
		GatewayFeeCents:    c.Gateway.FlatCents,
		GatewayFeePercent:  c.Gateway.Percent,
		GatewayFeeMode:     c.Gateway.Mode,
	})
}

func (c *Config) UnmarshalJSON(b []byte) error {
	var raw configJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Config{
		Platform: Rate{FlatCents: raw.PlatformFeeCents, Percent: raw.PlatformFeePercent, Mode: raw.PlatformFeeMode},
		Gateway:  Rate{FlatCents: raw.GatewayFeeCents, Percent: raw.GatewayFeePercent, Mode: raw.GatewayFeeMode},
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Platform.validate("platform"); err != nil {
		return err
	}
	return c.Gateway.validate("gateway")
}

func (r Rate) validate(name string) error {
	if r.FlatCents.IsNegative() {
		return apperror.Validation(name+"_fee_cents", "%s flat fee %d must be >= 0", name, r.FlatCents)
	}
	if r.Percent.IsNegative() || r.Percent.GreaterThan(maxPercent) {
		return apperror.Validation(name+"_fee_percent", "%s fee percent %s must be within [0, 100]", name, r.Percent)
	}
	if r.Mode != ModeAbsorb && r.Mode != ModePass {
		return apperror.Validation(name+"_fee_mode", "%s fee mode %q must be absorb or pass", name, r.Mode)
	}
	return nil
}

// Breakdown Calculate 的结果
type Breakdown struct {
	BaseAmount      money.Money `json:"base_amount_cents"`
	PlatformFee     money.Money `json:"platform_fee_cents"`
	GatewayFee      money.Money `json:"gateway_fee_cents"`
	ApplicationFee  money.Money `json:"application_fee_cents"`
	ChargeAmount    money.Money `json:"charge_amount_cents"`
	NetToCampground money.Money `json:"net_to_campground_cents"`
	PlatformFeeMode Mode        `json:"platform_fee_mode"`
	GatewayFeeMode  Mode        `json:"gateway_fee_mode"`
}
