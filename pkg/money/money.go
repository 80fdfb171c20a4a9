// Package money 以分为单位的有符号金额
//
// 所有运算都做范围检查，超出 int64 时返回 ErrOverflow 而不是回绕
// 百分比用精确小数计算后四舍五入到分（远离零方向），非负金额上即普通的四舍五入
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrOverflow = errors.New("money: amount out of range")

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// Money 以最小货币单位（分）表示的金额
type Money int64

func Cents(v int64) Money {
	return Money(v)
}

func (m Money) Int64() int64 {
	return int64(m)
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsPositive() bool { return m > 0 }

// Add 返回 m+o，溢出时返回 ErrOverflow
func (m Money) Add(o Money) (Money, error) {
	if (o > 0 && m > math.MaxInt64-o) || (o < 0 && m < math.MinInt64-o) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, m, o)
	}
	return m + o, nil
}

// Sub 返回 m-o，溢出时返回 ErrOverflow
func (m Money) Sub(o Money) (Money, error) {
	if (o < 0 && m > math.MaxInt64+o) || (o > 0 && m < math.MinInt64+o) {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, m, o)
	}
	return m - o, nil
}

// Neg 返回 -m，MinInt64 没有对应的正数
func (m Money) Neg() (Money, error) {
	if m == math.MinInt64 {
		return 0, fmt.Errorf("%w: -(%d)", ErrOverflow, m)
	}
	return -m, nil
}

// Abs 返回 |m|
func (m Money) Abs() (Money, error) {
	if m < 0 {
		return m.Neg()
	}
	return m, nil
}

// Percent 返回 m * pct / 100，四舍五入到分，.5 远离零进位
func (m Money) Percent(pct decimal.Decimal) (Money, error) {
	v := decimal.NewFromInt(int64(m)).Mul(pct).Div(hundred).Round(0)
	if v.GreaterThan(maxCents) || v.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %d * %s%%", ErrOverflow, m, pct.String())
	}
	return Money(v.IntPart()), nil
}

// Sum 累加所有金额，第一次溢出即返回错误
func Sum(amounts ...Money) (Money, error) {
	var total Money
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// String 两位小数格式，如 "-12.05"
func (m Money) String() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}
