// Package apperror 手续费、对账引擎和外层服务共用的错误类型
//
// 每个错误都带 Kind 和被违反的 Rule，调用方据此返回错误而不暴露内部细节
// errors.Is 按 Kind 与导出的哨兵错误比较：
//
//	if errors.Is(err, apperror.ErrUpstreamUnavailable) { 稍后重试 }
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
	KindConfiguration       Kind = "CONFIGURATION_ERROR"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInvariantViolation  Kind = "INVARIANT_VIOLATION"
	KindNotFound            Kind = "NOT_FOUND"
)

// 供 errors.Is 使用的哨兵错误
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrInvariantViolation  = &Error{Kind: KindInvariantViolation}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

type Error struct {
	Kind    Kind
	Rule    string // 被违反的规则标识，如 "base_amount_non_negative"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Rule != "" {
		msg += " [" + e.Rule + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 判断 target 是否为同一 Kind 的 *Error；target 带 Rule 时 Rule 也要一致
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Rule == "" || t.Rule == e.Rule
}

func newf(kind Kind, rule, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func Validation(rule, format string, args ...interface{}) *Error {
	return newf(KindValidation, rule, format, args...)
}

func InvalidAmount(rule, format string, args ...interface{}) *Error {
	return newf(KindInvalidAmount, rule, format, args...)
}

func Configuration(rule, format string, args ...interface{}) *Error {
	return newf(KindConfiguration, rule, format, args...)
}

func InvariantViolation(rule, format string, args ...interface{}) *Error {
	return newf(KindInvariantViolation, rule, format, args...)
}

func NotFound(rule, format string, args ...interface{}) *Error {
	return newf(KindNotFound, rule, format, args...)
}

// UpstreamUnavailable 包装一次失败的网关调用
func UpstreamUnavailable(op string, err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Rule: op, Message: "payment gateway call failed", Err: err}
}

// RulePayoutLock 对账锁获取失败时的 Rule
const RulePayoutLock = "payout_lock"

// LockUnavailable 获取对账锁失败，与网关故障一样可以稍后重试
func LockUnavailable(err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Rule: RulePayoutLock, Message: "payout lock unavailable", Err: err}
}

// Wrap 给任意错误附加 Kind 和 Rule
func Wrap(kind Kind, rule string, err error) *Error {
	return &Error{Kind: kind, Rule: rule, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的 Kind，没有时返回 ""
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RuleOf 返回错误链中第一个 *Error 的 Rule
func RuleOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Rule
	}
	return ""
}

// Retryable 调用方是否可以退避后重试
func Retryable(err error) bool {
	return KindOf(err) == KindUpstreamUnavailable
}
