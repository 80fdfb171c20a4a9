package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 场景：同一个 payout 同时被 Webhook 触发的重试任务和人工调用的接口处理
//
// 如果没有分布式锁：
//   实例1: 查询对账记录=无 -> 拉取 Stripe -> 写入记录
//   实例2: 查询对账记录=无 -> 拉取 Stripe -> 写入记录失败（唯一键冲突）
//   两边都白白调用了一次 Stripe
//
// 加了分布式锁：
//   实例1: 获取锁 -> 查询=无 -> 拉取 -> 写入 -> 释放锁
//   实例2: 等待... -> 获取锁 -> 查询=已存在 -> 直接返回
//
// 锁只是减少重复工作，正确性仍由 payout_id 唯一索引保证
//
// 加锁：SET key value NX EX timeout
// 释放锁：Lua 脚本先校验 value 再删除，防止误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，value 不匹配（锁已过期并被别人拿走）时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// 按 payout 维度加锁
// ============================================================================

const payoutLockTTL = 60 * time.Second

func PayoutLockKey(payoutID string) string {
	return fmt.Sprintf("reconcile:lock:payout:%s", payoutID)
}

// NewPayoutLock 创建对账锁（按 payout 维度），不同 payout 可以并发对账
func NewPayoutLock(client redis.Cmdable, payoutID, requestID string) *DistributedLock {
	return NewDistributedLock(client, PayoutLockKey(payoutID), requestID, payoutLockTTL)
}

// PayoutLocker 供 service 使用的加锁器
type PayoutLocker struct {
	client        redis.Cmdable
	retryInterval time.Duration
	maxRetries    int
	logger        *zap.Logger
}

func NewPayoutLocker(client redis.Cmdable, logger *zap.Logger) *PayoutLocker {
	return &PayoutLocker{
		client:        client,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    50,
		logger:        logger,
	}
}

// Acquire 获取 payout 锁，返回释放函数
func (p *PayoutLocker) Acquire(ctx context.Context, payoutID string) (func(), error) {
	l := NewPayoutLock(p.client, payoutID, uuid.NewString())
	if err := l.Lock(ctx, p.retryInterval, p.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 使用独立的 context，调用方的 context 已取消时也要释放
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Unlock(ctx); err != nil {
			// 锁已过期说明持有时间超过 TTL，期间可能有其他实例进入
			p.logger.Warn("释放对账锁失败",
				zap.String("payout_id", payoutID),
				zap.String("key", l.key),
				zap.Bool("expired", errors.Is(err, ErrLockExpired)),
				zap.Error(err))
		}
	}, nil
}
