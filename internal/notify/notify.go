// Package notify publishes transaction outcomes to optional external
// channels so other processes can follow what the runner did.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gelato-runner/internal/config"
	xerrors "gelato-runner/internal/errors"
	"gelato-runner/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

const (
	ChannelRedis    Channel = "redis"
	ChannelRabbitMQ Channel = "rabbitmq"
)

// Event 描述一次命令执行的结果。
type Event struct {
	RecordID   string    `json:"record_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Command    string    `json:"command"`
	Network    string    `json:"network"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) encode() ([]byte, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(e)
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
	Close() error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// Fanout 把事件投递到所有已注册的通知器。
type Fanout struct {
	notifiers []Notifier
}

// NewFanout 创建 Fanout，忽略 nil 通知器；同一渠道只保留第一个。
func NewFanout(notifiers ...Notifier) *Fanout {
	seen := make(map[Channel]struct{}, len(notifiers))
	set := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if _, ok := seen[n.Channel()]; ok {
			continue
		}
		seen[n.Channel()] = struct{}{}
		set = append(set, n)
	}
	return &Fanout{notifiers: set}
}

// Channels 返回已注册渠道。
func (f *Fanout) Channels() []Channel {
	if f == nil {
		return nil
	}
	out := make([]Channel, len(f.notifiers))
	for i, n := range f.notifiers {
		out[i] = n.Channel()
	}
	return out
}

// Notify 将事件广播至所有渠道，单个渠道失败不影响其余渠道。
func (f *Fanout) Notify(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", n.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodeQueueFailure, errors.Join(errs...), "发送交易结果通知失败")
	}
	return nil
}

// Close 关闭所有通知器。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build 根据配置创建通知器；连接失败只记录告警，不阻断命令执行。
func Build(ctx context.Context, cfg config.NotifyConfig) *Fanout {
	log := logger.Named("notify")
	var notifiers []Notifier
	if cfg.Redis.Enabled {
		n, err := NewRedisNotifier(ctx, RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			List:     cfg.Redis.List,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			log.Warn("Redis 通知不可用", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if cfg.RabbitMQ.Enabled {
		n, err := NewRabbitMQNotifier(RabbitMQConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
		if err != nil {
			log.Warn("RabbitMQ 通知不可用", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, n)
		}
	}
	return NewFanout(notifiers...)
}
