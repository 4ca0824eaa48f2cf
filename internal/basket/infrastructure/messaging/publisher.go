// Package messaging 领域事件发布
package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"github.com/wyfcoding/basketfund/pkg/mq"
)

// KafkaEventPublisher 将领域事件以 JSON 写入 Kafka，消息 key 为基金 ID，同一基金的事件落在同一分区
type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(producer *mq.KafkaProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// Publish 发布事件
func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	headers := map[string]string{
		"event_name":  event.EventName(),
		"occurred_at": event.OccurredAt().UTC().Format(time.RFC3339Nano),
	}
	if traceID := contextx.TraceID(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}
	return p.producer.SendMessage(ctx, p.topic, event.AggregateID(), event, headers)
}

// LogEventPublisher 未配置 Kafka 时仅记录事件
type LogEventPublisher struct {
	logger *slog.Logger
}

// NewLogEventPublisher 创建日志事件发布器
func NewLogEventPublisher(logger *slog.Logger) *LogEventPublisher {
	return &LogEventPublisher{logger: logger.With("module", "event_publisher")}
}

func (p *LogEventPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	p.logger.InfoContext(ctx, "domain event", "event", event.EventName(), "fund_id", event.AggregateID())
	return nil
}
