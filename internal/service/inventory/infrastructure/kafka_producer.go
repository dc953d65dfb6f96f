package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stockledger/internal/pkg/mq"
	"stockledger/internal/service/inventory/domain"
)

// KafkaEventPublisher 把库存事件写入 Kafka，消息 key 为 sku@warehouse，
// 同一库存行的事件落在同一分区，保持顺序。
type KafkaEventPublisher struct {
	movementWriter *kafka.Writer
	alertWriter    *kafka.Writer
}

func NewKafkaEventPublisher(movementWriter, alertWriter *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{movementWriter: movementWriter, alertWriter: alertWriter}
}

func (p *KafkaEventPublisher) PublishMovement(ctx context.Context, event domain.MovementRecorded) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal movement event")
	}
	key := []byte(event.SKU + "@" + event.Warehouse)
	return errors.Wrapf(mq.ProduceMessage(ctx, p.movementWriter, key, eventBytes), "publish movement %s", event.MovementID)
}

func (p *KafkaEventPublisher) PublishLowStock(ctx context.Context, event domain.LowStockDetected) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal low stock event")
	}
	key := []byte(event.SKU + "@" + event.Warehouse)
	return errors.Wrapf(mq.ProduceMessage(ctx, p.alertWriter, key, eventBytes), "publish low stock for %s@%s", event.SKU, event.Warehouse)
}

// Close 关闭两个 writer
func (p *KafkaEventPublisher) Close() error {
	err1 := p.movementWriter.Close()
	err2 := p.alertWriter.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
