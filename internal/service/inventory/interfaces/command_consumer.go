package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/mq"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain"
)

const (
	commandReserve = "reserve"
	commandRelease = "release"
	commandShip    = "ship"

	commandMaxAttempts = 5
	commandBackoff     = 200 * time.Millisecond
)

// InventoryCommand 是通过 Kafka 投递的库存指令
type InventoryCommand struct {
	Op             string `json:"op"`
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       *int   `json:"quantity"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
	ReservationID  string `json:"reservation_id"`
	TTLSeconds     int    `json:"ttl_seconds"`
}

func (c InventoryCommand) qty() int {
	if c.Quantity == nil {
		return 0
	}
	return *c.Quantity
}

// messageReader 是 kafka.Reader 中消费者用到的部分
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CommandConsumerAdapter 是一个驱动适配器，它监听 Kafka 指令并调用库存引擎。
// 投递语义是至少一次，重复的指令依靠幂等键保证安全。
type CommandConsumerAdapter struct {
	reader  messageReader
	appSvc  *application.ReservationService
	topic   string
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

func NewCommandConsumerAdapter(reader *kafka.Reader, appSvc *application.ReservationService) *CommandConsumerAdapter {
	return newCommandConsumer(reader, reader.Config().Topic, appSvc)
}

func newCommandConsumer(reader messageReader, topic string, appSvc *application.ReservationService) *CommandConsumerAdapter {
	return &CommandConsumerAdapter{reader: reader, topic: topic, appSvc: appSvc}
}

// Run 消费指令直到 ctx 结束，适合作为后台任务运行
func (a *CommandConsumerAdapter) Run(ctx context.Context) error {
	a.wg.Add(1)
	defer a.wg.Done()
	logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("inventory command consumer started")

	for {
		if a.isStopped() {
			return nil
		}
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交 offset
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || a.isStopped() {
				logger.Ctx(ctx).Info().Msg("inventory command consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		a.processMessage(ctx, msg)

		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// Stop 停止消费并等待 Run 退出
func (a *CommandConsumerAdapter) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	_ = a.reader.Close()
	a.wg.Wait()
}

func (a *CommandConsumerAdapter) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// processMessage 解码并执行一条指令。
// 业务错误和格式错误不重试；基础设施错误按退避重试，超过次数后记录并放弃。
func (a *CommandConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	log := logger.Ctx(ctx).With().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	var cmd InventoryCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal inventory command, skipping")
		return
	}

	for attempt := 1; ; attempt++ {
		err := a.handleCommand(ctx, cmd)
		switch {
		case err == nil:
			return
		case domain.IsDomainError(err):
			log.Warn().Err(err).Str("op", cmd.Op).Str("kind", string(domain.Kind(err))).Msg("inventory command rejected")
			return
		case attempt >= commandMaxAttempts || ctx.Err() != nil:
			log.Error().Err(err).Str("op", cmd.Op).Int("attempts", attempt).Msg("inventory command failed, giving up")
			return
		}
		log.Warn().Err(err).Str("op", cmd.Op).Int("attempt", attempt).Msg("inventory command failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * commandBackoff):
		}
	}
}

func (a *CommandConsumerAdapter) handleCommand(ctx context.Context, cmd InventoryCommand) error {
	switch cmd.Op {
	case commandReserve:
		_, err := a.appSvc.Reserve(ctx, application.ReserveRequest{
			SKU:            cmd.SKU,
			Warehouse:      cmd.Warehouse,
			Qty:            cmd.qty(),
			Reference:      cmd.Reference,
			IdempotencyKey: cmd.IdempotencyKey,
			TTLSeconds:     cmd.TTLSeconds,
		})
		return err
	case commandRelease:
		req, err := domain.NewReleaseRequest(cmd.ReservationID, cmd.IdempotencyKey, cmd.SKU, cmd.Warehouse, cmd.Quantity, cmd.Reference)
		if err != nil {
			return err
		}
		_, err = a.appSvc.Release(ctx, req)
		return err
	case commandShip:
		// ship 不按幂等键去重，重复投递的 ship 会再出库一次；
		// 带 reservation_id 的 ship 在重复投递时因预占已释放而返回 ErrInvalidState。
		_, err := a.appSvc.Ship(ctx, application.ShipRequest{
			SKU:            cmd.SKU,
			Warehouse:      cmd.Warehouse,
			Qty:            cmd.qty(),
			Reference:      cmd.Reference,
			IdempotencyKey: cmd.IdempotencyKey,
			ReservationID:  cmd.ReservationID,
		})
		return err
	default:
		return errors.Wrapf(domain.ErrInvalidArgument, "unknown command op %q", cmd.Op)
	}
}
