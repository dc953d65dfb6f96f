package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain"
)

type fakeReader struct {
	msgs      chan kafka.Message
	closed    chan struct{}
	closeOnce sync.Once
	fetching  chan struct{}
	fetchOnce sync.Once

	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{
		msgs:     make(chan kafka.Message, len(msgs)),
		closed:   make(chan struct{}),
		fetching: make(chan struct{}),
	}
	for i, m := range msgs {
		m.Offset = int64(i)
		m.Topic = "inventory-commands"
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.fetchOnce.Do(func() { close(r.fetching) })
	select {
	case m := <-r.msgs:
		return m, nil
	case <-r.closed:
		return kafka.Message{}, errors.New("reader closed")
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func commandMessage(t *testing.T, cmd InventoryCommand) kafka.Message {
	t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(cmd.SKU), Value: b}
}

func TestCommandConsumer_ProcessesAndCommitsEveryMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: "X", Warehouse: "W", OnHand: 10})
	require.NoError(t, err)

	qty := func(n int) *int { return &n }
	reader := newFakeReader(
		commandMessage(t, InventoryCommand{Op: commandReserve, SKU: "X", Warehouse: "W", Quantity: qty(4), IdempotencyKey: "k1"}),
		commandMessage(t, InventoryCommand{Op: commandReserve, SKU: "X", Warehouse: "W", Quantity: qty(4), IdempotencyKey: "k1"}),
		kafka.Message{Value: []byte("{broken")},
		commandMessage(t, InventoryCommand{Op: "restock", SKU: "X", Warehouse: "W", Quantity: qty(1)}),
		commandMessage(t, InventoryCommand{Op: commandReserve, SKU: "X", Warehouse: "W", Quantity: qty(100)}),
		commandMessage(t, InventoryCommand{Op: commandShip, SKU: "X", Warehouse: "W", Quantity: qty(1)}),
	)
	consumer := newCommandConsumer(reader, "inventory-commands", svc)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 6 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	records, err := svc.GetStock(ctx, "X")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 9, records[0].OnHand)
	assert.Equal(t, 3, records[0].Reserved)
}

func TestCommandConsumer_StopEndsRun(t *testing.T) {
	svc, _ := newTestService(t)
	reader := newFakeReader()
	consumer := newCommandConsumer(reader, "inventory-commands", svc)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(context.Background()) }()

	select {
	case <-reader.fetching:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never fetched")
	}
	consumer.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestCommandConsumer_HandleCommand(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: "X", Warehouse: "W", OnHand: 10, Reserved: 2})
	require.NoError(t, err)
	consumer := newCommandConsumer(newFakeReader(), "inventory-commands", svc)

	qty := 2
	cases := []struct {
		name string
		cmd  InventoryCommand
		kind domain.ErrorKind
	}{
		{"release tuple", InventoryCommand{Op: commandRelease, SKU: "X", Warehouse: "W", Quantity: &qty}, domain.KindNone},
		{"release without target", InventoryCommand{Op: commandRelease}, domain.KindInvalidArgument},
		{"release unknown id", InventoryCommand{Op: commandRelease, ReservationID: "missing"}, domain.KindNotFound},
		{"ship nothing reserved", InventoryCommand{Op: commandShip, SKU: "X", Warehouse: "W", Quantity: &qty}, domain.KindInvalidState},
		{"reserve missing quantity", InventoryCommand{Op: commandReserve, SKU: "X", Warehouse: "W"}, domain.KindInvalidArgument},
		{"unknown op", InventoryCommand{Op: "adjust"}, domain.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, domain.Kind(consumer.handleCommand(ctx, tc.cmd)))
		})
	}
}

func TestCommandConsumer_RedeliveredShip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: "X", Warehouse: "W", OnHand: 10, Reserved: 2})
	require.NoError(t, err)
	consumer := newCommandConsumer(newFakeReader(), "inventory-commands", svc)

	qty := func(n int) *int { return &n }
	plain := InventoryCommand{Op: commandShip, SKU: "X", Warehouse: "W", Quantity: qty(1), IdempotencyKey: "ship-1"}
	require.NoError(t, consumer.handleCommand(ctx, plain))
	require.NoError(t, consumer.handleCommand(ctx, plain))

	records, err := svc.GetStock(ctx, "X")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 8, records[0].OnHand, "a plain ship is applied once per delivery")
	assert.Equal(t, 0, records[0].Reserved)

	res, err := svc.Reserve(ctx, application.ReserveRequest{SKU: "X", Warehouse: "W", Qty: 3})
	require.NoError(t, err)
	linked := InventoryCommand{Op: commandShip, SKU: "X", Warehouse: "W", Quantity: qty(2), ReservationID: res.ID}
	require.NoError(t, consumer.handleCommand(ctx, linked))
	err = consumer.handleCommand(ctx, linked)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	records, err = svc.GetStock(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 6, records[0].OnHand)
	assert.Equal(t, 0, records[0].Reserved)
}
