//go:build integration

// 需要真实 MySQL：INVENTORY_TEST_MYSQL_DSN=user:pass@tcp(127.0.0.1:3306)/stockledger_test go test -tags integration ./...
package application

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/metrics"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/infrastructure"
)

func newMySQLStore(t *testing.T) *infrastructure.GormStore {
	t.Helper()
	dsn := os.Getenv("INVENTORY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("INVENTORY_TEST_MYSQL_DSN not set")
	}
	db, err := infrastructure.OpenMySQL(bootstrap.MySQLConfig{DSN: dsn, MaxOpenConns: 16, MaxIdleConns: 16, LockWaitTimeout: 10})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := infrastructure.NewGormStore(db)
	require.NoError(t, store.AutoMigrate(context.Background()))
	return store
}

func uniqueSKU() string { return "it-" + uuid.NewString()[:8] }

func TestMySQL_StockRowLockBlocksSecondWriter(t *testing.T) {
	ctx := context.Background()
	store := newMySQLStore(t)
	sku := uniqueSKU()
	_, err := store.Repos().Stock.Upsert(ctx, &domain.StockRecord{SKU: sku, Warehouse: "W", OnHand: 10, UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)

	const hold = 300 * time.Millisecond
	locked := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, sku, "W")
			if err != nil {
				return err
			}
			close(locked)
			time.Sleep(hold)
			stock.Reserved++
			return repos.Stock.Save(ctx, stock)
		})
		assert.NoError(t, err)
	}()

	<-locked
	start := time.Now()
	var seen int
	err = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, sku, "W")
		if err != nil {
			return err
		}
		seen = stock.Reserved
		return nil
	})
	require.NoError(t, err)
	wg.Wait()

	// 第二个事务必须等第一个提交后才能拿到锁，并读到它写入的值
	assert.Equal(t, 1, seen)
	assert.GreaterOrEqual(t, time.Since(start), hold/2)
}

func TestMySQL_ConcurrentReservesNeverOvercommit(t *testing.T) {
	ctx := context.Background()
	store := newMySQLStore(t)
	svc := NewReservationService(store,
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithRetry(5, infrastructure.IsRetryable),
	)
	sku := uniqueSKU()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: sku, Warehouse: "W", OnHand: 20})
	require.NoError(t, err)

	const callers = 12
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		unexpected   []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, ReserveRequest{SKU: sku, Warehouse: "W", Qty: 3})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unexpected)
	assert.Equal(t, 6, succeeded)
	assert.Equal(t, callers-6, insufficient)

	records, err := svc.GetStock(ctx, sku)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 18, records[0].Reserved)
	assert.NoError(t, records[0].CheckInvariant())
}
