package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"stockledger/internal/pkg/httpclient"
	"stockledger/internal/pkg/metrics"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/infrastructure"
	"stockledger/internal/service/inventory/interfaces"
)

func newTestClient(t *testing.T) (*InventoryClient, *application.ReservationService) {
	t.Helper()
	db, err := infrastructure.OpenSQLite("")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := infrastructure.NewGormStore(db)
	require.NoError(t, store.AutoMigrate(context.Background()))

	reg := prometheus.NewRegistry()
	svc := application.NewReservationService(store, application.WithMetrics(metrics.New(reg)))
	mux := http.NewServeMux()
	interfaces.NewInventoryHandler(svc, reg).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewInventoryClient(srv.URL+"/", httpclient.NewClient(otel.Tracer("test"))), svc
}

func TestInventoryClient_RoundTrip(t *testing.T) {
	c, svc := newTestClient(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: "A1", Warehouse: "W1", OnHand: 10})
	require.NoError(t, err)

	res, err := c.Reserve(ctx, ReserveInput{SKU: "A1", Warehouse: "W1", Quantity: 4, IdempotencyKey: "k-1"})
	require.NoError(t, err)
	again, err := c.Reserve(ctx, ReserveInput{SKU: "A1", Warehouse: "W1", Quantity: 4, IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.Equal(t, res.ID, again.ID)

	stock, err := c.GetStock(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, stock, 1)
	assert.Equal(t, 4, stock[0].Reserved)

	shipped, err := c.Ship(ctx, ShipInput{SKU: "A1", Warehouse: "W1", Quantity: 3, ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, 7, shipped.OnHand)
	assert.Equal(t, 0, shipped.Reserved)

	released, err := c.Release(ctx, domain.ReleaseByID{ReservationID: res.ID})
	require.NoError(t, err)
	assert.True(t, released.Released)

	n, err := c.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInventoryClient_MapsErrors(t *testing.T) {
	c, svc := newTestClient(t)
	ctx := context.Background()
	_, err := svc.Provision(ctx, &domain.StockRecord{SKU: "A1", Warehouse: "W1", OnHand: 10, Reserved: 8})
	require.NoError(t, err)

	_, err = c.Reserve(ctx, ReserveInput{SKU: "A1", Warehouse: "W1", Quantity: 3})
	var insufficient *domain.InsufficientStockError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)

	_, err = c.Ship(ctx, ShipInput{SKU: "A1", Warehouse: "W1", Quantity: 9})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = c.Release(ctx, domain.ReleaseByID{ReservationID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.Release(ctx, domain.ReleaseByIdempotencyKey{Key: "unused"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = c.GetStock(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestToDomainErrorPassesThroughOtherStatuses(t *testing.T) {
	err := toDomainError(&httpclient.StatusError{StatusCode: http.StatusInternalServerError, Body: []byte(`{"detail":"internal error"}`)}, 0)
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, domain.KindInternal, domain.Kind(err))

	assert.NoError(t, toDomainError(nil, 0))
}
