package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"stockledger/internal/service/inventory/domain"
)

// GormStore 用一个 GORM 事务承载一次库存操作的全部读写
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithinTx 在事务中执行 fn，fn 返回错误时回滚
func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, reposFor(tx))
	})
}

// Repos 返回不在事务中的仓储，用于只读查询
func (s *GormStore) Repos() domain.Repositories {
	return reposFor(s.db)
}

// AutoMigrate 创建或更新表结构
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return errors.Wrap(s.db.WithContext(ctx).AutoMigrate(AllModels()...), "auto migrate inventory tables")
}

func reposFor(db *gorm.DB) domain.Repositories {
	return domain.Repositories{
		Stock:        NewGormStockRepository(db),
		Reservations: NewGormReservationRepository(db),
		Movements:    NewGormMovementLog(db),
	}
}
