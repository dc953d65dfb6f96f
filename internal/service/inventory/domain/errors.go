// internal/service/inventory/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 领域错误分类。基础设施层和应用层通过包装这些哨兵错误附加上下文，
// 接口层通过 errors.Is 将它们映射为传输层的响应。
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// InsufficientStockError 携带当前可用数量，方便客户端展示
type InsufficientStockError struct {
	SKU       string
	Warehouse string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s@%s: requested %d, available %d", e.SKU, e.Warehouse, e.Requested, e.Available)
}

// Is 让 errors.Is(err, ErrInsufficientStock) 成立
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ErrorKind 是错误的粗粒度分类
type ErrorKind string

const (
	KindNone              ErrorKind = "ok"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindInvalidState      ErrorKind = "invalid_state"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindInternal          ErrorKind = "internal"
)

// Kind 返回 err 对应的分类
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// IsDomainError 判断 err 是否属于业务错误（不需要重试）
func IsDomainError(err error) bool {
	k := Kind(err)
	return k != KindNone && k != KindInternal
}
