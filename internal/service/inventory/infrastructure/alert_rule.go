package infrastructure

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"stockledger/internal/service/inventory/domain"
)

// CELAlertRule 用 CEL 表达式判断库存是否过低。
// 可用变量：sku, warehouse, on_hand, reserved, available, low_stock_threshold。
type CELAlertRule struct {
	expr    string
	program cel.Program
}

// NewCELAlertRule 编译表达式，表达式必须返回 bool
func NewCELAlertRule(expr string) (*CELAlertRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("sku", cel.StringType),
		cel.Variable("warehouse", cel.StringType),
		cel.Variable("on_hand", cel.IntType),
		cel.Variable("reserved", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("low_stock_threshold", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile alert expression %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("alert expression %q must return bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build alert program %q", expr)
	}
	return &CELAlertRule{expr: expr, program: program}, nil
}

func (r *CELAlertRule) Evaluate(stock *domain.StockRecord) (bool, error) {
	out, _, err := r.program.Eval(map[string]interface{}{
		"sku":                 stock.SKU,
		"warehouse":           stock.Warehouse,
		"on_hand":             int64(stock.OnHand),
		"reserved":            int64(stock.Reserved),
		"available":           int64(stock.Available()),
		"low_stock_threshold": int64(stock.LowStockThreshold),
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate alert expression %q", r.expr)
	}
	hit, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("alert expression %q returned %T", r.expr, out.Value())
	}
	return hit, nil
}

func (r *CELAlertRule) String() string {
	return r.expr
}
