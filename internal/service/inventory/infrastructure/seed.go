package infrastructure

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stockledger/internal/service/inventory/domain"
)

var requiredSeedColumns = []string{"sku", "warehouse", "on_hand"}

// ParseSeedCSV 解析库存初始化 CSV。
// 表头必须包含 sku, warehouse, on_hand；reserved, low_stock_threshold, product_id 可选。
func ParseSeedCSV(r io.Reader) ([]*domain.StockRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read seed header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredSeedColumns {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("seed header missing column %q", name)
		}
	}

	var records []*domain.StockRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read seed line %d", line)
		}

		field := func(name string) string {
			if i, ok := cols[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		intField := func(name string) (int, error) {
			v := field(name)
			if v == "" {
				return 0, nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, errors.Wrapf(domain.ErrInvalidArgument, "line %d: %s=%q is not an integer", line, name, v)
			}
			return n, nil
		}

		rec := &domain.StockRecord{
			SKU:       field("sku"),
			Warehouse: field("warehouse"),
			ProductID: field("product_id"),
		}
		if rec.SKU == "" || rec.Warehouse == "" {
			return nil, errors.Wrapf(domain.ErrInvalidArgument, "line %d: sku and warehouse are required", line)
		}
		if rec.OnHand, err = intField("on_hand"); err != nil {
			return nil, err
		}
		if rec.Reserved, err = intField("reserved"); err != nil {
			return nil, err
		}
		if rec.LowStockThreshold, err = intField("low_stock_threshold"); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
