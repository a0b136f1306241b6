package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/percystore/smartsales/internal/orders"
)

// Source aggregates sold order lines.
type Source interface {
	Sales(ctx context.Context, q Query) ([]Row, error)
}

// PGSource aggregates straight from order_items.
type PGSource struct{ DB *pgxpool.Pool }

var groupKeys = map[GroupBy]string{
	GroupProduct:  "oi.name_snapshot",
	GroupCustomer: "COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), u.username)",
	GroupCategory: "COALESCE(c.name, 'Sin categoría')",
	GroupMonth:    "to_char(date_trunc('month', o.created_at), 'YYYY-MM')",
}

func soldStatuses() []string {
	return []string{string(orders.StatusPaid), string(orders.StatusShipped), string(orders.StatusDelivered)}
}

func (s *PGSource) Sales(ctx context.Context, q Query) ([]Row, error) {
	key, ok := groupKeys[q.GroupBy]
	if !ok {
		return nil, fmt.Errorf("report: unknown grouping %q", q.GroupBy)
	}
	args := []any{soldStatuses(), string(orders.TxValid)}
	where := []string{"o.status = ANY($1)", "o.transaction_status = $2"}
	add := func(cond string, v any) string {
		args = append(args, v)
		return fmt.Sprintf(cond, len(args))
	}
	if q.From != nil {
		where = append(where, add("o.created_at >= $%d", *q.From))
	}
	if q.To != nil {
		where = append(where, add("o.created_at < $%d", *q.To))
	}
	var scope []string
	if len(q.CategoryIDs) > 0 {
		scope = append(scope, add("p.category_id = ANY($%d)", q.CategoryIDs))
	}
	if len(q.CategoryNames) > 0 {
		scope = append(scope, add("c.name = ANY($%d)", q.CategoryNames))
	}
	if len(q.Keywords) > 0 {
		pats := make([]string, len(q.Keywords))
		for i, k := range q.Keywords {
			pats[i] = "%" + k + "%"
		}
		scope = append(scope, add("fold_text(oi.name_snapshot) LIKE ANY($%d)", pats))
	}
	if len(scope) > 0 {
		where = append(where, "("+strings.Join(scope, " OR ")+")")
	}

	order := "SUM(oi.line_total) DESC, 1"
	if q.GroupBy == GroupMonth {
		order = "1"
	}
	sql := `SELECT ` + key + `, SUM(oi.qty), SUM(oi.line_total), COUNT(DISTINCT o.id), MIN(o.created_at), MAX(o.created_at)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN users u ON u.id = o.user_id
		LEFT JOIN products p ON p.id = oi.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY 1 ORDER BY ` + order

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		if err := row.Scan(&r.Key, &r.Quantity, &r.Total, &r.Orders, &r.FirstPurchase, &r.LastPurchase); err != nil {
			return r, err
		}
		if q.GroupBy != GroupCustomer {
			r.Orders, r.FirstPurchase, r.LastPurchase = 0, nil, nil
		}
		return r, nil
	})
}
