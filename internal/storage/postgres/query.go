package postgres

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

var comparisonOps = map[domain.Op]string{
	domain.OpEq:  "=",
	domain.OpNeq: "<>",
	domain.OpGt:  ">",
	domain.OpGte: ">=",
	domain.OpLt:  "<",
	domain.OpLte: "<=",
}

// selectQuery собирает параметризованный SELECT. Имена полей берутся только
// из whitelist fields, значения уходят в аргументы.
func selectQuery(table string, columns []string, fields map[string]string, tiebreak string, q domain.Query) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	for i, cond := range q.Where {
		column, ok := fields[cond.Field]
		if !ok {
			return "", nil, fmt.Errorf("postgres %s: unknown filter field %q", table, cond.Field)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		switch cond.Op {
		case domain.OpPrefix, domain.OpContains:
			pattern, ok := sqlValue(cond.Value).(string)
			if !ok {
				return "", nil, fmt.Errorf("postgres %s: %s requires a string value", table, cond.Op)
			}
			pattern = escapeLike(pattern) + "%"
			if cond.Op == domain.OpContains {
				pattern = "%" + pattern
			}
			args = append(args, pattern)
			fmt.Fprintf(&sb, `%s LIKE $%d ESCAPE '\'`, column, len(args))
		default:
			op, ok := comparisonOps[cond.Op]
			if !ok {
				return "", nil, fmt.Errorf("postgres %s: unsupported operator %q", table, cond.Op)
			}
			args = append(args, sqlValue(cond.Value))
			fmt.Fprintf(&sb, "%s %s $%d", column, op, len(args))
		}
	}

	order := make([]string, 0, len(q.Sort)+1)
	for _, key := range q.Sort {
		column, ok := fields[key.Field]
		if !ok {
			return "", nil, fmt.Errorf("postgres %s: unknown sort field %q", table, key.Field)
		}
		direction := "ASC"
		if key.Desc {
			direction = "DESC"
		}
		order = append(order, column+" "+direction)
	}
	if tiebreak != "" {
		order = append(order, tiebreak)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args, nil
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// sqlValue приводит именованные строковые и целые типы (OrderStatus и т.п.)
// к базовым, чтобы драйвер не зависел от конкретного типа.
func sqlValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}
