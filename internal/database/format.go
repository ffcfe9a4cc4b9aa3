package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// resultValueLimit bounds each rendered result value.
	resultValueLimit = 300
	// sampleValueLimit bounds each rendered sample-row value.
	sampleValueLimit = 100
)

func (d *DB) createStatement(ctx context.Context, table string) (string, error) {
	if d.dialect == "sqlite" {
		var ddl string
		err := d.sql.QueryRowContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
		if err != nil {
			return "", fmt.Errorf("describe %s: %w", table, err)
		}
		return ddl, nil
	}

	query := `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = current_schema()
		ORDER BY ordinal_position`
	if d.dialect == "mysql" {
		query = `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE
			FROM information_schema.COLUMNS
			WHERE TABLE_NAME = ? AND TABLE_SCHEMA = DATABASE()
			ORDER BY ORDINAL_POSITION`
	}

	rows, err := d.sql.QueryContext(ctx, query, table)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return "", err
		}
		col := "\t" + name + " " + strings.ToUpper(typ)
		if strings.EqualFold(nullable, "NO") {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", table, strings.Join(cols, ",\n")), nil
}

func (d *DB) sample(ctx context.Context, table string) (string, error) {
	rows, err := d.sql.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", d.quote(table), d.sampleRows))
	if err != nil {
		return "", fmt.Errorf("sample %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d rows from %s table:\n", d.sampleRows, table)
	b.WriteString(strings.Join(cols, "\t"))
	b.WriteString("\n")
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = truncate(display(v), sampleValueLimit)
		}
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteString("\n")
	}
	return b.String(), rows.Err()
}

// FormatRows renders result rows as a bracketed list of tuples, e.g.
// [(1, 'Taiwan'), (2, 'Japan')]. String values are quoted and long values
// are truncated on a word boundary.
func FormatRows(rows [][]any) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		vals := make([]string, len(row))
		for j, v := range row {
			vals[j] = literal(v)
		}
		parts[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return quoteString(truncate(x, resultValueLimit))
	case []byte:
		return quoteString(truncate(string(x), resultValueLimit))
	case time.Time:
		return quoteString(x.Format(time.DateTime))
	default:
		return display(v)
	}
}

func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case time.Time:
		return x.Format(time.DateTime)
	default:
		return fmt.Sprint(x)
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// truncate cuts s to at most limit runes, backing off to the last space and
// appending an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := string(r[:limit-3])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
