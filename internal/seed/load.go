package seed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type columnDef struct {
	name string
	typ  string // integer | string | float | datetime | boolean
	pk   bool
	ref  string
}

type tableDef struct {
	name    string
	columns []columnDef
	// composite primary key, if any
	key []string
}

var tableDefs = []tableDef{
	{name: "members", columns: []columnDef{
		{name: "member_id", typ: "integer", pk: true},
		{name: "member_name", typ: "string"},
		{name: "email", typ: "string"},
		{name: "join_date", typ: "datetime"},
		{name: "member_level", typ: "string"},
		{name: "referrer_id", typ: "integer", ref: "members(member_id)"},
		{name: "gender", typ: "string"},
		{name: "birth_year", typ: "integer"},
		{name: "country", typ: "string"},
		{name: "is_active", typ: "boolean"},
	}},
	{name: "items", columns: []columnDef{
		{name: "item_id", typ: "integer", pk: true},
		{name: "item_name", typ: "string"},
		{name: "category", typ: "string"},
		{name: "subcategory", typ: "string"},
		{name: "brand", typ: "string"},
		{name: "price", typ: "float"},
		{name: "stock_quantity", typ: "integer"},
		{name: "rating", typ: "float"},
		{name: "is_active", typ: "boolean"},
		{name: "created_at", typ: "datetime"},
	}},
	{name: "campaigns", columns: []columnDef{
		{name: "campaign_id", typ: "integer", pk: true},
		{name: "campaign_name", typ: "string"},
		{name: "start_date", typ: "datetime"},
		{name: "end_date", typ: "datetime"},
		{name: "discount_rate", typ: "float"},
		{name: "channel", typ: "string"},
		{name: "description", typ: "string"},
	}},
	{name: "transactions", columns: []columnDef{
		{name: "transaction_id", typ: "integer", pk: true},
		{name: "member_id", typ: "integer", ref: "members(member_id)"},
		{name: "campaign_id", typ: "integer", ref: "campaigns(campaign_id)"},
		{name: "discount_rate", typ: "float"},
		{name: "final_price", typ: "float"},
		{name: "payment_method", typ: "string"},
		{name: "transaction_time", typ: "datetime"},
	}},
	{name: "transaction_items", key: []string{"transaction_id", "item_id"}, columns: []columnDef{
		{name: "transaction_id", typ: "integer", ref: "transactions(transaction_id)"},
		{name: "item_id", typ: "integer", ref: "items(item_id)"},
		{name: "quantity", typ: "integer"},
		{name: "unit_price", typ: "float"},
	}},
}

var typeNames = map[string]map[string]string{
	"sqlite": {
		"integer": "INTEGER", "string": "VARCHAR", "float": "FLOAT",
		"datetime": "DATETIME", "boolean": "BOOLEAN",
	},
	"postgresql": {
		"integer": "INTEGER", "string": "VARCHAR", "float": "DOUBLE PRECISION",
		"datetime": "TIMESTAMP", "boolean": "BOOLEAN",
	},
	"mysql": {
		"integer": "INTEGER", "string": "VARCHAR(255)", "float": "DOUBLE",
		"datetime": "DATETIME", "boolean": "BOOLEAN",
	},
}

// TableNames lists the fixture tables in dependency order.
func TableNames() []string {
	names := make([]string, len(tableDefs))
	for i, t := range tableDefs {
		names[i] = t.name
	}
	return names
}

// DDL returns CREATE TABLE statements for the dialect in dependency order.
func DDL(dialect string) ([]string, error) {
	types, ok := typeNames[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	stmts := make([]string, 0, len(tableDefs))
	for _, t := range tableDefs {
		var lines []string
		var fks []string
		for _, c := range t.columns {
			line := "\t" + c.name + " " + types[c.typ]
			if c.pk {
				line += " NOT NULL"
			}
			lines = append(lines, line)
			if c.ref != "" {
				fks = append(fks, fmt.Sprintf("\tFOREIGN KEY(%s) REFERENCES %s", c.name, c.ref))
			}
		}
		key := t.key
		if len(key) == 0 {
			for _, c := range t.columns {
				if c.pk {
					key = append(key, c.name)
				}
			}
		}
		lines = append(lines, fmt.Sprintf("\tPRIMARY KEY (%s)", strings.Join(key, ", ")))
		lines = append(lines, fks...)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n%s\n)", t.name, strings.Join(lines, ",\n")))
	}
	return stmts, nil
}

// Load creates the fixture tables and inserts the dataset in one transaction.
func Load(ctx context.Context, db *sql.DB, dialect string, ds *Dataset, logger *zap.Logger) error {
	stmts, err := DDL(dialect)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	ins := func(table string, n int, row func(i int) []any) error {
		cols := columnsOf(table)
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders(dialect, len(cols)))
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare insert %s: %w", table, err)
		}
		defer func() { _ = stmt.Close() }()
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
				return fmt.Errorf("insert %s: %w", table, err)
			}
		}
		logger.Info("seeded table", zap.String("table", table), zap.Int("rows", n))
		return nil
	}

	if err := ins("members", len(ds.Members), func(i int) []any {
		m := ds.Members[i]
		return []any{m.ID, m.Name, m.Email, m.JoinDate, m.Level, nullable(m.ReferrerID), m.Gender, m.BirthYear, m.Country, m.IsActive}
	}); err != nil {
		return err
	}
	if err := ins("items", len(ds.Items), func(i int) []any {
		it := ds.Items[i]
		return []any{it.ID, it.Name, it.Category, it.Subcategory, it.Brand, it.Price, it.StockQuantity, it.Rating, it.IsActive, it.CreatedAt}
	}); err != nil {
		return err
	}
	if err := ins("campaigns", len(ds.Campaigns), func(i int) []any {
		c := ds.Campaigns[i]
		return []any{c.ID, c.Name, c.StartDate, c.EndDate, c.DiscountRate, c.Channel, c.Description}
	}); err != nil {
		return err
	}
	if err := ins("transactions", len(ds.Transactions), func(i int) []any {
		t := ds.Transactions[i]
		return []any{t.ID, t.MemberID, nullable(t.CampaignID), t.DiscountRate, t.FinalPrice, t.PaymentMethod, t.Time}
	}); err != nil {
		return err
	}
	if err := ins("transaction_items", len(ds.TransactionItems), func(i int) []any {
		l := ds.TransactionItems[i]
		return []any{l.TransactionID, l.ItemID, l.Quantity, l.UnitPrice}
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}

func columnsOf(table string) []string {
	for _, t := range tableDefs {
		if t.name == table {
			cols := make([]string, len(t.columns))
			for i, c := range t.columns {
				cols[i] = c.name
			}
			return cols
		}
	}
	return nil
}

func placeholders(dialect string, n int) string {
	ph := make([]string, n)
	for i := range ph {
		if dialect == "postgresql" {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ", ")
}

func nullable(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
