package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/database"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/embedding"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/retriever"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/seed"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/vectorstore"
	"go.uber.org/zap"
)

type cannedAnswerer struct{ questions []string }

func (c *cannedAnswerer) Answer(_ context.Context, q string) string {
	c.questions = append(c.questions, q)
	return "Query executed successfully. Result: [(42)]"
}

func builtinRegistry(t *testing.T) (*ToolRegistry, *cannedAnswerer) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver:        "sqlite",
		DSN:           ":memory:",
		IncludeTables: seed.TableNames(),
		SampleRows:    3,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := seed.Load(ctx, db.SQL(), db.Dialect(), seed.Generate(seed.DefaultOptions()), zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	r := retriever.New(embedding.NewHashProvider(512), vectorstore.NewMemoryStore(), retriever.Options{}, zap.NewNop())
	if err := r.Index(ctx, schema.NewCatalog().Documents()); err != nil {
		t.Fatal(err)
	}

	ans := &cannedAnswerer{}
	reg := NewToolRegistry()
	if err := RegisterBuiltinTools(reg, db, r, ans); err != nil {
		t.Fatal(err)
	}
	return reg, ans
}

func TestBuiltinToolNames(t *testing.T) {
	reg, _ := builtinRegistry(t)
	got := strings.Join(reg.Names(), ",")
	if got != "list_tables,describe_table,sql_query,schema_lookup" {
		t.Errorf("names = %s", got)
	}
	for _, tool := range reg.Tools() {
		if tool.Description() == "" {
			t.Errorf("%s has no description", tool.Name())
		}
	}
}

func TestListTablesTool(t *testing.T) {
	reg, _ := builtinRegistry(t)
	out, err := reg.Execute(context.Background(), string(ToolListTables), "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if out != "campaigns, items, members, transaction_items, transactions" {
		t.Errorf("out = %q", out)
	}
}

func TestDescribeTableTool(t *testing.T) {
	reg, _ := builtinRegistry(t)
	out, err := reg.Execute(context.Background(), string(ToolDescribeTable), " 'members' , items")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"CREATE TABLE members", "CREATE TABLE items", "3 rows from members table:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	_, err = reg.Execute(context.Background(), string(ToolDescribeTable), "members, nope")
	if err == nil || !strings.Contains(err.Error(), "table_names {'nope'} not found in database") {
		t.Errorf("err = %v", err)
	}
	if _, err := reg.Execute(context.Background(), string(ToolDescribeTable), " , "); err == nil {
		t.Error("want error for empty input")
	}
}

func TestSchemaLookupTool(t *testing.T) {
	reg, _ := builtinRegistry(t)
	out, err := reg.Execute(context.Background(), string(ToolSchemaLookup), "what is final_price?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "transactions.final_price: [Float]") {
		t.Errorf("lookup output:\n%s", out)
	}
	if n := len(strings.Split(out, "\n")); n != 3 {
		t.Errorf("got %d lines, want 3", n)
	}
}

func TestSQLQueryTool(t *testing.T) {
	reg, ans := builtinRegistry(t)
	out, err := reg.Execute(context.Background(), string(ToolSQLQuery), "  how many?  ")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Query executed successfully. Result: [(42)]" || ans.questions[0] != "how many?" {
		t.Errorf("out=%q questions=%q", out, ans.questions)
	}
}
