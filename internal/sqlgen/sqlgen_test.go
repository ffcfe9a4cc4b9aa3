package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/database"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/prompt"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/provider"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/seed"
	"go.uber.org/zap"
)

// scriptedModel returns its replies in order and records every prompt.
type scriptedModel struct {
	replies []string
	errs    []error
	prompts []string
	stops   [][]string
}

func (m *scriptedModel) Complete(_ context.Context, p string, stop []string) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, p)
	m.stops = append(m.stops, stop)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

// fakeDB fails the first failures executions.
type fakeDB struct {
	failures   int
	errText    func(stmt string) string
	statements []string
	infoCalls  int
}

func (d *fakeDB) TableInfo(context.Context, ...string) (string, error) {
	d.infoCalls++
	return "CREATE TABLE members (member_id INTEGER)", nil
}

func (d *fakeDB) Dialect() string { return "sqlite" }

func (d *fakeDB) Run(_ context.Context, stmt string) (string, error) {
	d.statements = append(d.statements, stmt)
	if len(d.statements) <= d.failures {
		msg := "no such column: nope"
		if d.errText != nil {
			msg = d.errText(stmt)
		}
		return "", errors.New(msg)
	}
	return "[(100,)]", nil
}

func testTemplate(t *testing.T) *prompt.SQLTemplate {
	t.Helper()
	tmpl, err := prompt.ParseSQL([]byte("instruction: \"{dialect}|{table_info}|{input}\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	return tmpl
}

// instructionOf strips the dialect and table info from a rendered prompt.
func instructionOf(p string) string {
	parts := strings.SplitN(p, "|", 3)
	return parts[2]
}

func TestSuccessOnFirstAttempt(t *testing.T) {
	model := &scriptedModel{replies: []string{"SELECT COUNT(*) FROM members"}}
	db := &fakeDB{}
	g := New(model, db, testTemplate(t), 3, zap.NewNop())

	out := g.Run(context.Background(), "how many members?")
	if !out.Success || out.Message != "Query executed successfully. Result: [(100,)]" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(db.statements) != 1 || len(model.prompts) != 1 || len(out.Attempts) != 1 {
		t.Errorf("executions=%d generations=%d", len(db.statements), len(model.prompts))
	}
	if instructionOf(model.prompts[0]) != "how many members?" {
		t.Errorf("first instruction = %q", instructionOf(model.prompts[0]))
	}
}

func TestGenerationStopsAtResultMarker(t *testing.T) {
	var stops []string
	model := provider.CompleterFunc(func(_ context.Context, _ string, stop []string) (string, error) {
		stops = stop
		return provider.TruncateAtStop("SELECT COUNT(*) FROM members\nSQLResult: [(7,)]\nAnswer: 7", stop), nil
	})
	db := &fakeDB{}
	g := New(model, db, testTemplate(t), 3, zap.NewNop())

	out := g.Run(context.Background(), "how many members?")
	if !out.Success || len(out.Attempts) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(stops) != 1 || stops[0] != "\nSQLResult:" {
		t.Errorf("stop = %q", stops)
	}
	if db.statements[0] != "SELECT COUNT(*) FROM members" {
		t.Errorf("executed %q", db.statements[0])
	}
}

func TestMarkedStatementCutAtStop(t *testing.T) {
	model := provider.CompleterFunc(func(_ context.Context, _ string, stop []string) (string, error) {
		return provider.TruncateAtStop("SQLQuery: SELECT name FROM items\nSQLResult: [('pen',)]", stop), nil
	})
	db := &fakeDB{}
	out := New(model, db, testTemplate(t), 3, zap.NewNop()).Run(context.Background(), "item names")
	if !out.Success || len(db.statements) != 1 || db.statements[0] != "SELECT name FROM items" {
		t.Fatalf("executed %q, outcome %+v", db.statements, out)
	}
}

func TestSuccessAfterCorrections(t *testing.T) {
	for k := 2; k <= 3; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			model := &scriptedModel{replies: []string{"SELECT a1", "SELECT a2", "SELECT a3"}}
			db := &fakeDB{
				failures: k - 1,
				errText:  func(stmt string) string { return "error for " + stmt },
			}
			g := New(model, db, testTemplate(t), 3, zap.NewNop())

			out := g.Run(context.Background(), "total revenue?")
			if !out.Success {
				t.Fatalf("want success, got %q", out.Message)
			}
			if len(model.prompts) != k || len(db.statements) != k {
				t.Fatalf("generations=%d executions=%d, want %d", len(model.prompts), len(db.statements), k)
			}
			for i := 1; i < k; i++ {
				instr := instructionOf(model.prompts[i])
				prev := db.statements[i-1]
				if !strings.Contains(instr, prev) || !strings.Contains(instr, "error for "+prev) {
					t.Errorf("instruction %d does not carry attempt %d:\n%s", i+1, i, instr)
				}
				if !strings.Contains(instr, "'total revenue?'") {
					t.Errorf("instruction %d lost the question", i+1)
				}
			}
			if db.infoCalls != 1 {
				t.Errorf("table info fetched %d times", db.infoCalls)
			}
		})
	}
}

func TestExhaustion(t *testing.T) {
	model := &scriptedModel{replies: []string{"SELECT nope FROM members"}}
	db := &fakeDB{failures: 100}
	g := New(model, db, testTemplate(t), 3, zap.NewNop())

	out := g.Run(context.Background(), "q")
	if out.Success {
		t.Fatal("want failure")
	}
	if len(model.prompts) != 3 || len(db.statements) != 3 {
		t.Fatalf("generations=%d executions=%d, want 3", len(model.prompts), len(db.statements))
	}
	if !strings.HasPrefix(out.Message, "Failed to execute SQL after 3 attempts. Last error: no such column: nope") {
		t.Errorf("message = %q", out.Message)
	}
	if !strings.Contains(out.Message, "SELECT nope FROM members") {
		t.Errorf("message should carry the last statement: %q", out.Message)
	}

	seen := map[string]bool{}
	for _, p := range model.prompts {
		instr := instructionOf(p)
		if seen[instr] {
			t.Errorf("instruction repeated: %q", instr)
		}
		seen[instr] = true
	}
	for i, a := range out.Attempts {
		if a.Index != i {
			t.Errorf("attempt %d has index %d", i, a.Index)
		}
	}
}

func TestModelErrorConsumesAttempt(t *testing.T) {
	model := &scriptedModel{
		replies: []string{"", "SELECT 1"},
		errs:    []error{errors.New("connection reset")},
	}
	db := &fakeDB{}
	g := New(model, db, testTemplate(t), 2, zap.NewNop())

	out := g.Run(context.Background(), "q")
	if !out.Success || len(out.Attempts) != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(db.statements) != 1 {
		t.Errorf("executions = %d, want 1", len(db.statements))
	}
	if !strings.Contains(instructionOf(model.prompts[1]), "connection reset") {
		t.Errorf("corrective instruction should carry the model error")
	}

	model = &scriptedModel{replies: []string{""}, errs: []error{errors.New("down"), errors.New("down")}}
	out = New(model, &fakeDB{}, testTemplate(t), 2, zap.NewNop()).Run(context.Background(), "q")
	if out.Success || !strings.Contains(out.Message, "Failed to execute SQL after 2 attempts") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestDefaultRetries(t *testing.T) {
	g := New(&scriptedModel{replies: []string{"x"}}, &fakeDB{}, testTemplate(t), 0, zap.NewNop())
	if g.MaxRetries() != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d", g.MaxRetries())
	}
}

func TestExtractStatement(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  SELECT 1  ", "SELECT 1"},
		{"fenced", "```sql\nSELECT name FROM items\n```", "SELECT name FROM items"},
		{"markers", "Question: q\nSQLQuery: SELECT 2\nSQLResult: [(2,)]\nAnswer: 2", "SELECT 2"},
		{
			"fenced with markers",
			"SQLQuery: ```sql\nSELECT \"country\" FROM members LIMIT 5\n```\nSQLResult: [('Taiwan',)]",
			"SELECT \"country\" FROM members LIMIT 5",
		},
		{"query marker only", "SQLQuery: SELECT 3", "SQLQuery: SELECT 3"},
		{"multiline", "SQLQuery: SELECT a\nFROM b\nSQLResult:", "SELECT a\nFROM b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractStatement(tt.in); got != tt.want {
				t.Errorf("ExtractStatement = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgainstSeededSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", SampleRows: 3}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := seed.Load(ctx, db.SQL(), db.Dialect(), seed.Generate(seed.DefaultOptions()), zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	model := &scriptedModel{replies: []string{
		"SQLQuery: SELECT COUNT(nickname) FROM members\nSQLResult:",
		"SQLQuery: SELECT COUNT(*) FROM members\nSQLResult:",
	}}
	out := New(model, db, testTemplate(t), 3, zap.NewNop()).Run(ctx, "how many members are there?")
	if !out.Success {
		t.Fatalf("want success, got %q", out.Message)
	}
	if out.Message != "Query executed successfully. Result: [(100)]" {
		t.Errorf("message = %q", out.Message)
	}
	if out.Attempts[0].Err == nil || !strings.Contains(instructionOf(model.prompts[1]), "nickname") {
		t.Errorf("first attempt should fail on the unknown column")
	}
	if !strings.Contains(model.prompts[0], "CREATE TABLE") {
		t.Errorf("prompt should carry the table info")
	}
}
