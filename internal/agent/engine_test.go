package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/prompt"
	"go.uber.org/zap"
)

// plannerScript replies in order and records prompts and stop sequences.
type plannerScript struct {
	replies []string
	prompts []string
	stops   [][]string
	delay   time.Duration
}

func (p *plannerScript) Complete(_ context.Context, text string, stop []string) (string, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	i := len(p.prompts)
	p.prompts = append(p.prompts, text)
	p.stops = append(p.stops, stop)
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return p.replies[len(p.replies)-1], nil
}

type failingPlanner struct{}

func (failingPlanner) Complete(context.Context, string, []string) (string, error) {
	return "", errors.New("model offline")
}

func testRegistry(t *testing.T) (*ToolRegistry, *int) {
	t.Helper()
	calls := 0
	reg := NewToolRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(reg.Register(NewTool(string(ToolListTables), listTablesDescription, func(context.Context, string) (string, error) {
		calls++
		return "campaigns, items, members", nil
	})))
	must(reg.Register(NewTool(string(ToolSQLQuery), sqlQueryDescription, func(_ context.Context, q string) (string, error) {
		return "Query executed successfully. Result: [(100)]", nil
	})))
	must(reg.Register(NewTool("broken", "always fails", func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})))
	return reg, &calls
}

func newTestEngine(t *testing.T, model *plannerScript, opts Options) (*Engine, *int) {
	t.Helper()
	reg, calls := testRegistry(t)
	tmpl, err := prompt.LoadAgent("")
	if err != nil {
		t.Fatal(err)
	}
	if opts.TokenCounter == nil {
		opts.TokenCounter = ApproxTokenCounter{}
	}
	e, err := NewEngine(context.Background(), model, reg, tmpl, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, calls
}

func TestSingleToolCycle(t *testing.T) {
	model := &plannerScript{replies: []string{
		" I should list the tables.\nAction: list_tables\nAction Input: ",
		" I now know the final answer\nFinal Answer: campaigns, items, members",
	}}
	e, calls := newTestEngine(t, model, Options{MaxIterations: 5})

	res, err := e.Run(context.Background(), "list all tables")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDoneSuccess || res.StopReason != StopFinalAnswer {
		t.Fatalf("state=%s reason=%s", res.State, res.StopReason)
	}
	if len(res.Steps) != 1 || res.Steps[0].Tool != "list_tables" {
		t.Fatalf("steps = %+v", res.Steps)
	}
	if res.Answer != "campaigns, items, members" || res.Iterations != 2 {
		t.Errorf("answer=%q iterations=%d", res.Answer, res.Iterations)
	}
	// one call while building the prompt, one from the planner
	if *calls != 2 {
		t.Errorf("list_tables called %d times", *calls)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}

	second := model.prompts[1]
	if !strings.Contains(second, "Action Input: \nObservation: campaigns, items, members\nThought:") {
		t.Errorf("scratchpad not rendered into second prompt:\n%s", second)
	}
	if model.stops[0][0] != "\nObservation:" {
		t.Errorf("stop = %q", model.stops[0])
	}
}

func TestPromptComposition(t *testing.T) {
	model := &plannerScript{replies: []string{"Final Answer: ok"}}
	e, _ := newTestEngine(t, model, Options{})
	if _, err := e.Run(context.Background(), "which country spends most?"); err != nil {
		t.Fatal(err)
	}
	p := model.prompts[0]
	for _, want := range []string{
		"list_tables: " + listTablesDescription,
		"sql_query: " + sqlQueryDescription,
		"[list_tables, sql_query, broken]",
		"The database contains these tables: campaigns, items, members",
		"Question: which country spends most?",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, "{agent_scratchpad}") || strings.Contains(p, "{tool_names}") {
		t.Error("placeholders left in prompt")
	}
}

func TestParseErrorRecovery(t *testing.T) {
	model := &plannerScript{replies: []string{
		"I will just guess.",
		"Action: sql_query\nAction Input: how many members?",
		"Final Answer: 100",
	}}
	e, _ := newTestEngine(t, model, Options{MaxIterations: 5})

	res, err := e.Run(context.Background(), "how many members?")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateDoneSuccess || res.Answer != "100" {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(res.Steps))
	}
	first := res.Steps[0]
	if first.Type != StepParseError || first.Tool != "_Exception" {
		t.Errorf("first step = %+v", first)
	}
	if first.Observation != "Invalid Format: Missing 'Action:' after 'Thought:'. Please follow the expected output format." {
		t.Errorf("observation = %q", first.Observation)
	}
	if res.Steps[1].Tool != "sql_query" || res.Steps[1].Input != "how many members?" {
		t.Errorf("second step = %+v", res.Steps[1])
	}
}

func TestUnknownTool(t *testing.T) {
	model := &plannerScript{replies: []string{
		"Action: drop_tables\nAction Input: all",
		"Final Answer: no",
	}}
	e, _ := newTestEngine(t, model, Options{AllowedTools: []string{"list_tables", "sql_query"}})

	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	want := "drop_tables is not a valid tool, try one of [list_tables, sql_query]."
	if res.Steps[0].Type != StepInvalidTool || res.Steps[0].Observation != want {
		t.Errorf("step = %+v", res.Steps[0])
	}
	if strings.Contains(model.prompts[0], "broken: always fails") {
		t.Error("disallowed tool described in prompt")
	}
}

func TestDisallowedRegisteredTool(t *testing.T) {
	model := &plannerScript{replies: []string{"Action: broken\nAction Input: x", "Final Answer: done"}}
	e, _ := newTestEngine(t, model, Options{AllowedTools: []string{"sql_query"}})
	res, _ := e.Run(context.Background(), "q")
	if res.Steps[0].Type != StepInvalidTool {
		t.Errorf("registered but disallowed tool should be rejected: %+v", res.Steps[0])
	}
}

func TestToolErrorBecomesObservation(t *testing.T) {
	model := &plannerScript{replies: []string{"Action: broken\nAction Input: x", "Final Answer: gave up"}}
	e, _ := newTestEngine(t, model, Options{})
	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps[0].Observation != "Error: connection refused" {
		t.Errorf("observation = %q", res.Steps[0].Observation)
	}
}

func TestMaxIterationsForce(t *testing.T) {
	model := &plannerScript{replies: []string{"Action: sql_query\nAction Input: again"}}
	e, _ := newTestEngine(t, model, Options{MaxIterations: 3, EarlyStopping: EarlyStopForce})

	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "Agent stopped due to iteration limit or time limit." {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.StopReason != StopMaxIterations || res.State != StateDoneError {
		t.Errorf("reason=%s state=%s", res.StopReason, res.State)
	}
	if res.Iterations != 3 || len(model.prompts) != 3 || len(res.Steps) != 3 {
		t.Errorf("iterations=%d prompts=%d steps=%d", res.Iterations, len(model.prompts), len(res.Steps))
	}
}

func TestMaxIterationsGenerate(t *testing.T) {
	model := &plannerScript{replies: []string{
		"Action: sql_query\nAction Input: count",
		"Action: sql_query\nAction Input: count",
		"Final Answer: about 100",
	}}
	e, _ := newTestEngine(t, model, Options{MaxIterations: 2, EarlyStopping: EarlyStopGenerate})

	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "about 100" || res.StopReason != StopMaxIterations {
		t.Errorf("answer=%q reason=%s", res.Answer, res.StopReason)
	}
	last := model.prompts[len(model.prompts)-1]
	if !strings.HasSuffix(last, "I now need to return a final answer based on the previous steps:") {
		t.Errorf("final prompt should ask for an answer:\n%s", last)
	}
}

func TestGenerateReturnsRawText(t *testing.T) {
	model := &plannerScript{replies: []string{
		"Action: sql_query\nAction Input: count",
		"  There are roughly 100 members.  ",
	}}
	e, _ := newTestEngine(t, model, Options{MaxIterations: 1, EarlyStopping: EarlyStopGenerate})
	res, _ := e.Run(context.Background(), "q")
	if res.Answer != "There are roughly 100 members." {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestMaxParseErrors(t *testing.T) {
	model := &plannerScript{replies: []string{"gibberish"}}
	e, _ := newTestEngine(t, model, Options{MaxIterations: 10, MaxParseErrors: 2})

	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.StopReason != StopParseErrors || res.Iterations != 3 {
		t.Errorf("reason=%s iterations=%d", res.StopReason, res.Iterations)
	}
}

func TestMaxExecutionTime(t *testing.T) {
	model := &plannerScript{
		replies: []string{"Action: sql_query\nAction Input: slow"},
		delay:   20 * time.Millisecond,
	}
	e, _ := newTestEngine(t, model, Options{MaxExecutionTime: 5 * time.Millisecond, EarlyStopping: EarlyStopForce})

	res, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if res.StopReason != StopMaxExecutionTime || res.Iterations != 1 {
		t.Errorf("reason=%s iterations=%d", res.StopReason, res.Iterations)
	}
}

func TestPlannerErrorPropagates(t *testing.T) {
	reg, _ := testRegistry(t)
	tmpl, _ := prompt.LoadAgent("")
	e, err := NewEngine(context.Background(), failingPlanner{}, reg, tmpl, Options{TokenCounter: ApproxTokenCounter{}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), "q"); err == nil || !strings.Contains(err.Error(), "model offline") {
		t.Errorf("err = %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	model := &plannerScript{replies: []string{"Final Answer: x"}}
	e, _ := newTestEngine(t, model, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestObservationTruncated(t *testing.T) {
	reg := NewToolRegistry()
	_ = reg.Register(NewTool("dump", "dumps", func(context.Context, string) (string, error) {
		return strings.Repeat("abcd", 100), nil
	}))
	tmpl, _ := prompt.LoadAgent("")
	model := &plannerScript{replies: []string{"Action: dump\nAction Input: all", "Final Answer: ok"}}
	e, err := NewEngine(context.Background(), model, reg, tmpl, Options{ObservationLimit: 10, TokenCounter: ApproxTokenCounter{}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	res, _ := e.Run(context.Background(), "q")
	obs := res.Steps[0].Observation
	if !strings.HasPrefix(obs, strings.Repeat("abcd", 10)) || !strings.HasSuffix(obs, truncatedSuffix) {
		t.Errorf("observation = %q", obs)
	}
}

type memoryRecorder struct{ runs []*Result }

func (m *memoryRecorder) SaveRun(_ context.Context, r *Result) error {
	m.runs = append(m.runs, r)
	return nil
}

func TestRecorder(t *testing.T) {
	model := &plannerScript{replies: []string{"Final Answer: x"}}
	e, _ := newTestEngine(t, model, Options{})
	rec := &memoryRecorder{}
	e.SetRecorder(rec)
	res, _ := e.Run(context.Background(), "q")
	if len(rec.runs) != 1 || rec.runs[0].RunID != res.RunID {
		t.Errorf("recorded %d runs", len(rec.runs))
	}
}

func TestNewEngineValidation(t *testing.T) {
	tmpl, _ := prompt.LoadAgent("")
	model := &plannerScript{replies: []string{"x"}}

	if _, err := NewEngine(context.Background(), model, NewToolRegistry(), tmpl, Options{}, zap.NewNop()); err == nil {
		t.Error("want error for empty registry")
	}
	reg, _ := testRegistry(t)
	if _, err := NewEngine(context.Background(), model, reg, tmpl, Options{EarlyStopping: "panic"}, zap.NewNop()); err == nil {
		t.Error("want error for unknown early stopping method")
	}
	if _, err := NewEngine(context.Background(), model, reg, tmpl, Options{AllowedTools: []string{"nope"}}, zap.NewNop()); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestDuplicateTool(t *testing.T) {
	reg := NewToolRegistry()
	tool := NewTool("x", "d", func(context.Context, string) (string, error) { return "", nil })
	if err := reg.Register(tool); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(tool); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("err = %v, want ErrDuplicateTool", err)
	}
}
