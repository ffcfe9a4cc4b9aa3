// Package sqlgen turns a natural-language question into an executed SQL
// statement. Each attempt asks the model for a statement, runs it, and on a
// database error feeds the failed statement and error back as a corrective
// instruction until the retry budget is spent.
package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/metrics"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/prompt"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/provider"
	"go.uber.org/zap"
)

// DefaultMaxRetries is the attempt budget when none is configured.
const DefaultMaxRetries = 3

// statementStop ends generation before the model imagines a result.
var statementStop = []string{"\nSQLResult:"}

// Database is the subset of the database collaborator the loop needs.
type Database interface {
	TableInfo(ctx context.Context, names ...string) (string, error)
	Dialect() string
	Run(ctx context.Context, statement string) (string, error)
}

// Attempt records one generate-and-execute round.
type Attempt struct {
	Index     int
	Statement string
	Result    string
	Err       error
}

// Outcome is the full trace of one invocation.
type Outcome struct {
	Message  string
	Success  bool
	Attempts []Attempt
}

// Generator runs the retry-and-correct loop.
type Generator struct {
	model      provider.Completer
	db         Database
	template   *prompt.SQLTemplate
	maxRetries int
	logger     *zap.Logger
}

// New creates a Generator. A non-positive maxRetries selects
// DefaultMaxRetries.
func New(model provider.Completer, db Database, tmpl *prompt.SQLTemplate, maxRetries int, logger *zap.Logger) *Generator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Generator{
		model:      model,
		db:         db,
		template:   tmpl,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// MaxRetries returns the attempt budget.
func (g *Generator) MaxRetries() int { return g.maxRetries }

// Answer runs the loop and returns its message.
func (g *Generator) Answer(ctx context.Context, question string) string {
	return g.Run(ctx, question).Message
}

// Run runs the loop and returns the whole trace. Per-attempt failures never
// surface as Go errors; they end up in Outcome.Message.
func (g *Generator) Run(ctx context.Context, question string) *Outcome {
	out := &Outcome{}

	tableInfo, err := g.db.TableInfo(ctx)
	if err != nil {
		g.logger.Warn("table info unavailable", zap.Error(err))
		tableInfo = ""
	}
	dialect := g.db.Dialect()

	instruction := question
	for i := 0; i < g.maxRetries; i++ {
		g.logger.Info("sql attempt",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", g.maxRetries))

		a := g.attempt(ctx, i, instruction, tableInfo, dialect)
		out.Attempts = append(out.Attempts, a)

		if a.Err == nil {
			metrics.SQLAttempts.WithLabelValues("ok").Inc()
			metrics.SQLOutcomes.WithLabelValues("success").Inc()
			out.Success = true
			out.Message = "Query executed successfully. Result: " + a.Result
			return out
		}

		g.logger.Debug("sql attempt failed",
			zap.Int("attempt", i+1),
			zap.String("statement", a.Statement),
			zap.Error(a.Err))

		if i == g.maxRetries-1 {
			metrics.SQLOutcomes.WithLabelValues("exhausted").Inc()
			out.Message = exhaustedMessage(g.maxRetries, a)
			return out
		}
		if ctx.Err() != nil {
			metrics.SQLOutcomes.WithLabelValues("exhausted").Inc()
			out.Message = exhaustedMessage(i+1, a)
			return out
		}
		instruction = correctiveInstruction(question, a, g.maxRetries)
	}

	out.Message = "Failed to get a valid response from the database after multiple attempts."
	return out
}

func (g *Generator) attempt(ctx context.Context, index int, instruction, tableInfo, dialect string) Attempt {
	a := Attempt{Index: index}

	text, err := g.model.Complete(ctx, g.template.Render(instruction, tableInfo, dialect), statementStop)
	if err != nil {
		metrics.SQLAttempts.WithLabelValues("model_error").Inc()
		a.Err = fmt.Errorf("model request failed: %w", err)
		return a
	}

	// restore the marker the stop sequence cut so the query window closes
	if strings.Contains(text, "SQLQuery:") && !strings.Contains(text, statementStop[0]) {
		text += statementStop[0]
	}
	a.Statement = ExtractStatement(text)
	g.logger.Info("executing sql", zap.String("statement", a.Statement))

	result, err := g.db.Run(ctx, a.Statement)
	if err != nil {
		metrics.SQLAttempts.WithLabelValues("db_error").Inc()
		a.Err = err
		return a
	}
	a.Result = result
	return a
}

// ExtractStatement pulls the SQL out of a model completion: the text
// between "SQLQuery:" and "\nSQLResult:" when both markers are present,
// otherwise the whole completion, with markdown fences removed.
func ExtractStatement(text string) string {
	if i := strings.Index(text, "SQLQuery:"); i >= 0 {
		rest := text[i+len("SQLQuery:"):]
		if j := strings.Index(rest, "\nSQLResult:"); j >= 0 {
			text = rest[:j]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// correctiveInstruction carries only the immediately preceding attempt. The
// attempt number keeps instructions distinct when a model repeats itself.
func correctiveInstruction(question string, a Attempt, maxRetries int) string {
	return fmt.Sprintf("The previous attempt (%d of %d) to answer the question '%s' failed. "+
		"The generated SQL was:\n%s\n"+
		"It produced the following database error:\n%s\n"+
		"Please analyze the error and the database schema to generate a corrected SQL query.",
		a.Index+1, maxRetries, question, a.Statement, a.Err)
}

func exhaustedMessage(attempts int, last Attempt) string {
	msg := fmt.Sprintf("Failed to execute SQL after %d attempts. Last error: %v", attempts, last.Err)
	if last.Statement != "" {
		msg += "\nLast SQL: " + last.Statement
	}
	return msg
}
