package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/retriever"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
)

// Database is what the table tools need from the database collaborator.
type Database interface {
	TableNames(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, names ...string) (string, error)
}

// SchemaSearcher finds schema definitions for a phrase.
type SchemaSearcher interface {
	Search(ctx context.Context, query string, k int) ([]schema.Document, error)
	K() int
}

// SQLAnswerer answers a question by generating and executing SQL.
type SQLAnswerer interface {
	Answer(ctx context.Context, question string) string
}

const (
	listTablesDescription    = "Use this tool to list all available table names in the database."
	describeTableDescription = "Use this tool to describe the schema of a specific table, including column names and data types."
	schemaLookupDescription  = "A tool to retrieve definitions of table or column names. " +
		"Use when the input is a natural language question containing a field or table name that needs clarification. " +
		"Input should be a short query or phrase asking about the meaning or definition of a table or column. " +
		"Returns the associated schema documentation."
	sqlQueryDescription = "Use this tool to answer questions about user data, metrics, or reports from the database. " +
		"Input should be a complete question in natural language. " +
		"The tool will automatically generate, execute, and correct SQL to find the answer."
)

// NewListTablesTool lists visible tables. Its input is ignored.
func NewListTablesTool(db Database) Tool {
	return NewTool(string(ToolListTables), listTablesDescription, func(ctx context.Context, _ string) (string, error) {
		names, err := db.TableNames(ctx)
		if err != nil {
			return "", err
		}
		return strings.Join(names, ", "), nil
	})
}

// NewDescribeTableTool returns DDL and sample rows for a comma-separated
// list of tables.
func NewDescribeTableTool(db Database) Tool {
	return NewTool(string(ToolDescribeTable), describeTableDescription, func(ctx context.Context, input string) (string, error) {
		names := splitTableNames(input)
		if len(names) == 0 {
			return "", fmt.Errorf("no table name given")
		}
		return db.TableInfo(ctx, names...)
	})
}

// NewSchemaLookupTool searches the schema catalog.
func NewSchemaLookupTool(s SchemaSearcher) Tool {
	return NewTool(string(ToolSchemaLookup), schemaLookupDescription, func(ctx context.Context, input string) (string, error) {
		docs, err := s.Search(ctx, strings.TrimSpace(input), s.K())
		if err != nil {
			return "", err
		}
		return retriever.Format(docs), nil
	})
}

// NewSQLQueryTool delegates to the SQL generation loop.
func NewSQLQueryTool(a SQLAnswerer) Tool {
	return NewTool(string(ToolSQLQuery), sqlQueryDescription, func(ctx context.Context, input string) (string, error) {
		return a.Answer(ctx, strings.TrimSpace(input)), nil
	})
}

// RegisterBuiltinTools adds the four database tools to reg.
func RegisterBuiltinTools(reg *ToolRegistry, db Database, s SchemaSearcher, a SQLAnswerer) error {
	for _, t := range []Tool{
		NewListTablesTool(db),
		NewDescribeTableTool(db),
		NewSQLQueryTool(a),
		NewSchemaLookupTool(s),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func splitTableNames(input string) []string {
	var names []string
	for _, part := range strings.Split(input, ",") {
		name := strings.Trim(strings.TrimSpace(part), "\"'`")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
