package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestParseOutputToolCall(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		tool  string
		input string
	}{
		{
			name:  "basic",
			text:  "I should look at the tables.\nAction: list_tables\nAction Input: ",
			tool:  "list_tables",
			input: "",
		},
		{
			name:  "quoted input",
			text:  "Thought: need schema\nAction: describe_table\nAction Input: \"members, items\"",
			tool:  "describe_table",
			input: "members, items",
		},
		{
			name:  "numbered",
			text:  "Action 1: sql_query\nAction 1 Input 1: how many members joined in 2024?\n",
			tool:  "sql_query",
			input: "how many members joined in 2024?\n",
		},
		{
			name:  "padded tool name",
			text:  "Action:   schema_lookup  \nAction Input:   final_price ",
			tool:  "schema_lookup",
			input: "final_price",
		},
		{
			name:  "quoted identifier in statement",
			text:  "Action: sql_query\nAction Input: SELECT \"name\" FROM \"members\"",
			tool:  "sql_query",
			input: `SELECT "name" FROM "members"`,
		},
		{
			name:  "quoted question",
			text:  "Action: sql_query\nAction Input: \"How many members?\"",
			tool:  "sql_query",
			input: "How many members?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseOutput(tt.text)
			if err != nil {
				t.Fatalf("ParseOutput: %v", err)
			}
			if a.Kind != ActionToolCall || a.Tool != tt.tool || a.Input != tt.input {
				t.Errorf("got %+v", a)
			}
			if a.Log != tt.text {
				t.Errorf("log should keep the raw text")
			}
		})
	}
}

func TestParseOutputFinalAnswer(t *testing.T) {
	a, err := ParseOutput("I now know the final answer\nFinal Answer:  Taiwan has the highest average.  ")
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != ActionFinalAnswer || a.Answer != "Taiwan has the highest average." {
		t.Errorf("got %+v", a)
	}

	a, _ = ParseOutput("Final Answer: draft\nFinal Answer: 42")
	if a.Answer != "42" {
		t.Errorf("answer = %q, want the last segment", a.Answer)
	}
}

func TestParseOutputErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"no action", "I am not sure what to do.", "Missing 'Action:' after 'Thought:'"},
		{"no input", "Action: list_tables", "Missing 'Action Input:' after 'Action:'"},
		{"both", "Action: list_tables\nAction Input: x\nFinal Answer: y", "Found both a final answer and a parse-able action"},
		{"reversed", "Action Input: members\nAction: describe_table", "Could not parse the action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOutput(tt.text)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if perr.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", perr.Reason, tt.reason)
			}
			obs := perr.Observation()
			if !strings.HasPrefix(obs, "Invalid Format: ") || !strings.HasSuffix(obs, "Please follow the expected output format.") {
				t.Errorf("observation = %q", obs)
			}
		})
	}
}
