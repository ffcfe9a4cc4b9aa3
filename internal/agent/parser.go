package agent

import (
	"regexp"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

var (
	actionRe      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyRe  = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputRe = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
)

// ActionKind tags a parsed planner output.
type ActionKind int

const (
	ActionToolCall ActionKind = iota
	ActionFinalAnswer
)

// Action is a planner decision: a tool call or a final answer. Log keeps the
// raw planner text for the scratchpad.
type Action struct {
	Kind   ActionKind
	Tool   string
	Input  string
	Answer string
	Log    string
}

// ParseError reports planner output that is neither a tool call nor a final
// answer. Reason is fed back to the planner.
type ParseError struct {
	Reason string
	Text   string
}

func (e *ParseError) Error() string {
	return "could not parse planner output: " + e.Reason
}

// Observation is the corrective text shown to the planner.
func (e *ParseError) Observation() string {
	return "Invalid Format: " + e.Reason + ". Please follow the expected output format."
}

// ParseOutput reads Thought/Action/Action Input or Final Answer text.
func ParseOutput(text string) (Action, error) {
	includesAnswer := strings.Contains(text, finalAnswerMarker)

	if m := actionRe.FindStringSubmatch(text); m != nil {
		if includesAnswer {
			return Action{}, &ParseError{Reason: "Found both a final answer and a parse-able action", Text: text}
		}
		input := strings.Trim(m[2], " ")
		// a statement may end in a quoted identifier
		if !strings.HasPrefix(input, "SELECT ") {
			input = strings.Trim(input, `"`)
		}
		return Action{
			Kind:  ActionToolCall,
			Tool:  strings.TrimSpace(m[1]),
			Input: input,
			Log:   text,
		}, nil
	}

	if includesAnswer {
		parts := strings.Split(text, finalAnswerMarker)
		return Action{
			Kind:   ActionFinalAnswer,
			Answer: strings.TrimSpace(parts[len(parts)-1]),
			Log:    text,
		}, nil
	}

	switch {
	case !actionOnlyRe.MatchString(text):
		return Action{}, &ParseError{Reason: "Missing 'Action:' after 'Thought:'", Text: text}
	case !actionInputRe.MatchString(text):
		return Action{}, &ParseError{Reason: "Missing 'Action Input:' after 'Action:'", Text: text}
	default:
		return Action{}, &ParseError{Reason: "Could not parse the action", Text: text}
	}
}
