package agent

import (
	"strings"
	"time"
)

// State is a phase of the agent loop.
type State string

const (
	StateThinking    State = "thinking"
	StateActing      State = "acting"
	StateObserving   State = "observing"
	StateDoneSuccess State = "done_success"
	StateDoneError   State = "done_error"
)

// StepType identifies the kind of scratchpad step.
type StepType string

const (
	StepToolCall    StepType = "tool_call"
	StepInvalidTool StepType = "invalid_tool"
	StepParseError  StepType = "parse_error"
)

// exceptionTool names the pseudo-tool recorded for unparseable output.
const exceptionTool = "_Exception"

// StopReason says why a run ended.
type StopReason string

const (
	StopFinalAnswer      StopReason = "final_answer"
	StopMaxIterations    StopReason = "max_iterations"
	StopMaxExecutionTime StopReason = "max_execution_time"
	StopParseErrors      StopReason = "parse_errors"
)

// Step is a single planner decision and its observation.
type Step struct {
	Type        StepType      `json:"type"`
	Tool        string        `json:"tool"`
	Input       string        `json:"input"`
	Log         string        `json:"log"`
	Observation string        `json:"observation"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
}

// Scratchpad is the ordered step log of one run.
type Scratchpad []Step

// Render formats the steps the way the planner prompt expects them.
func (s Scratchpad) Render() string {
	var b strings.Builder
	for _, st := range s {
		b.WriteString(st.Log)
		b.WriteString("\nObservation: ")
		b.WriteString(st.Observation)
		b.WriteString("\nThought:")
	}
	return b.String()
}

// Result holds the output of one agent run.
type Result struct {
	RunID      string        `json:"run_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Steps      Scratchpad    `json:"steps"`
	Iterations int           `json:"iterations"`
	State      State         `json:"state"`
	StopReason StopReason    `json:"stop_reason"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
