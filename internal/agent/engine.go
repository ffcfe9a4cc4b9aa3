package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/metrics"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/prompt"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Early stopping methods.
const (
	EarlyStopForce    = "force"
	EarlyStopGenerate = "generate"
)

const (
	stoppedMessage     = "Agent stopped due to iteration limit or time limit."
	parseErrorsMessage = "Agent stopped after repeated invalid planner output."
	finalThought       = "\n\nI now need to return a final answer based on the previous steps:"
)

// Options bound one agent run. Zero MaxIterations, MaxExecutionTime,
// MaxParseErrors and ObservationLimit mean unbounded.
type Options struct {
	MaxIterations    int
	MaxExecutionTime time.Duration
	MaxParseErrors   int
	EarlyStopping    string
	Stop             []string
	ObservationLimit int
	// AllowedTools restricts the planner to a subset of the registry.
	// Empty allows every registered tool.
	AllowedTools []string
	TokenCounter TokenCounter
}

// OptionsFromConfig maps the agent config section. Negative limits disable
// the corresponding ceiling.
func OptionsFromConfig(cfg config.AgentConfig) Options {
	nonNeg := func(v int) int {
		if v < 0 {
			return 0
		}
		return v
	}
	return Options{
		MaxIterations:    nonNeg(cfg.MaxIterations),
		MaxExecutionTime: cfg.MaxExecutionTime.Duration,
		MaxParseErrors:   nonNeg(cfg.MaxParseErrors),
		EarlyStopping:    cfg.EarlyStopping,
		Stop:             cfg.Stop,
		ObservationLimit: nonNeg(cfg.ObservationLimit),
	}
}

// Recorder persists finished runs.
type Recorder interface {
	SaveRun(ctx context.Context, r *Result) error
}

// Engine runs the plan, act, observe loop over a tool registry.
type Engine struct {
	model    provider.Completer
	tools    *ToolRegistry
	allowed  []string
	prompt   prompt.Template
	opts     Options
	counter  TokenCounter
	recorder Recorder
	logger   *zap.Logger
}

// NewEngine builds the planner prompt once. When list_tables is registered
// it is invoked to fill {table_list}.
func NewEngine(ctx context.Context, model provider.Completer, tools *ToolRegistry, tmpl *prompt.AgentTemplate, opts Options, logger *zap.Logger) (*Engine, error) {
	if len(tools.Names()) == 0 {
		return nil, fmt.Errorf("agent needs at least one tool")
	}
	switch opts.EarlyStopping {
	case "":
		opts.EarlyStopping = EarlyStopForce
	case EarlyStopForce, EarlyStopGenerate:
	default:
		return nil, fmt.Errorf("unknown early stopping method %q (supported: force, generate)", opts.EarlyStopping)
	}
	if len(opts.Stop) == 0 {
		opts.Stop = []string{"\nObservation:"}
	}

	allowed := opts.AllowedTools
	if len(allowed) == 0 {
		allowed = tools.Names()
	}
	for _, name := range allowed {
		if _, ok := tools.Get(name); !ok {
			return nil, fmt.Errorf("allowed tool %s: %w", name, ErrUnknownTool)
		}
	}

	tableList := ""
	if _, ok := tools.Get(string(ToolListTables)); ok {
		out, err := tools.Execute(ctx, string(ToolListTables), "")
		if err != nil {
			return nil, fmt.Errorf("list tables for prompt: %w", err)
		}
		tableList = out
	}

	counter := opts.TokenCounter
	if counter == nil {
		counter = DefaultTokenCounter()
	}

	e := &Engine{
		model:   model,
		tools:   tools,
		allowed: allowed,
		opts:    opts,
		counter: counter,
		logger:  logger,
	}
	e.prompt = e.buildPrompt(tmpl, tableList)
	return e, nil
}

// SetRecorder makes the engine persist every finished run.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry { return e.tools }

func (e *Engine) buildPrompt(tmpl *prompt.AgentTemplate, tableList string) prompt.Template {
	descs := make([]string, len(e.allowed))
	for i, name := range e.allowed {
		t, _ := e.tools.Get(name)
		descs[i] = name + ": " + t.Description()
	}
	instruction := tmpl.Instruction.Render(map[string]string{
		"tool_names": strings.Join(e.allowed, ", "),
		"table_list": tableList,
	})
	return prompt.Template(strings.Join([]string{
		string(tmpl.Prefix),
		strings.Join(descs, "\n"),
		instruction,
		string(tmpl.Suffix),
	}, "\n\n"))
}

func (e *Engine) render(question, scratchpad string) string {
	return e.prompt.Render(map[string]string{
		"input":            question,
		"agent_scratchpad": scratchpad,
	})
}

// Run answers one question. Tool failures become observations; only planner
// transport errors and cancellation are returned as errors.
func (e *Engine) Run(ctx context.Context, question string) (*Result, error) {
	res := &Result{
		RunID:     uuid.New().String(),
		Question:  question,
		StartedAt: time.Now(),
	}
	log := e.logger.With(zap.String("run_id", res.RunID))

	parseErrors := 0
	for e.canContinue(res) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Debug("agent state", zap.String("state", string(StateThinking)), zap.Int("iteration", res.Iterations+1))
		text, err := e.model.Complete(ctx, e.render(question, res.Steps.Render()), e.opts.Stop)
		if err != nil {
			metrics.AgentRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("planner: %w", err)
		}
		res.Iterations++

		action, err := ParseOutput(text)
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
			parseErrors++
			metrics.ToolCalls.WithLabelValues(exceptionTool, "invalid_format").Inc()
			log.Warn("invalid planner output", zap.String("reason", perr.Reason), zap.Int("consecutive", parseErrors))
			res.Steps = append(res.Steps, Step{
				Type:        StepParseError,
				Tool:        exceptionTool,
				Input:       perr.Observation(),
				Log:         text,
				Observation: perr.Observation(),
				Timestamp:   time.Now(),
			})
			if e.opts.MaxParseErrors > 0 && parseErrors > e.opts.MaxParseErrors {
				return e.finish(ctx, res, StateDoneError, StopParseErrors, parseErrorsMessage), nil
			}
			continue
		}
		parseErrors = 0

		if action.Kind == ActionFinalAnswer {
			return e.finish(ctx, res, StateDoneSuccess, StopFinalAnswer, action.Answer), nil
		}

		log.Debug("agent state", zap.String("state", string(StateActing)), zap.String("tool", action.Tool))
		step := e.act(ctx, action)
		log.Debug("agent state", zap.String("state", string(StateObserving)), zap.Int("observation_len", len(step.Observation)))
		res.Steps = append(res.Steps, step)
	}

	reason := StopMaxIterations
	if e.timeExceeded(res) {
		reason = StopMaxExecutionTime
	}
	if e.opts.EarlyStopping == EarlyStopGenerate {
		answer, err := e.generateFinal(ctx, question, res)
		if err != nil {
			metrics.AgentRuns.WithLabelValues("error").Inc()
			return nil, err
		}
		return e.finish(ctx, res, StateDoneError, reason, answer), nil
	}
	return e.finish(ctx, res, StateDoneError, reason, stoppedMessage), nil
}

func (e *Engine) canContinue(res *Result) bool {
	if e.opts.MaxIterations > 0 && res.Iterations >= e.opts.MaxIterations {
		return false
	}
	return !e.timeExceeded(res)
}

func (e *Engine) timeExceeded(res *Result) bool {
	return e.opts.MaxExecutionTime > 0 && time.Since(res.StartedAt) >= e.opts.MaxExecutionTime
}

// act invokes the requested tool and returns the resulting step.
func (e *Engine) act(ctx context.Context, a Action) Step {
	step := Step{
		Type:      StepToolCall,
		Tool:      a.Tool,
		Input:     a.Input,
		Log:       a.Log,
		Timestamp: time.Now(),
	}

	if !e.isAllowed(a.Tool) {
		metrics.ToolCalls.WithLabelValues("unknown", "unknown").Inc()
		step.Type = StepInvalidTool
		step.Observation = fmt.Sprintf("%s is not a valid tool, try one of [%s].", a.Tool, strings.Join(e.allowed, ", "))
		return step
	}

	start := time.Now()
	out, err := e.tools.Execute(ctx, a.Tool, a.Input)
	step.Duration = time.Since(start)
	metrics.ToolDuration.WithLabelValues(a.Tool).Observe(step.Duration.Seconds())
	if err != nil {
		metrics.ToolCalls.WithLabelValues(a.Tool, "error").Inc()
		e.logger.Warn("tool failed", zap.String("tool", a.Tool), zap.Error(err))
		out = "Error: " + err.Error()
	} else {
		metrics.ToolCalls.WithLabelValues(a.Tool, "ok").Inc()
	}
	step.Observation = e.counter.Truncate(out, e.opts.ObservationLimit)
	return step
}

func (e *Engine) isAllowed(name string) bool {
	for _, n := range e.allowed {
		if n == name {
			return true
		}
	}
	return false
}

// generateFinal asks the planner for one last answer from the scratchpad.
// Unparseable output is returned as is.
func (e *Engine) generateFinal(ctx context.Context, question string, res *Result) (string, error) {
	text, err := e.model.Complete(ctx, e.render(question, res.Steps.Render()+finalThought), e.opts.Stop)
	if err != nil {
		return "", fmt.Errorf("planner final answer: %w", err)
	}
	if action, err := ParseOutput(text); err == nil && action.Kind == ActionFinalAnswer {
		return action.Answer, nil
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) finish(ctx context.Context, res *Result, state State, reason StopReason, answer string) *Result {
	res.Answer = answer
	res.State = state
	res.StopReason = reason
	res.Duration = time.Since(res.StartedAt)

	metrics.AgentRuns.WithLabelValues(string(reason)).Inc()
	metrics.AgentIterations.Observe(float64(res.Iterations))
	metrics.AgentDuration.Observe(res.Duration.Seconds())
	e.logger.Info("agent run finished",
		zap.String("run_id", res.RunID),
		zap.String("stop_reason", string(reason)),
		zap.Int("iterations", res.Iterations),
		zap.Duration("duration", res.Duration))

	if e.recorder != nil {
		if err := e.recorder.SaveRun(ctx, res); err != nil {
			e.logger.Warn("save run failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return res
}
