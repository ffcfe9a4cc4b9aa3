// Package prompt loads the YAML prompt templates for the SQL generator and
// the agent planner and renders their {placeholder} variables.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingKey is returned when a template file lacks a required key.
	ErrMissingKey = errors.New("template key missing")
	// ErrMissingPlaceholder is returned when a template section lacks a
	// placeholder the caller must fill.
	ErrMissingPlaceholder = errors.New("template placeholder missing")
)

//go:embed templates/*.yml
var builtin embed.FS

const (
	builtinSQL   = "templates/sql_db_chain_v1.1.yml"
	builtinAgent = "templates/sql_agent_v1.1.yml"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Template is a text with {name} placeholders.
type Template string

// Render substitutes vars in a single pass. Placeholders without a value are
// left as they are, so substituted text is never expanded again.
func (t Template) Render(vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(string(t), func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Has reports whether the template contains {name}.
func (t Template) Has(name string) bool {
	return strings.Contains(string(t), "{"+name+"}")
}

// SQLTemplate prompts the model for one SQL statement.
type SQLTemplate struct {
	Instruction Template
}

// Render fills the instruction.
func (t *SQLTemplate) Render(input, tableInfo, dialect string) string {
	return t.Instruction.Render(map[string]string{
		"input":      input,
		"table_info": tableInfo,
		"dialect":    dialect,
	})
}

// AgentTemplate holds the planner prompt sections.
type AgentTemplate struct {
	Prefix      Template
	Suffix      Template
	Instruction Template
}

type sqlFile struct {
	Version     string `yaml:"version"`
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

type agentFile struct {
	Version     string `yaml:"version"`
	Name        string `yaml:"name"`
	Prefix      string `yaml:"prefix"`
	Suffix      string `yaml:"suffix"`
	Instruction string `yaml:"instruction"`
}

// LoadSQL reads the SQL template at path, or the built-in one when path is
// empty.
func LoadSQL(path string) (*SQLTemplate, error) {
	data, err := read(path, builtinSQL)
	if err != nil {
		return nil, fmt.Errorf("load sql template: %w", err)
	}
	t, err := ParseSQL(data)
	if err != nil {
		return nil, fmt.Errorf("load sql template %s: %w", describe(path), err)
	}
	return t, nil
}

// ParseSQL decodes a SQL template document.
func ParseSQL(data []byte) (*SQLTemplate, error) {
	var f sqlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Instruction) == "" {
		return nil, fmt.Errorf("%w: instruction", ErrMissingKey)
	}
	t := &SQLTemplate{Instruction: Template(f.Instruction)}
	if err := require("instruction", t.Instruction, "input", "table_info", "dialect"); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadAgent reads the agent template at path, or the built-in one when path
// is empty.
func LoadAgent(path string) (*AgentTemplate, error) {
	data, err := read(path, builtinAgent)
	if err != nil {
		return nil, fmt.Errorf("load agent template: %w", err)
	}
	t, err := ParseAgent(data)
	if err != nil {
		return nil, fmt.Errorf("load agent template %s: %w", describe(path), err)
	}
	return t, nil
}

// ParseAgent decodes an agent template document. The instruction must carry
// {tool_names} and the suffix {input} and {agent_scratchpad}; {table_list}
// is optional.
func ParseAgent(data []byte) (*AgentTemplate, error) {
	var f agentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for _, kv := range [][2]string{{"prefix", f.Prefix}, {"suffix", f.Suffix}, {"instruction", f.Instruction}} {
		if strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, kv[0])
		}
	}
	t := &AgentTemplate{
		Prefix:      Template(f.Prefix),
		Suffix:      Template(f.Suffix),
		Instruction: Template(f.Instruction),
	}
	if err := require("instruction", t.Instruction, "tool_names"); err != nil {
		return nil, err
	}
	if err := require("suffix", t.Suffix, "input", "agent_scratchpad"); err != nil {
		return nil, err
	}
	return t, nil
}

func require(section string, t Template, names ...string) error {
	for _, n := range names {
		if !t.Has(n) {
			return fmt.Errorf("%w: {%s} in %s", ErrMissingPlaceholder, n, section)
		}
	}
	return nil
}

func read(path, fallback string) ([]byte, error) {
	if path == "" {
		return builtin.ReadFile(fallback)
	}
	return os.ReadFile(path)
}

func describe(path string) string {
	if path == "" {
		return "(built-in)"
	}
	return path
}
