// Package job decodes compile-and-run job descriptions and expands the
// placeholder tokens in their command templates.
//
// Job descriptions are trusted input. Substitution is plain text
// replacement: nothing is quoted or escaped before the result reaches
// the shell.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholder tokens recognised in command templates.
const (
	TokenSourceFile = "{{sourceFile}}"
	TokenStdInFile  = "{{stdInFile}}"
)

var (
	// ErrMalformed is returned when a job description cannot be decoded.
	ErrMalformed = errors.New("malformed job")
	// ErrMissingField is returned when a required key is absent or null.
	ErrMissingField = errors.New("missing required field")
	// ErrMissingRunSteps is returned when runSteps is absent or null.
	ErrMissingRunSteps = fmt.Errorf("%w: runSteps", ErrMissingField)
)

// Job is one compile-and-run task. It is immutable once decoded.
type Job struct {
	SourceFile   string   `json:"sourceFile" yaml:"sourceFile"`
	StdInFile    string   `json:"stdInFile" yaml:"stdInFile"`
	CompileSteps []string `json:"compileSteps,omitempty" yaml:"compileSteps,omitempty"`
	RunSteps     []string `json:"runSteps" yaml:"runSteps"`
}

// wireJob distinguishes absent or null fields from empty ones.
type wireJob struct {
	SourceFile   *string   `json:"sourceFile" yaml:"sourceFile"`
	StdInFile    *string   `json:"stdInFile" yaml:"stdInFile"`
	CompileSteps []string  `json:"compileSteps" yaml:"compileSteps"`
	RunSteps     *[]string `json:"runSteps" yaml:"runSteps"`
}

func (w *wireJob) job() (*Job, error) {
	if w.RunSteps == nil {
		return nil, ErrMissingRunSteps
	}
	// Every step expands both tokens, so a job with any step needs both
	// names. A job without steps never reads them.
	if len(w.CompileSteps)+len(*w.RunSteps) > 0 {
		if w.SourceFile == nil {
			return nil, fmt.Errorf("%w: sourceFile", ErrMissingField)
		}
		if w.StdInFile == nil {
			return nil, fmt.Errorf("%w: stdInFile", ErrMissingField)
		}
	}
	return &Job{
		SourceFile:   deref(w.SourceFile),
		StdInFile:    deref(w.StdInFile),
		CompileSteps: w.CompileSteps,
		RunSteps:     *w.RunSteps,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Parse decodes a JSON job description. Keys must match exactly; unlike
// encoding/json's struct decoding, "RUNSTEPS" is not "runSteps".
func Parse(data []byte) (*Job, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var w wireJob
	for key, dst := range map[string]any{
		"sourceFile":   &w.SourceFile,
		"stdInFile":    &w.StdInFile,
		"compileSteps": &w.CompileSteps,
		"runSteps":     &w.RunSteps,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, key, err)
		}
	}
	return w.job()
}

// Load reads a job description from a file. Files ending in .yaml or .yml
// are decoded as YAML; everything else as JSON.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// yaml.v3 matches keys exactly, as Parse does.
		var w wireJob
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return w.job()
	default:
		return Parse(data)
	}
}

// Expand replaces every occurrence of the placeholder tokens in template.
// The source file token is replaced first.
func (j *Job) Expand(template string) string {
	s := strings.ReplaceAll(template, TokenSourceFile, j.SourceFile)
	return strings.ReplaceAll(s, TokenStdInFile, j.StdInFile)
}

// CompileCommands returns the expanded compile steps in order.
func (j *Job) CompileCommands() []string {
	return j.expandAll(j.CompileSteps)
}

// RunCommands returns the expanded run steps in order.
func (j *Job) RunCommands() []string {
	return j.expandAll(j.RunSteps)
}

// Compiled reports whether the job has at least one compile step.
func (j *Job) Compiled() bool {
	return len(j.CompileSteps) > 0
}

func (j *Job) expandAll(templates []string) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = j.Expand(t)
	}
	return out
}
