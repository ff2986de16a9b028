// Package report holds the structured record of a job execution and
// stores recent records for later inspection.
package report

import (
	"fmt"
	"time"
)

// SentinelPrefix marks the line that carries a job's timings.
const SentinelPrefix = "*-COMPILE::EOF-*"

// Phase names.
const (
	Compile = "compile"
	Run     = "run"
)

// Store persists and retrieves job reports.
type Store interface {
	Save(report *JobReport) error
	Load(id string) (*JobReport, error)
}

// JobReport is the record of one job execution.
type JobReport struct {
	ID         string      `json:"id"`
	SourceFile string      `json:"source_file"`
	StdInFile  string      `json:"std_in_file"`
	Started    time.Time   `json:"started"`
	Compile    PhaseReport `json:"compile"`
	Run        PhaseReport `json:"run"`
	Failure    *Failure    `json:"failure,omitempty"`
}

// PhaseReport is the record of one phase.
type PhaseReport struct {
	Name     string        `json:"name"`
	FailFast bool          `json:"fail_fast"`
	Skipped  bool          `json:"skipped,omitempty"` // never reached
	Duration time.Duration `json:"duration_ns"`
	Steps    []StepRecord  `json:"steps,omitempty"`
}

// StepRecord is the record of one executed step.
type StepRecord struct {
	Index     int           `json:"index"`
	StepID    string        `json:"step_id"`
	Command   string        `json:"command"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration_ns"`
	Output    string        `json:"output,omitempty"` // captured stdout
	Stderr    string        `json:"stderr,omitempty"` // captured stderr
	Truncated bool          `json:"truncated,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// Failure describes the step that aborted a fail-fast phase.
type Failure struct {
	Phase    string `json:"phase"`
	Index    int    `json:"index"`
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
}

// Succeeded reports whether the job ran to completion.
func (r *JobReport) Succeeded() bool {
	return r.Failure == nil
}

// Sentinel returns the timing line for a completed job, or "" if the job
// was aborted.
func (r *JobReport) Sentinel() string {
	if !r.Succeeded() {
		return ""
	}
	return FormatSentinel(r.Run.Duration, r.Compile.Duration)
}

// Phase returns the named phase record, or nil for an unknown name.
func (r *JobReport) Phase(name string) *PhaseReport {
	switch name {
	case Compile:
		return &r.Compile
	case Run:
		return &r.Run
	}
	return nil
}

// FailedSteps returns every step with a non-zero exit code, compile phase first.
func (r *JobReport) FailedSteps() []StepRecord {
	var out []StepRecord
	for _, p := range []*PhaseReport{&r.Compile, &r.Run} {
		for _, s := range p.Steps {
			if s.ExitCode != 0 {
				out = append(out, s)
			}
		}
	}
	return out
}

// FormatSentinel renders the timing line. The run duration comes first.
func FormatSentinel(run, compile time.Duration) string {
	return fmt.Sprintf("%s %d %d\n", SentinelPrefix, run.Nanoseconds(), compile.Nanoseconds())
}
