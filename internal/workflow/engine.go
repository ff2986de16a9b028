// Package workflow runs a job's compile phase and then its run phase,
// timing each one. It is consumed by both the CLI and the MCP server.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/deixis/compilerun/internal/job"
	"github.com/deixis/compilerun/internal/report"
	"github.com/deixis/compilerun/internal/runner"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StepRunner executes a single shell command.
// Implemented by runner.Runner.
type StepRunner interface {
	Capture(ctx context.Context, command string) (*runner.Result, error)
	Stream(ctx context.Context, command string) (*runner.Result, error)
}

// Policy decides, per phase, whether a failing step aborts the job.
type Policy struct {
	CompileFailFast bool
	RunFailFast     bool
}

// DefaultPolicy aborts on the first failing compile step and attempts
// every run step regardless of exit status.
func DefaultPolicy() Policy {
	return Policy{CompileFailFast: true, RunFailFast: false}
}

// Engine holds shared dependencies for job execution.
type Engine struct {
	Runner StepRunner
	Policy Policy
	Log    logrus.FieldLogger // nil discards
}

// StepError is returned when a step fails in a fail-fast phase.
type StepError struct {
	Phase    string
	Index    int
	Command  string
	ExitCode int
	TimedOut bool
}

func (e *StepError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s step %d timed out: %s", e.Phase, e.Index, e.Command)
	}
	return fmt.Sprintf("%s step %d exited with status %d: %s", e.Phase, e.Index, e.ExitCode, e.Command)
}

// Run executes the compile phase and then the run phase of j.
//
// The returned report is always non-nil. A non-nil error means the job was
// aborted: either a fail-fast phase saw a failing step (*StepError) or a
// step could not be started at all. In both cases the report carries no
// sentinel line.
func (e *Engine) Run(ctx context.Context, j *job.Job) (*report.JobReport, error) {
	rep := &report.JobReport{
		ID:         uuid.New().String(),
		SourceFile: j.SourceFile,
		StdInFile:  j.StdInFile,
		Started:    time.Now(),
	}
	phases := Plan(j, e.Policy)
	log := e.log().WithField("job", rep.ID)

	var err error
	rep.Compile, err = e.runPhase(ctx, log, phases[0])
	if err != nil {
		rep.Run = report.PhaseReport{Name: phases[1].Name, FailFast: phases[1].FailFast, Skipped: true}
		rep.Failure = failureOf(rep.Compile, err)
		return rep, err
	}

	rep.Run, err = e.runPhase(ctx, log, phases[1])
	if err != nil {
		rep.Failure = failureOf(rep.Run, err)
		return rep, err
	}

	log.WithFields(logrus.Fields{
		"compile": rep.Compile.Duration,
		"run":     rep.Run.Duration,
	}).Debug("job finished")
	return rep, nil
}

// runPhase executes every command of p in order and returns the phase
// record, including its own elapsed time.
func (e *Engine) runPhase(ctx context.Context, log logrus.FieldLogger, p Phase) (report.PhaseReport, error) {
	start := time.Now()
	pr := report.PhaseReport{Name: p.Name, FailFast: p.FailFast}

	for i, command := range p.Commands {
		stepLog := log.WithFields(logrus.Fields{"phase": p.Name, "step": i})
		stepLog.WithField("command", command).Debug("starting step")

		var (
			res *runner.Result
			err error
		)
		if p.Capture {
			res, err = e.Runner.Capture(ctx, command)
		} else {
			res, err = e.Runner.Stream(ctx, command)
		}
		if err != nil {
			pr.Duration = time.Since(start)
			stepLog.WithError(err).Error("step could not be started")
			return pr, fmt.Errorf("%s step %d: %w", p.Name, i, err)
		}

		pr.Steps = append(pr.Steps, report.StepRecord{
			Index:     i,
			StepID:    res.StepID,
			Command:   command,
			ExitCode:  res.ExitCode,
			Duration:  res.Duration,
			Output:    string(res.Stdout),
			Stderr:    string(res.Stderr),
			Truncated: res.Truncated,
			TimedOut:  res.TimedOut,
		})

		stepLog = stepLog.WithFields(logrus.Fields{"exit_code": res.ExitCode, "duration": res.Duration})
		if !res.Failed() {
			stepLog.Debug("step finished")
			continue
		}
		if p.FailFast {
			pr.Duration = time.Since(start)
			stepLog.Error("step failed, aborting job")
			return pr, &StepError{
				Phase:    p.Name,
				Index:    i,
				Command:  command,
				ExitCode: res.ExitCode,
				TimedOut: res.TimedOut,
			}
		}
		stepLog.Warn("step failed, continuing")
	}

	pr.Duration = time.Since(start)
	return pr, nil
}

// failureOf describes the step that aborted pr. A step that could not be
// started has no record and no exit code.
func failureOf(pr report.PhaseReport, err error) *report.Failure {
	var se *StepError
	if errors.As(err, &se) {
		return &report.Failure{Phase: pr.Name, Index: se.Index, Command: se.Command, ExitCode: se.ExitCode}
	}
	return &report.Failure{Phase: pr.Name, Index: len(pr.Steps), ExitCode: -1}
}

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (e *Engine) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return discard
}
