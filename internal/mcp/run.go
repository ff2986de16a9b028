package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deixis/compilerun/internal/job"
	"github.com/deixis/compilerun/internal/report"
	"github.com/deixis/compilerun/internal/runner"
	"github.com/deixis/compilerun/internal/workflow"
	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type jobParams struct {
	SourceFile   *string  `json:"sourceFile,omitempty" jsonschema:"value substituted for {{sourceFile}}; required when the job has any step"`
	StdInFile    *string  `json:"stdInFile,omitempty" jsonschema:"value substituted for {{stdInFile}}; required when the job has any step"`
	CompileSteps []string `json:"compileSteps,omitempty" jsonschema:"shell commands run first; the first failure aborts the job"`
	RunSteps     []string `json:"runSteps" jsonschema:"shell commands run after a successful compile; failures do not stop later steps"`
}

// job validates the params exactly as a job given on the command line.
func (p jobParams) job() (*job.Job, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return job.Parse(data)
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params jobParams) (*mcp.CallToolResult, any, error) {
	j, err := params.job()
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid job: %v", err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// stdio carries the protocol, so streamed run output is kept instead.
	stdout := runner.NewLimitedBuffer(h.cfg.MaxOutputBytes())
	stderr := runner.NewLimitedBuffer(h.cfg.MaxOutputBytes())

	rep, err := h.engine(stdout, stderr).Run(ctx, j)
	if saveErr := h.store.Save(rep); saveErr != nil {
		h.log.WithError(saveErr).WithField("job", rep.ID).Warn("job report not stored")
	}

	var se *workflow.StepError
	if err != nil && !errors.As(err, &se) {
		return errorResult(fmt.Sprintf("Job %s could not run: %v", rep.ID, err))
	}
	return textResult(formatRunOutput(rep, stdout, stderr))
}

func formatRunOutput(rep *report.JobReport, stdout, stderr *runner.LimitedBuffer) string {
	var b strings.Builder

	status := "PASS"
	if !rep.Succeeded() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Job: %s\n", rep.ID)
	if f := rep.Failure; f != nil {
		fmt.Fprintf(&b, "Failed: %s step %d exited with status %d: %s\n", f.Phase, f.Index, f.ExitCode, f.Command)
	}
	fmt.Fprintln(&b)

	writePhaseSummary(&b, &rep.Compile)
	writePhaseSummary(&b, &rep.Run)

	writeStream(&b, "Run output", stdout)
	writeStream(&b, "Run stderr", stderr)

	if s := rep.Sentinel(); s != "" {
		fmt.Fprintln(&b)
		b.WriteString(s)
	}
	if len(rep.Compile.Steps) > 0 {
		fmt.Fprintf(&b, "\nCompile output: inspect_job(job_id=%q, phase=%q)\n", rep.ID, report.Compile)
	}
	return b.String()
}

// writePhaseSummary writes one line per phase and one per step.
func writePhaseSummary(b *strings.Builder, p *report.PhaseReport) {
	if p.Skipped {
		fmt.Fprintf(b, "%s: skipped\n", p.Name)
		return
	}
	fmt.Fprintf(b, "%s: %d steps in %s\n", p.Name, len(p.Steps), formatDuration(p.Duration))
	for _, s := range p.Steps {
		fmt.Fprintf(b, "  [%d] %s  %s  %s\n", s.Index, stepStatus(s), formatDuration(s.Duration), s.Command)
	}
}

func writeStream(b *strings.Builder, title string, buf *runner.LimitedBuffer) {
	if len(buf.Bytes()) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%s", title, humanize.Bytes(uint64(len(buf.Bytes()))))
	if buf.Truncated() {
		b.WriteString(", truncated")
	}
	b.WriteString("):\n")
	b.WriteString(buf.String())
	if !strings.HasSuffix(buf.String(), "\n") {
		b.WriteByte('\n')
	}
}

func stepStatus(s report.StepRecord) string {
	switch {
	case s.TimedOut:
		return "timeout"
	case s.ExitCode != 0:
		return fmt.Sprintf("exit %d", s.ExitCode)
	}
	return "ok"
}

// formatDuration renders d with grouped nanoseconds, matching the units
// of the timing line.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%s ns", humanize.Comma(d.Nanoseconds()))
}

func (h *handler) planHandler(ctx context.Context, req *mcp.CallToolRequest, params jobParams) (*mcp.CallToolResult, any, error) {
	j, err := params.job()
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid job: %v", err))
	}

	h.mu.Lock()
	policy := workflow.Policy{
		CompileFailFast: h.cfg.CompileFailFast(),
		RunFailFast:     h.cfg.RunFailFast(),
	}
	shell, dir := h.cfg.Shell(), h.dir
	h.mu.Unlock()

	var b strings.Builder
	if dir != "" {
		fmt.Fprintf(&b, "Directory: %s\n\n", dir)
	}
	b.WriteString(workflow.FormatPlan(workflow.Plan(j, policy), shell, false))
	return textResult(b.String())
}
