package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/compilerun/internal/report"
	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	JobID string `json:"job_id" jsonschema:"the job ID from a run_job result"`
	Phase string `json:"phase,omitempty" jsonschema:"restrict output to one phase: compile or run"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.JobID == "" {
		return errorResult("job_id is required")
	}

	rep, err := h.store.Load(params.JobID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load job %s: %v", params.JobID, err))
	}

	phases := []*report.PhaseReport{&rep.Compile, &rep.Run}
	if params.Phase != "" {
		p := rep.Phase(params.Phase)
		if p == nil {
			return errorResult(fmt.Sprintf("Unknown phase %q: want %q or %q", params.Phase, report.Compile, report.Run))
		}
		phases = []*report.PhaseReport{p}
	}

	return textResult(formatInspectOutput(rep, phases))
}

func formatInspectOutput(rep *report.JobReport, phases []*report.PhaseReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Job: %s (started %s)\n", rep.ID, humanize.Time(rep.Started))
	if rep.SourceFile != "" {
		fmt.Fprintf(&b, "Source: %s\n", rep.SourceFile)
	}
	if rep.StdInFile != "" {
		fmt.Fprintf(&b, "Stdin: %s\n", rep.StdInFile)
	}

	for _, p := range phases {
		fmt.Fprintln(&b)
		writePhaseSummary(&b, p)
		for _, s := range p.Steps {
			writeCaptured(&b, s.Index, "stdout", s.Output, s.Truncated)
			writeCaptured(&b, s.Index, "stderr", s.Stderr, s.Truncated)
		}
	}

	if len(rep.FailedSteps()) == 0 {
		fmt.Fprintln(&b, "\nNo failing steps.")
	}
	return b.String()
}

func writeCaptured(b *strings.Builder, index int, stream, text string, truncated bool) {
	if text == "" {
		return
	}
	fmt.Fprintf(b, "\n--- step %d %s (%s", index, stream, humanize.Bytes(uint64(len(text))))
	if truncated {
		b.WriteString(", truncated")
	}
	b.WriteString(") ---\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
}
