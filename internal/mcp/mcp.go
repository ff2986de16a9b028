// Package mcp provides the compilerun MCP server, registering the job
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/deixis/compilerun"
	"github.com/deixis/compilerun/internal/config"
	"github.com/deixis/compilerun/internal/report"
	"github.com/deixis/compilerun/internal/runner"
	"github.com/deixis/compilerun/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	// mu serialises jobs and guards cfg and dir, which the client may
	// replace through its roots.
	mu    sync.Mutex
	cfg   *config.Config
	dir   string
	store report.Store
	log   logrus.FieldLogger
}

// NewServer creates an MCP server with all compilerun tools registered.
// Steps run in dir. log may be nil.
func NewServer(cfg *config.Config, dir string, store report.Store, log logrus.FieldLogger) *mcp.Server {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	h := &handler{
		cfg:   cfg,
		dir:   dir,
		store: store,
		log:   log,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateDirFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "compilerun", Version: compilerun.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_job",
		Description: `Compile and run a job, then report its timings.

Compile steps run first and stop at the first failure. Run steps always all run.
Placeholders {{sourceFile}} and {{stdInFile}} are replaced in every step.
On success the result ends with "*-COMPILE::EOF-* <run_ns> <compile_ns>".
The job is stored for drill-down via inspect_job.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "plan_job",
		Description: "Show the exact shell invocations a job would execute, without running anything.",
	}, h.planHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "inspect_job",
		Description: `Show the recorded steps of a job started with run_job.

Includes the captured output of compile steps and the exit code and duration of every step.
Optionally restrict to one phase ("compile" or "run").`,
	}, h.inspectHandler)

	return s
}

// engine builds a workflow engine whose streamed output goes to stdout
// and stderr. Callers must hold h.mu.
func (h *handler) engine(stdout, stderr io.Writer) *workflow.Engine {
	return &workflow.Engine{
		Runner: &runner.Runner{
			Shell:     h.cfg.Shell(),
			Dir:       h.dir,
			Timeout:   h.cfg.Timeout(),
			MaxOutput: h.cfg.MaxOutputBytes(),
			Stdout:    stdout,
			Stderr:    stderr,
		},
		Policy: workflow.Policy{
			CompileFailFast: h.cfg.CompileFailFast(),
			RunFailFast:     h.cfg.RunFailFast(),
		},
		Log: h.log,
	}
}

// updateDirFromRoots queries the client for MCP roots and switches the
// working directory and config to the first file root, if any.
// This is called during session initialization, before any tool calls.
func (h *handler) updateDirFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	dir := u.Path

	loaded, err := config.Load(dir)
	if err != nil {
		h.log.WithError(err).WithField("dir", dir).Warn("ignoring client root")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.dir = dir
	h.cfg = loaded.Config
	h.log.WithField("dir", dir).Info("working directory set from client root")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
