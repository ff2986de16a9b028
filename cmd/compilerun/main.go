// Command compilerun compiles and runs a job described in JSON, then
// prints how long each phase took.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/deixis/compilerun"
	"github.com/deixis/compilerun/internal/config"
	"github.com/deixis/compilerun/internal/job"
	crmcp "github.com/deixis/compilerun/internal/mcp"
	"github.com/deixis/compilerun/internal/report"
	"github.com/deixis/compilerun/internal/runner"
	"github.com/deixis/compilerun/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"
)

// Process exit statuses.
const (
	exitOK    = 0
	exitFail  = 1 // malformed job or aborted job
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runMain(rest, stdin, stdout, stderr)
	case "plan":
		return planMain(rest, stdout, stderr)
	case "mcp":
		return mcpMain(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, compilerun.Version)
		return exitOK
	case "help", "-h", "--help":
		usage(stderr)
		return exitOK
	default:
		// compilerun '<job-json>' is shorthand for compilerun run.
		return runMain(args, stdin, stdout, stderr)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: compilerun [run] [flags] '<job-json>'
       compilerun <command> [flags]

Commands:
  run         Compile and run a job, then print its timing line (default)
  plan        Print the commands a job would execute
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

A job is a JSON object:
  {"sourceFile": "...", "stdInFile": "...", "compileSteps": [...], "runSteps": [...]}

Use "compilerun <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jobFile := fs.String("f", "", "read the job from a JSON or YAML file instead of the argument")
	cfgPath := fs.String("config", "", "config file (default: nearest .compilerun)")
	verbose := fs.Bool("v", false, "log every step to stderr")
	timeout := fs.Duration("timeout", 0, "override configured per-step timeout (e.g. 30s)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		newLogger(stderr, &config.Config{}, *verbose).Error(err)
		return exitFail
	}
	logger := newLogger(stderr, cfg, *verbose)

	j, err := loadJob(*jobFile, fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		logger.WithError(err).Error("invalid job")
		return exitFail
	}

	defer passInterrupts(logger)()

	eng := newEngine(cfg, *timeout, logger, stdin, stdout, stderr)
	rep, err := eng.Run(context.Background(), j)
	if err != nil {
		logger.WithError(err).WithField("job", rep.ID).Error("job aborted")
		return exitFail
	}
	fmt.Fprint(stdout, rep.Sentinel())
	return exitOK
}

// passInterrupts keeps an interrupt from terminating the job. The
// foreground step still receives it from the terminal and the job moves
// on to the next step. The returned func restores default handling.
func passInterrupts(logger log.FieldLogger) (restore func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for {
			select {
			case <-sigs:
				logger.Warn("interrupt received, continuing with next step")
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// --- plan ---

func planMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jobFile := fs.String("f", "", "read the job from a JSON or YAML file instead of the argument")
	cfgPath := fs.String("config", "", "config file (default: nearest .compilerun)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := newLogger(stderr, &config.Config{}, false)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Error(err)
		return exitFail
	}

	j, err := loadJob(*jobFile, fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		logger.WithError(err).Error("invalid job")
		return exitFail
	}

	policy := workflow.Policy{CompileFailFast: cfg.CompileFailFast(), RunFailFast: cfg.RunFailFast()}
	_, colored := stdout.(*os.File)
	fmt.Fprint(stdout, workflow.FormatPlan(workflow.Plan(j, policy), cfg.Shell(), colored))
	return exitOK
}

// --- mcp ---

func mcpMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	cfgPath := fs.String("config", "", "config file (default: nearest .compilerun)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *instructions {
		fmt.Fprint(stdout, crmcp.Instructions)
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		newLogger(stderr, &config.Config{}, *verbose).Error(err)
		return exitFail
	}
	logger := newLogger(stderr, cfg, *verbose)

	if err := serve(ctx, cfg, *httpAddr, logger); err != nil {
		logger.Error(err)
		return exitFail
	}
	return exitOK
}

func serve(ctx context.Context, cfg *config.Config, httpAddr string, logger *log.Logger) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}

	store := report.NewLRUStore(5, report.NewDiskStore())
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("removing job reports")
		}
	}()

	server := crmcp.NewServer(cfg, dir, store, logger)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *log.Logger) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: newRouter(server),
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.WithField("addr", addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// newRouter mounts the streamable MCP handler at /mcp next to a liveness
// probe.
func newRouter(server *mcpsdk.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Handle("/mcp", mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	))
	return r
}

// --- shared ---

// loadJob decodes the job from file when set, otherwise from the single
// positional argument.
func loadJob(file string, args []string) (*job.Job, error) {
	switch {
	case file != "" && len(args) == 0:
		return job.Load(file)
	case file == "" && len(args) == 1:
		return job.Parse([]byte(args[0]))
	}
	return nil, errUsage
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return loaded.Config, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining working directory: %w", err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded.Config, nil
}

func newLogger(w io.Writer, cfg *config.Config, verbose bool) *log.Logger {
	logger := log.New()
	logger.SetOutput(w)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetLevel(cfg.LogLevel())
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// newEngine wires a runner whose steps use the given streams.
func newEngine(cfg *config.Config, timeoutOverride time.Duration, logger log.FieldLogger, stdin io.Reader, stdout, stderr io.Writer) *workflow.Engine {
	timeout := cfg.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}

	return &workflow.Engine{
		Runner: &runner.Runner{
			Shell:     cfg.Shell(),
			Timeout:   timeout,
			MaxOutput: cfg.MaxOutputBytes(),
			Stdin:     stdin,
			Stdout:    stdout,
			Stderr:    stderr,
		},
		Policy: workflow.Policy{
			CompileFailFast: cfg.CompileFailFast(),
			RunFailFast:     cfg.RunFailFast(),
		},
		Log: logger,
	}
}
