package workflow

import (
	"fmt"
	"strings"

	"github.com/deixis/compilerun/internal/job"
	"github.com/deixis/compilerun/internal/report"
	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
)

// Phase is one ordered list of expanded commands.
type Phase struct {
	Name     string
	Commands []string
	FailFast bool
	Capture  bool // collect stdout instead of forwarding it
}

// Plan expands j into its compile and run phases without executing
// anything. The compile phase is always first.
func Plan(j *job.Job, p Policy) []Phase {
	return []Phase{
		{Name: report.Compile, Commands: j.CompileCommands(), FailFast: p.CompileFailFast, Capture: true},
		{Name: report.Run, Commands: j.RunCommands(), FailFast: p.RunFailFast},
	}
}

// FormatPlan renders phases as the exact argv each step will be run with.
// Phase names are bold when colored is set and the terminal allows it.
func FormatPlan(phases []Phase, shell []string, colored bool) string {
	heading := color.New(color.Bold)
	if !colored {
		heading.DisableColor()
	}
	var b strings.Builder
	for i, p := range phases {
		if i > 0 {
			fmt.Fprintln(&b)
		}
		mode := "best effort"
		if p.FailFast {
			mode = "fail fast"
		}
		fmt.Fprintf(&b, "%s (%d steps, %s)\n", heading.Sprint(p.Name), len(p.Commands), mode)
		if len(p.Commands) == 0 {
			fmt.Fprintln(&b, "  (none)")
			continue
		}
		for j, c := range p.Commands {
			argv := append(append([]string{}, shell...), c)
			fmt.Fprintf(&b, "  %d. %s\n", j+1, shellquote.Join(argv...))
		}
	}
	return b.String()
}
