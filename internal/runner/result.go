package runner

import "time"

// Result holds the outcome of one shell command.
type Result struct {
	StepID    string        // unique identifier for this invocation
	Command   string        // command string handed to the shell
	ExitCode  int           // process exit code; -1 if killed by a signal
	Stdout    []byte        // captured stdout (Capture only, may be truncated)
	Stderr    []byte        // copy of stderr (Capture only, may be truncated)
	Truncated bool          // true if captured output exceeded the size cap
	TimedOut  bool          // true if the step was killed by the timeout
	Duration  time.Duration // wall-clock time from start to exit
}

// Failed reports whether the command exited non-zero.
func (r *Result) Failed() bool {
	return r.ExitCode != 0
}
