// Package compilerun runs the compile and run phases of a single job and
// reports their wall-clock durations.
package compilerun

// Version is the compilerun release version.
const Version = "v0.1.0"
