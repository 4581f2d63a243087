// Package sandbox runs untrusted artifacts inside isolated containers.
package sandbox

import (
	"context"
	"fmt"
)

// RunSpec describes one sandboxed run of a submitted artifact.
type RunSpec struct {
	// ArtifactPath is the absolute host path of the artifact to execute.
	ArtifactPath string
	// JobID tags the container for traceability.
	JobID string
}

// RunResult is the outcome of a completed run. A non-zero ExitCode means
// the submitted program failed; Output carries combined stdout/stderr.
type RunResult struct {
	ExitCode int
	Output   string
}

// Runner executes an artifact in an isolated environment. Implementations
// must remove the container on every exit path, including timeouts, and
// respect context cancellation as the run deadline.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}

// InfraError marks failures of the container runtime itself (image pull,
// create, start), as opposed to the submitted program exiting non-zero.
// Both map to a failed job, but they are reported distinctly.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}
