package analyzer

import (
	"context"
	"fmt"
)

// Run is the unparsed outcome of one analyzer invocation.
type Run struct {
	ExitCode int
	Output   string
	TimedOut bool
}

// Analyzer runs the external classifier against one image file.
type Analyzer interface {
	Run(ctx context.Context, imagePath string) (Run, error)
}

// ConfigurationError means the analyzer executable cannot be used at all.
type ConfigurationError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("analyzer %q unusable: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
