package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/plantdx/internal/logging"
)

// Invoker runs an Analyzer and parses what it printed.
type Invoker struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewInvoker wraps an analyzer so each run is parsed and logged.
func NewInvoker(a Analyzer, logger *zap.Logger) *Invoker {
	return &Invoker{analyzer: a, logger: logger.Named("analysis_invoker")}
}

// Analyze classifies the image at absPath. A non-zero exit or a timeout is not an error:
// it is reported through Result.Succeeded. Errors mean the analyzer could not be run.
func (i *Invoker) Analyze(ctx context.Context, absPath string) (*Result, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(i.logger, "analyzer.analyze", requestID)

	run, err := i.analyzer.Run(ctx, absPath)
	if err != nil {
		return nil, logging.NewOperationError("analyzer.analyze", requestID, err)
	}

	res := Parse(run.Output, run.ExitCode)
	res.TimedOut = run.TimedOut

	if res.Succeeded() {
		opLogger.Info("analysis completed", zap.String("result", res.Text))
	} else {
		opLogger.Warn("analysis failed",
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("timed_out", res.TimedOut))
	}
	return &res, nil
}
