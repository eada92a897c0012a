package usecase

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

	"go.uber.org/zap"

	"github.com/example/plantdx/internal/analyzer"
	"github.com/example/plantdx/internal/logging"
	"github.com/example/plantdx/internal/upload"
)

// ImageGateway validates and stores an uploaded image.
type ImageGateway interface {
	Submit(ctx context.Context, file *multipart.FileHeader) (*upload.Image, error)
}

// AnalysisInvoker classifies a stored image.
type AnalysisInvoker interface {
	Analyze(ctx context.Context, absPath string) (*analyzer.Result, error)
}

// Diagnosis pairs a stored image with what the analyzer said about it.
type Diagnosis struct {
	Image  *upload.Image
	Result *analyzer.Result
}

// Succeeded reports whether the analyzer produced a result rather than a failure.
func (d *Diagnosis) Succeeded() bool {
	return d.Result != nil && d.Result.Succeeded()
}

// DiagnosisUseCase stores an upload and analyzes it within one request.
type DiagnosisUseCase struct {
	gateway ImageGateway
	invoker AnalysisInvoker
	metrics *Metrics
	logger  *zap.Logger
}

// NewDiagnosisUseCase wires the gateway and invoker into the diagnosis flow.
func NewDiagnosisUseCase(gateway ImageGateway, invoker AnalysisInvoker, logger *zap.Logger) *DiagnosisUseCase {
	return &DiagnosisUseCase{
		gateway: gateway,
		invoker: invoker,
		metrics: NewMetrics(),
		logger:  logger.Named("diagnosis_usecase"),
	}
}

// Diagnose stores file and runs the analyzer on it. A *upload.ValidationError is returned
// before anything is stored or executed; an analyzer failure is reported through the
// returned Diagnosis, not as an error.
func (uc *DiagnosisUseCase) Diagnose(ctx context.Context, file *multipart.FileHeader) (*Diagnosis, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.diagnose", requestID)

	img, err := uc.gateway.Submit(ctx, file)
	if err != nil {
		var vErr *upload.ValidationError
		if errors.As(err, &vErr) {
			uc.metrics.recordRejected()
			return nil, err
		}
		uc.metrics.recordError()
		wrapped := logging.NewOperationError("usecase.submit", requestID, err)
		opLogger.Error("failed to store upload", zap.Error(wrapped))
		return nil, wrapped
	}

	start := time.Now()
	res, err := uc.invoker.Analyze(ctx, img.StoragePath)
	latency := time.Since(start)
	if err != nil {
		uc.metrics.recordError()
		wrapped := logging.NewOperationError("usecase.analyze", requestID, err)
		opLogger.Error("analyzer unavailable", zap.Error(wrapped), zap.String("image", img.StorageName))
		return nil, wrapped
	}

	d := &Diagnosis{Image: img, Result: res}
	uc.metrics.recordAnalysis(d, latency)
	opLogger.Info("diagnosis finished",
		zap.String("image", img.StorageName),
		zap.Bool("succeeded", res.Succeeded()),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("latency", latency))
	return d, nil
}
