package usecase

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/example/plantdx/internal/analyzer"
	"github.com/example/plantdx/internal/logging"
	"github.com/example/plantdx/internal/upload"
)

type stubGateway struct {
	image *upload.Image
	err   error
	calls int
}

func (s *stubGateway) Submit(ctx context.Context, file *multipart.FileHeader) (*upload.Image, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.image, nil
}

type stubInvoker struct {
	result  *analyzer.Result
	err     error
	calls   int
	gotPath string
}

func (s *stubInvoker) Analyze(ctx context.Context, absPath string) (*analyzer.Result, error) {
	s.calls++
	s.gotPath = absPath
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func storedImage() *upload.Image {
	return &upload.Image{
		StorageName: "1700000000_abcdEFGH.png",
		StoragePath: "/srv/public/uploads/1700000000_abcdEFGH.png",
		PublicPath:  "uploads/1700000000_abcdEFGH.png",
	}
}

func TestDiagnoseRunsAnalyzerOnStoredPath(t *testing.T) {
	result := analyzer.Parse("leaf_spot:87.50%", 0)
	gw := &stubGateway{image: storedImage()}
	inv := &stubInvoker{result: &result}
	uc := NewDiagnosisUseCase(gw, inv, zap.NewNop())

	d, err := uc.Diagnose(context.Background(), &multipart.FileHeader{Filename: "leaf.png"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if inv.gotPath != "/srv/public/uploads/1700000000_abcdEFGH.png" {
		t.Fatalf("analyzer got unexpected path %q", inv.gotPath)
	}
	if !d.Succeeded() || d.Result.Text != "leaf spot:87.50%" {
		t.Fatalf("unexpected diagnosis %+v", d.Result)
	}
}

func TestDiagnoseValidationSkipsAnalyzer(t *testing.T) {
	vErr := &upload.ValidationError{Field: "image", Reason: "The image field is required.", Status: http.StatusBadRequest}
	gw := &stubGateway{err: vErr}
	inv := &stubInvoker{}
	uc := NewDiagnosisUseCase(gw, inv, zap.NewNop())

	_, err := uc.Diagnose(context.Background(), nil)

	var got *upload.ValidationError
	if !errors.As(err, &got) || got != vErr {
		t.Fatalf("expected the validation error, got %v", err)
	}
	if inv.calls != 0 {
		t.Fatalf("expected analyzer not to run, got %d calls", inv.calls)
	}
}

func TestDiagnoseAnalyzerFailureIsNotAnError(t *testing.T) {
	result := analyzer.Parse("error: model file missing", 1)
	uc := NewDiagnosisUseCase(&stubGateway{image: storedImage()}, &stubInvoker{result: &result}, zap.NewNop())

	d, err := uc.Diagnose(context.Background(), &multipart.FileHeader{Filename: "leaf.png"})
	if err != nil {
		t.Fatalf("expected diagnosis, got error %v", err)
	}
	if d.Succeeded() {
		t.Fatal("expected failed diagnosis")
	}
	if d.Result.RawOutput != "error: model file missing" {
		t.Fatalf("unexpected raw output %q", d.Result.RawOutput)
	}
}

func TestDiagnoseWrapsInfrastructureErrors(t *testing.T) {
	ctx := logging.ContextWithRequestID(context.Background(), "req-3")

	tests := []struct {
		name      string
		gateway   *stubGateway
		invoker   *stubInvoker
		operation string
	}{
		{
			name:      "store failure",
			gateway:   &stubGateway{err: errors.New("disk full")},
			invoker:   &stubInvoker{},
			operation: "usecase.submit",
		},
		{
			name:      "analyzer missing",
			gateway:   &stubGateway{image: storedImage()},
			invoker:   &stubInvoker{err: &analyzer.ConfigurationError{Path: "/a", Err: errors.New("gone")}},
			operation: "usecase.analyze",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewDiagnosisUseCase(tt.gateway, tt.invoker, zap.NewNop())

			_, err := uc.Diagnose(ctx, &multipart.FileHeader{Filename: "leaf.png"})

			var opErr *logging.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected OperationError, got %T", err)
			}
			if opErr.Operation != tt.operation || opErr.RequestID != "req-3" {
				t.Fatalf("unexpected operation error %+v", opErr)
			}
		})
	}
}

func TestMetricsSummaryCountsOutcomes(t *testing.T) {
	ok := analyzer.Parse("Healthy:99.00%", 0)
	failed := analyzer.Parse("boom", 1)
	timedOut := analyzer.Parse("", -1)
	timedOut.TimedOut = true

	gw := &stubGateway{image: storedImage()}
	inv := &stubInvoker{}
	uc := NewDiagnosisUseCase(gw, inv, zap.NewNop())

	for _, res := range []analyzer.Result{ok, ok, failed, timedOut} {
		res := res
		inv.result = &res
		if _, err := uc.Diagnose(context.Background(), &multipart.FileHeader{Filename: "a.png"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	gw.err = upload.NotAnImage(upload.FieldName)
	if _, err := uc.Diagnose(context.Background(), &multipart.FileHeader{Filename: "a.txt"}); err == nil {
		t.Fatal("expected validation error")
	}

	summary := uc.GetMetricsSummary()
	if summary.TotalRequests != 5 {
		t.Fatalf("expected 5 requests, got %d", summary.TotalRequests)
	}
	if summary.RejectedUploads != 1 {
		t.Fatalf("expected 1 rejected upload, got %d", summary.RejectedUploads)
	}
	if summary.SuccessfulAnalyses != 2 || summary.FailedAnalyses != 2 || summary.TimedOutAnalyses != 1 {
		t.Fatalf("unexpected analysis counters: %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %f", summary.SuccessRate)
	}
}

func TestMetricsSummaryEmpty(t *testing.T) {
	summary := NewMetrics().Summary()
	if summary != (MetricsSummary{}) {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}
