package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/plantdx/internal/logging"
)

// DefaultTimeout is the wall-clock ceiling for one analyzer run.
const DefaultTimeout = 120 * time.Second

const defaultWaitDelay = 2 * time.Second

// ErrStopped is returned by Run once the analyzer has been closed.
var ErrStopped = errors.New("analyzer stopped")

// Resolve turns path (relative to root unless absolute) into the absolute location of an
// executable regular file. Any problem is reported as *ConfigurationError.
func Resolve(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &ConfigurationError{Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &ConfigurationError{Path: abs, Err: err}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &ConfigurationError{Path: resolved, Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", &ConfigurationError{Path: resolved, Err: errors.New("not a regular file")}
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", &ConfigurationError{Path: resolved, Err: errors.New("not executable")}
	}
	return resolved, nil
}

// ProcessAnalyzer runs the analyzer as `<path> <image>` and captures stdout and stderr together.
type ProcessAnalyzer struct {
	path      string
	timeout   time.Duration
	waitDelay time.Duration
	logger    *zap.Logger

	lifetime context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	closed   bool
	running  sync.WaitGroup
}

var _ Analyzer = (*ProcessAnalyzer)(nil)

// NewProcessAnalyzer expects an already resolved executable path.
func NewProcessAnalyzer(path string, timeout time.Duration, logger *zap.Logger) (*ProcessAnalyzer, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("analyzer timeout must be positive, got %s", timeout)
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &ProcessAnalyzer{
		path:      path,
		timeout:   timeout,
		waitDelay: defaultWaitDelay,
		logger:    logger.Named("process_analyzer"),
		lifetime:  lifetime,
		stop:      stop,
	}, nil
}

// Close kills the process groups of runs still in progress and waits for them to return.
// Later calls to Run fail with ErrStopped.
func (p *ProcessAnalyzer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.stop()
	p.running.Wait()
	return nil
}

func (p *ProcessAnalyzer) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.running.Add(1)
	return true
}

// Path is the executable being invoked.
func (p *ProcessAnalyzer) Path() string {
	return p.path
}

// Run executes the analyzer. Cancellation of ctx is ignored; only the timeout or Close stops
// the process, which is then killed together with its children. A timeout is reported as
// TimedOut. The error is non-nil only when the process could not be started.
func (p *ProcessAnalyzer) Run(ctx context.Context, imagePath string) (Run, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(p.logger, "analyzer.run", requestID)

	if !p.begin() {
		return Run{}, ErrStopped
	}
	defer p.running.Done()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	stopOnClose := context.AfterFunc(p.lifetime, cancel)
	defer stopOnClose()

	var output bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.path, imagePath)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = p.waitDelay
	killProcessGroup(cmd)

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		opLogger.Warn("analyzer timed out",
			zap.Duration("timeout", p.timeout),
			zap.Duration("elapsed", elapsed))
		return Run{
			ExitCode: -1,
			Output:   withNote(output.String(), fmt.Sprintf("analyzer timed out after %s", p.timeout)),
			TimedOut: true,
		}, nil
	}
	if err != nil && p.lifetime.Err() != nil {
		opLogger.Warn("analyzer killed on shutdown", zap.Duration("elapsed", elapsed))
		return Run{
			ExitCode: -1,
			Output:   withNote(output.String(), "analyzer stopped: service shutting down"),
		}, nil
	}

	run := Run{Output: output.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		run.ExitCode = 0
	case errors.As(err, &exitErr):
		run.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		run.ExitCode = cmd.ProcessState.ExitCode()
	default:
		opLogger.Error("analyzer failed to start", zap.Error(err), zap.String("path", p.path))
		return Run{}, &ConfigurationError{Path: p.path, Err: err}
	}

	opLogger.Info("analyzer finished",
		zap.Int("exit_code", run.ExitCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("output_bytes", len(run.Output)))
	return run, nil
}

func withNote(out, note string) string {
	if out != "" && out[len(out)-1] != '\n' {
		out += "\n"
	}
	return out + note
}
