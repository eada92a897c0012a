package analyzer

import (
	"regexp"
	"strings"
)

// NoResult is reported when the analyzer printed nothing usable.
const NoResult = "No result"

var (
	escapeSequence = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	resultToken    = regexp.MustCompile(`[A-Za-z0-9_]+:[0-9]+\.[0-9]{2}%`)
)

// Result is the parsed analyzer outcome.
type Result struct {
	// RawOutput is the combined output with terminal escapes removed.
	RawOutput  string
	Text       string
	Label      string
	Confidence string
	ExitCode   int
	TimedOut   bool
}

// Succeeded reports whether the analyzer exited with status zero.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Parse cleans raw and, for a zero exit code, extracts the result text.
func Parse(raw string, exitCode int) Result {
	res := Result{RawOutput: Clean(raw), ExitCode: exitCode}
	if exitCode != 0 {
		return res
	}
	res.Text = Humanize(ExtractResult(res.RawOutput))
	if label, confidence, ok := strings.Cut(res.Text, ":"); ok {
		res.Label = label
		res.Confidence = confidence
	}
	return res
}

// Clean strips ANSI escape sequences and trailing whitespace from every line.
func Clean(raw string) string {
	stripped := escapeSequence.ReplaceAllString(raw, "")
	lines := strings.Split(strings.ReplaceAll(stripped, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ExtractResult picks the last label:NN.NN% token, else the last non-blank line, else NoResult.
func ExtractResult(clean string) string {
	if matches := resultToken.FindAllString(clean, -1); len(matches) > 0 {
		return matches[len(matches)-1]
	}

	lines := strings.Split(clean, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return NoResult
}

// Humanize replaces underscores with spaces in the part before the first colon.
// Text without a colon is returned unchanged.
func Humanize(result string) string {
	label, confidence, ok := strings.Cut(result, ":")
	if !ok {
		return result
	}
	return strings.ReplaceAll(label, "_", " ") + ":" + confidence
}
