package analyzer

import "testing"

func TestParseSuccessfulRuns(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantText       string
		wantLabel      string
		wantConfidence string
	}{
		{
			name:           "colored token is cleaned and humanized",
			raw:            "\x1b[32mleaf_spot:87.50%\x1b[0m",
			wantText:       "leaf spot:87.50%",
			wantLabel:      "leaf spot",
			wantConfidence: "87.50%",
		},
		{
			name:           "last token wins over earlier percentages",
			raw:            "progress:10.00%\nprogress:99.99%\nwarmup_ratio:12.50%\nSomeDisease:93.25%\n",
			wantText:       "SomeDisease:93.25%",
			wantLabel:      "SomeDisease",
			wantConfidence: "93.25%",
		},
		{
			name:           "token after debug lines from the analyzer",
			raw:            "PROJECT_ROOT: /srv/app\nMODEL_PATH:   /srv/app/model.keras\n1/1 [==============================] - 0s 80ms/step\nTomato_Late_blight:91.04%\n",
			wantText:       "Tomato Late blight:91.04%",
			wantLabel:      "Tomato Late blight",
			wantConfidence: "91.04%",
		},
		{
			name:     "no token falls back to last non-blank line verbatim",
			raw:      "loading model...\ndone.\nleaf_spot detected",
			wantText: "leaf_spot detected",
		},
		{
			name:     "trailing blank lines are skipped",
			raw:      "first\n  healthy plant  \n\n   \n",
			wantText: "healthy plant",
		},
		{
			name:     "blank output yields sentinel",
			raw:      "\x1b[2K\x1b[1G  \n\t\n",
			wantText: NoResult,
		},
		{
			name:     "empty output yields sentinel",
			raw:      "",
			wantText: NoResult,
		},
		{
			name:     "single decimal is not a token",
			raw:      "leaf_spot:87.5%",
			wantText: "leaf spot:87.5%",
			// fallback line still carries a colon, so it is split and humanized
			wantLabel:      "leaf spot",
			wantConfidence: "87.5%",
		},
		{
			name:           "only the first colon splits",
			raw:            "note: see_log:line 4",
			wantText:       "note: see_log:line 4",
			wantLabel:      "note",
			wantConfidence: " see_log:line 4",
		},
		{
			name:           "token embedded in a longer line",
			raw:            "result => Pepper__bell___healthy:99.12% (top-1)",
			wantText:       "Pepper  bell   healthy:99.12%",
			wantLabel:      "Pepper  bell   healthy",
			wantConfidence: "99.12%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw, 0)

			if !res.Succeeded() {
				t.Fatal("expected success for exit code 0")
			}
			if res.Text != tt.wantText {
				t.Fatalf("text: got %q, want %q", res.Text, tt.wantText)
			}
			if res.Label != tt.wantLabel {
				t.Fatalf("label: got %q, want %q", res.Label, tt.wantLabel)
			}
			if res.Confidence != tt.wantConfidence {
				t.Fatalf("confidence: got %q, want %q", res.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestParseFailedRunKeepsRawOutputOnly(t *testing.T) {
	res := Parse("error: model file missing\n", 1)

	if res.Succeeded() {
		t.Fatal("expected failure for exit code 1")
	}
	if res.RawOutput != "error: model file missing" {
		t.Fatalf("unexpected raw output %q", res.RawOutput)
	}
	if res.Text != "" || res.Label != "" || res.Confidence != "" {
		t.Fatalf("expected no parsed result on failure, got %+v", res)
	}
}

func TestParseFailedRunIgnoresTokens(t *testing.T) {
	res := Parse("leaf_spot:87.50%\nTraceback (most recent call last):", 2)

	if res.Text != "" {
		t.Fatalf("expected no extraction on non-zero exit, got %q", res.Text)
	}
	if res.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", res.ExitCode)
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"\x1b[1;31mred\x1b[0m":          "red",
		"a  \r\nb\t\n":                  "a\nb",
		"\x1b[2Kline\x1b[10D":           "line",
		"keep\x1b]0;title\x07":          "keep\x1b]0;title\x07",
		"one\n\ntwo\n\n":                "one\n\ntwo",
		"progress 50%\rprogress 100%\n": "progress 50%\rprogress 100%",
	}
	for raw, want := range tests {
		if got := Clean(raw); got != want {
			t.Errorf("Clean(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"leaf_blight:12.00%": "leaf blight:12.00%",
		"leaf_spot detected": "leaf_spot detected",
		"a_b:c_d:e_f":        "a b:c_d:e_f",
		NoResult:             NoResult,
		"__:50.00%":          "  :50.00%",
	}
	for in, want := range tests {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
