package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAutomationEmptyPath(t *testing.T) {
	a, err := LoadAutomation("")
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultAutomation()
	if a.ProcessName != def.ProcessName || a.Timing != def.Timing || len(a.InputBox) != len(def.InputBox) {
		t.Errorf("LoadAutomation(\"\") = %+v, want defaults", a)
	}
	if !a.FailSafeEnabled() {
		t.Error("fail-safe should default to enabled")
	}
}

func TestLoadAutomationOverrides(t *testing.T) {
	path := writeProfile(t, `
process_name: Weixin
fail_safe: false
diagnostics_dir: C:\diag
idle_wait: 0s
timing:
  search_results: 2.5s
  focus_poll_count: 20
input_box:
  - kind: relative
    x: 0.4
    bottom_offset: 60
  - kind: absolute
    x: 0.5
    y: 0.9
`)

	a, err := LoadAutomation(path)
	if err != nil {
		t.Fatalf("LoadAutomation() error = %v", err)
	}

	if a.ProcessName != "Weixin" || a.DiagnosticsDir != `C:\diag` {
		t.Errorf("process=%q diagnostics=%q", a.ProcessName, a.DiagnosticsDir)
	}
	if a.FailSafeEnabled() {
		t.Error("fail_safe: false should disable the fail-safe")
	}
	if got := a.Timing.SearchResults.ToDuration(); got != 2500*time.Millisecond {
		t.Errorf("search_results = %s", got)
	}
	if a.Timing.FocusPollCount != 20 {
		t.Errorf("focus_poll_count = %d", a.Timing.FocusPollCount)
	}
	// Unset and zero durations fall back to the defaults.
	if a.Timing.Paste != DefaultTiming().Paste {
		t.Errorf("paste = %s, want default", a.Timing.Paste.ToDuration())
	}
	if a.IdleWait != DefaultAutomation().IdleWait {
		t.Errorf("idle_wait = %s, want default", a.IdleWait.ToDuration())
	}
	want := []Candidate{
		{Kind: CandidateRelative, X: 0.4, BottomOffset: 60},
		{Kind: CandidateAbsolute, X: 0.5, Y: 0.9},
	}
	if len(a.InputBox) != len(want) {
		t.Fatalf("input_box = %+v", a.InputBox)
	}
	for i := range want {
		if a.InputBox[i] != want[i] {
			t.Errorf("input_box[%d] = %+v, want %+v", i, a.InputBox[i], want[i])
		}
	}
}

func TestLoadAutomationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", "timing:\n  paste: soon\n"},
		{"duration must be scalar", "idle_wait: [1s]\n"},
		{"unknown kind", "input_box:\n  - kind: diagonal\n"},
		{"fraction out of range", "input_box:\n  - kind: relative\n    x: 1.5\n"},
		{"negative offset", "input_box:\n  - kind: relative\n    x: 0.5\n    bottom_offset: -10\n"},
		{"negative poll count", "timing:\n  focus_poll_count: -1\n"},
		{"not yaml", "::: not yaml"},
		{"misspelled section", "timming:\n  paste: 1s\n"},
		{"misspelled field", "timing:\n  pastee: 1s\n"},
		{"negative settle delay", "timing:\n  paste: -1s\n"},
		{"negative idle wait", "idle_wait: -2s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAutomation(writeProfile(t, tt.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadAutomation(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should be an error")
	}
}

func TestLoadAutomationEmptyFile(t *testing.T) {
	a, err := LoadAutomation(writeProfile(t, ""))
	if err != nil {
		t.Fatalf("empty profile should load: %v", err)
	}
	if a.Timing != DefaultTiming() {
		t.Errorf("timing = %+v, want defaults", a.Timing)
	}
}

func TestDurationYAML(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte("d: 1m30s"), &v); err != nil {
		t.Fatal(err)
	}
	if v.D.ToDuration() != 90*time.Second {
		t.Errorf("D = %s", v.D.ToDuration())
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "d: 1m30s\n" {
		t.Errorf("Marshal = %q", out)
	}
}

func TestDefaultInputBoxOrder(t *testing.T) {
	got := DefaultInputBox()
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[len(got)-1].Kind != CandidateAbsolute {
		t.Error("the absolute screen fallback should be tried last")
	}
	if err := (Automation{InputBox: got}).Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
