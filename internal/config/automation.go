package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Automation is the tunable profile of the WeChat automation controller. Every settle delay
// stands in for a completion signal the target application does not expose.
type Automation struct {
	ProcessName    string      `yaml:"process_name"`
	FailSafe       *bool       `yaml:"fail_safe"`
	DiagnosticsDir string      `yaml:"diagnostics_dir"`
	IdleThreshold  Duration    `yaml:"idle_threshold"`
	IdleWait       Duration    `yaml:"idle_wait"`
	Timing         Timing      `yaml:"timing"`
	InputBox       []Candidate `yaml:"input_box"`
}

type Timing struct {
	ActionPause    Duration `yaml:"action_pause"`
	FocusPoll      Duration `yaml:"focus_poll"`
	FocusPollCount int      `yaml:"focus_poll_count"`
	SelectAll      Duration `yaml:"select_all"`
	ClearField     Duration `yaml:"clear_field"`
	ClipboardWrite Duration `yaml:"clipboard_write"`
	Paste          Duration `yaml:"paste"`
	SearchOpen     Duration `yaml:"search_open"`
	SearchClear    Duration `yaml:"search_clear"`
	SearchResults  Duration `yaml:"search_results"`
	InputBoxClick  Duration `yaml:"input_box_click"`
	InputBoxProbe  Duration `yaml:"input_box_probe"`
	InputBoxRetry  Duration `yaml:"input_box_retry"`
	SendSubmit     Duration `yaml:"send_submit"`
}

// Candidate kinds for the input-box ladder.
const (
	CandidateRelative = "relative"
	CandidateAbsolute = "absolute"
)

// Candidate is one rung of the input-box locator ladder.
//
// relative: X is a fraction of the window width from its left edge, BottomOffset is pixels up
// from the window's bottom edge.
// absolute: X and Y are fractions of the primary screen size.
type Candidate struct {
	Kind         string  `yaml:"kind"`
	X            float64 `yaml:"x"`
	Y            float64 `yaml:"y"`
	BottomOffset int     `yaml:"bottom_offset"`
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: scalar value required")
	}
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*d = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(dd)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// DefaultAutomation returns the profile tuned against WeChat 4.x on Windows.
func DefaultAutomation() Automation {
	failSafe := true
	return Automation{
		ProcessName:   "wechat",
		FailSafe:      &failSafe,
		IdleThreshold: Duration(500 * time.Millisecond),
		IdleWait:      Duration(2 * time.Second),
		Timing:        DefaultTiming(),
		InputBox:      DefaultInputBox(),
	}
}

func DefaultTiming() Timing {
	return Timing{
		ActionPause:    Duration(300 * time.Millisecond),
		FocusPoll:      Duration(100 * time.Millisecond),
		FocusPollCount: 10,
		SelectAll:      Duration(120 * time.Millisecond),
		ClearField:     Duration(250 * time.Millisecond),
		ClipboardWrite: Duration(250 * time.Millisecond),
		Paste:          Duration(600 * time.Millisecond),
		SearchOpen:     Duration(time.Second),
		SearchClear:    Duration(200 * time.Millisecond),
		SearchResults:  Duration(time.Second),
		InputBoxClick:  Duration(400 * time.Millisecond),
		InputBoxProbe:  Duration(100 * time.Millisecond),
		InputBoxRetry:  Duration(500 * time.Millisecond),
		SendSubmit:     Duration(600 * time.Millisecond),
	}
}

// DefaultInputBox is bottom-center at two depths, bottom-left third, bottom-right third, then a
// screen-relative fallback for degraded layouts.
func DefaultInputBox() []Candidate {
	return []Candidate{
		{Kind: CandidateRelative, X: 0.5, BottomOffset: 80},
		{Kind: CandidateRelative, X: 0.5, BottomOffset: 120},
		{Kind: CandidateRelative, X: 1.0 / 3, BottomOffset: 100},
		{Kind: CandidateRelative, X: 2.0 / 3, BottomOffset: 100},
		{Kind: CandidateAbsolute, X: 0.5, Y: 0.85},
	}
}

// FailSafeEnabled defaults to true when unset.
func (a Automation) FailSafeEnabled() bool {
	return a.FailSafe == nil || *a.FailSafe
}

// LoadAutomation reads a YAML profile and fills unset fields from DefaultAutomation.
// An empty path yields the defaults.
func LoadAutomation(path string) (Automation, error) {
	if path == "" {
		return DefaultAutomation(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Automation{}, fmt.Errorf("read automation profile: %w", err)
	}

	var a Automation
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil && !errors.Is(err, io.EOF) {
		return Automation{}, fmt.Errorf("parse automation profile %s: %w", path, err)
	}
	a.applyDefaults()

	if err := a.Validate(); err != nil {
		return Automation{}, fmt.Errorf("automation profile %s: %w", path, err)
	}
	return a, nil
}

func (a *Automation) applyDefaults() {
	def := DefaultAutomation()
	if strings.TrimSpace(a.ProcessName) == "" {
		a.ProcessName = def.ProcessName
	}
	if a.FailSafe == nil {
		a.FailSafe = def.FailSafe
	}
	if a.IdleThreshold == 0 {
		a.IdleThreshold = def.IdleThreshold
	}
	if a.IdleWait == 0 {
		a.IdleWait = def.IdleWait
	}
	if len(a.InputBox) == 0 {
		a.InputBox = def.InputBox
	}

	t, d := &a.Timing, def.Timing
	fill := func(v *Duration, fallback Duration) {
		if *v == 0 {
			*v = fallback
		}
	}
	fill(&t.ActionPause, d.ActionPause)
	fill(&t.FocusPoll, d.FocusPoll)
	fill(&t.SelectAll, d.SelectAll)
	fill(&t.ClearField, d.ClearField)
	fill(&t.ClipboardWrite, d.ClipboardWrite)
	fill(&t.Paste, d.Paste)
	fill(&t.SearchOpen, d.SearchOpen)
	fill(&t.SearchClear, d.SearchClear)
	fill(&t.SearchResults, d.SearchResults)
	fill(&t.InputBoxClick, d.InputBoxClick)
	fill(&t.InputBoxProbe, d.InputBoxProbe)
	fill(&t.InputBoxRetry, d.InputBoxRetry)
	fill(&t.SendSubmit, d.SendSubmit)
	if t.FocusPollCount == 0 {
		t.FocusPollCount = d.FocusPollCount
	}
}

// Validate checks the candidate ladder and timing sanity. A zero-value Automation is valid
// and means "use defaults".
func (a Automation) Validate() error {
	if a.Timing.FocusPollCount < 0 {
		return fmt.Errorf("focus_poll_count must not be negative")
	}
	if a.IdleWait < 0 || a.IdleThreshold < 0 {
		return fmt.Errorf("idle durations must not be negative")
	}
	if err := a.Timing.validate(); err != nil {
		return err
	}
	for i, c := range a.InputBox {
		switch c.Kind {
		case CandidateRelative:
			if c.X < 0 || c.X > 1 {
				return fmt.Errorf("input_box[%d]: x must be a fraction between 0 and 1", i)
			}
			if c.BottomOffset < 0 {
				return fmt.Errorf("input_box[%d]: bottom_offset must not be negative", i)
			}
		case CandidateAbsolute:
			if c.X < 0 || c.X > 1 || c.Y < 0 || c.Y > 1 {
				return fmt.Errorf("input_box[%d]: x and y must be fractions between 0 and 1", i)
			}
		default:
			return fmt.Errorf("input_box[%d]: unknown kind %q", i, c.Kind)
		}
	}
	return nil
}

func (t Timing) validate() error {
	for name, d := range map[string]Duration{
		"action_pause":    t.ActionPause,
		"focus_poll":      t.FocusPoll,
		"select_all":      t.SelectAll,
		"clear_field":     t.ClearField,
		"clipboard_write": t.ClipboardWrite,
		"paste":           t.Paste,
		"search_open":     t.SearchOpen,
		"search_clear":    t.SearchClear,
		"search_results":  t.SearchResults,
		"input_box_click": t.InputBoxClick,
		"input_box_probe": t.InputBoxProbe,
		"input_box_retry": t.InputBoxRetry,
		"send_submit":     t.SendSubmit,
	} {
		if d < 0 {
			return fmt.Errorf("timing.%s must not be negative, got %s", name, d.ToDuration())
		}
	}
	return nil
}
