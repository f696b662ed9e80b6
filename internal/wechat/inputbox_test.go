package wechat

import (
	"context"
	"slices"
	"testing"

	"github.com/joncrangle/wechat-mcp/internal/config"
)

func TestCandidatePoints(t *testing.T) {
	rect := Rect{Left: 100, Top: 100, Right: 900, Bottom: 700}
	got := CandidatePoints(config.DefaultInputBox(), rect, 1920, 1080)
	want := []Point{
		{X: 500, Y: 620},
		{X: 500, Y: 580},
		{X: 366, Y: 600},
		{X: 633, Y: 600},
		{X: 960, Y: 918},
	}
	if !slices.Equal(got, want) {
		t.Errorf("CandidatePoints() = %v, want %v", got, want)
	}
}

func TestCandidatePointsExactThirds(t *testing.T) {
	rect := Rect{Left: 0, Top: 0, Right: 300, Bottom: 300}
	cands := []config.Candidate{
		{Kind: config.CandidateRelative, X: 1.0 / 3, BottomOffset: 100},
		{Kind: config.CandidateRelative, X: 2.0 / 3, BottomOffset: 100},
	}
	got := CandidatePoints(cands, rect, 0, 0)
	want := []Point{{X: 100, Y: 200}, {X: 200, Y: 200}}
	if !slices.Equal(got, want) {
		t.Errorf("CandidatePoints() = %v, want %v", got, want)
	}
}

func TestLocateInputBox(t *testing.T) {
	t.Run("first candidate accepted", func(t *testing.T) {
		h := newHarness(mainWindow)
		ok, err := h.c.locateInputBox(context.Background())
		if err != nil || !ok {
			t.Fatalf("locateInputBox() = %v, %v", ok, err)
		}
		want := []string{"click 500,620", "hotkey a", "hotkey backspace"}
		if got := h.rec.all(); !slices.Equal(got, want) {
			t.Errorf("actions = %v, want %v", got, want)
		}
	})

	t.Run("falls through rejected candidates", func(t *testing.T) {
		h := newHarness(mainWindow)
		h.desktop.clickErr = func(x, y int) error {
			if y != 600 {
				return errInjected
			}
			return nil
		}
		ok, err := h.c.locateInputBox(context.Background())
		if err != nil || !ok {
			t.Fatalf("locateInputBox() = %v, %v", ok, err)
		}
		if got := h.rec.count("click "); got != 1 {
			t.Errorf("accepted clicks = %d, want 1", got)
		}
		if !slices.Contains(h.rec.all(), "click 366,600") {
			t.Errorf("expected bottom-left-third candidate, got %v", h.rec.all())
		}
	})

	t.Run("all candidates rejected", func(t *testing.T) {
		h := newHarness(mainWindow)
		h.desktop.clickErr = func(int, int) error { return errInjected }
		ok, err := h.c.locateInputBox(context.Background())
		if err != nil || ok {
			t.Fatalf("locateInputBox() = %v, %v; want false, nil", ok, err)
		}
		if got := h.rec.count("rejected click"); got != 5 {
			t.Errorf("rejected clicks = %d, want 5", got)
		}
	})

	t.Run("window gone", func(t *testing.T) {
		h := newHarness()
		ok, err := h.c.locateInputBox(context.Background())
		if err != nil || ok {
			t.Fatalf("locateInputBox() = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("fail-safe aborts the ladder", func(t *testing.T) {
		h := newHarness(mainWindow)
		h.desktop.cursor = Point{X: 0, Y: 0}
		ok, err := h.c.locateInputBox(context.Background())
		if ok || err == nil {
			t.Fatalf("locateInputBox() = %v, %v; want fail-safe error", ok, err)
		}
		if h.rec.input() {
			t.Errorf("input simulated after fail-safe: %v", h.rec.all())
		}
	})
}
