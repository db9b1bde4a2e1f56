package detection

import (
	"image"
	"math"
	"testing"
)

func TestBox_Area(t *testing.T) {
	tests := []struct {
		name   string
		box    Box
		expect int
	}{
		{name: "unit", box: Box{0, 0, 1, 1}, expect: 1},
		{name: "offset", box: Box{10, 20, 30, 60}, expect: 800},
		{name: "inverted corners", box: Box{30, 60, 10, 20}, expect: 800},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.box.Area(); got != tc.expect {
				t.Errorf("Area: got %d, want %d", got, tc.expect)
			}
		})
	}
}

func TestBoxFromRect(t *testing.T) {
	b := BoxFromRect(image.Rect(1, 2, 3, 4))
	if b != (Box{1, 2, 3, 4}) {
		t.Errorf("BoxFromRect: got %v", b)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{-0.1, 0},
		{1.5, 1},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		got := Detection{Confidence: tc.in}.Sanitize().Confidence
		if got != tc.want {
			t.Errorf("Sanitize(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBestByLabel(t *testing.T) {
	dets := []Detection{
		{Label: "Stove", Confidence: 0.4},
		{Label: "Stove", Confidence: 0.7},
		{Label: "Pot", Confidence: 0.6},
		{Label: "", Confidence: 0.9},
		{Label: "Basin", Confidence: math.NaN()},
	}

	best := BestByLabel(dets)

	if best["Stove"] != 0.7 {
		t.Errorf("Stove: got %v, want 0.7", best["Stove"])
	}
	if best["Pot"] != 0.6 {
		t.Errorf("Pot: got %v, want 0.6", best["Pot"])
	}
	if _, ok := best[""]; ok {
		t.Error("empty label should be dropped")
	}
	if best["Basin"] != 0 {
		t.Errorf("NaN confidence should read as 0, got %v", best["Basin"])
	}
}

func TestSelectBest(t *testing.T) {
	dets := []Detection{
		{Label: "glasses", Confidence: 0.5},
		{Label: "cup", Confidence: 0.95},
		{Label: "Spectacle", Confidence: 0.8},
	}

	tests := []struct {
		name      string
		keep      func(Detection) bool
		expectNil bool
		expect    string
	}{
		{name: "no filter", keep: nil, expect: "cup"},
		{
			name:   "filtered",
			keep:   func(d Detection) bool { return d.Label != "cup" },
			expect: "Spectacle",
		},
		{
			name:      "nothing qualifies",
			keep:      func(Detection) bool { return false },
			expectNil: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(dets, tc.keep)
			if tc.expectNil {
				if best != nil {
					t.Errorf("SelectBest: expected nil, got %+v", best)
				}
				return
			}
			if best == nil {
				t.Fatal("SelectBest: expected non-nil, got nil")
			}
			if best.Label != tc.expect {
				t.Errorf("SelectBest: got %q, want %q", best.Label, tc.expect)
			}
		})
	}
}

func TestSelectBest_Empty(t *testing.T) {
	if SelectBest(nil, nil) != nil {
		t.Error("SelectBest(nil): expected nil")
	}
}

func TestStatic_ReplaysScript(t *testing.T) {
	s := &Static{Script: [][]Detection{
		{{Label: "a", Confidence: 0.1}},
		{{Label: "b", Confidence: 0.2}},
	}}

	first, _ := s.Detect(nil)
	second, _ := s.Detect(nil)
	third, _ := s.Detect(nil)

	if first[0].Label != "a" || second[0].Label != "b" || third[0].Label != "b" {
		t.Errorf("unexpected replay: %v %v %v", first, second, third)
	}
	if s.Calls() != 3 {
		t.Errorf("Calls: got %d, want 3", s.Calls())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: input size should be positive, got %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
}
