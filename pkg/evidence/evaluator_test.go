package evidence

import (
	"strings"
	"testing"
)

func TestEvaluate_KitchenRules(t *testing.T) {
	e := New(DefaultKitchenRules())

	tests := []struct {
		name        string
		conf        map[string]float64
		wantPresent bool
		wantReason  string
		wantScore   float64
	}{
		{
			name:        "stove anchor",
			conf:        map[string]float64{"Stove": 0.70},
			wantPresent: true,
			wantReason:  "Stove conf=0.70",
			wantScore:   3.0,
		},
		{
			name:        "stove at exact threshold",
			conf:        map[string]float64{"Stove": 0.55},
			wantPresent: true,
			wantReason:  "Stove conf=0.55",
			wantScore:   3.0,
		},
		{
			name:        "stove wins over everything else",
			conf:        map[string]float64{"Stove": 0.9, "Fridge": 0.9, "Basin": 0.9, "Pot": 0.9, "Kettle": 0.9},
			wantPresent: true,
			wantReason:  "Stove conf=0.90",
			wantScore:   3.0,
		},
		{
			name:        "fridge with support",
			conf:        map[string]float64{"Fridge": 0.65, "Kettle": 0.5},
			wantPresent: true,
			wantReason:  "Fridge+support conf=0.65",
			wantScore:   2.5,
		},
		{
			name:        "fridge alone falls through to score",
			conf:        map[string]float64{"Fridge": 0.65},
			wantPresent: false,
			wantReason:  ReasonInsufficient,
			wantScore:   2.5,
		},
		{
			name:        "basin and pot combo",
			conf:        map[string]float64{"Basin": 0.5, "Pot": 0.51},
			wantPresent: true,
			wantReason:  "Basin+Pot combo",
			wantScore:   2.5,
		},
		{
			name:        "basin and kettle below acceptance",
			conf:        map[string]float64{"Basin": 0.6, "Kettle": 0.6},
			wantPresent: false,
			wantReason:  ReasonInsufficient,
			wantScore:   2.5,
		},
		{
			name:        "below thresholds",
			conf:        map[string]float64{"Stove": 0.54, "Fridge": 0.59},
			wantPresent: false,
			wantReason:  ReasonInsufficient,
			wantScore:   0,
		},
		{
			name:        "empty map",
			conf:        map[string]float64{},
			wantPresent: false,
			wantReason:  ReasonInsufficient,
			wantScore:   0,
		},
		{
			name:        "unknown labels ignored",
			conf:        map[string]float64{"person": 0.99, "cup": 0.99},
			wantPresent: false,
			wantReason:  ReasonInsufficient,
			wantScore:   0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(tc.conf)
			if got.Present != tc.wantPresent {
				t.Errorf("Present: got %v, want %v", got.Present, tc.wantPresent)
			}
			if got.Reason != tc.wantReason {
				t.Errorf("Reason: got %q, want %q", got.Reason, tc.wantReason)
			}
			if got.Score != tc.wantScore {
				t.Errorf("Score: got %v, want %v", got.Score, tc.wantScore)
			}
		})
	}
}

func TestEvaluate_StrongAnchorScoreIgnoresOthers(t *testing.T) {
	e := New(DefaultKitchenRules())
	others := []map[string]float64{
		{},
		{"Fridge": 0.9},
		{"Basin": 0.9, "Pot": 0.9},
		{"Kettle": 0.1, "Pot": 0.2},
	}

	for _, extra := range others {
		conf := map[string]float64{"Stove": 0.8}
		for k, v := range extra {
			conf[k] = v
		}
		got := e.Evaluate(conf)
		if !got.Present || got.Score != 3.0 {
			t.Errorf("with %v: got %+v, want present with score 3.0", extra, got)
		}
	}
}

// abcRules has no anchor roles so rules 4 and 5 are reachable.
func abcRules() Rules {
	return Rules{
		Labels: map[string]LabelRule{
			"A": {Weight: 2.0, Threshold: 0.5},
			"B": {Weight: 1.0, Threshold: 0.5},
			"C": {Weight: 0.5, Threshold: 0.5},
			"D": {Weight: 0.25, Threshold: 0.5},
		},
		Bonuses: []Bonus{
			{Labels: []string{"A", "C"}, Increment: 0.5},
		},
		MinDistinct: 3,
		AcceptScore: 3.0,
	}
}

func TestEvaluate_DistinctObjects(t *testing.T) {
	e := New(abcRules())

	got := e.Evaluate(map[string]float64{"B": 0.6, "C": 0.6, "D": 0.6})

	if !got.Present {
		t.Fatalf("expected present, got %+v", got)
	}
	if got.Reason != "3+ objects: [B C D]" {
		t.Errorf("Reason: got %q", got.Reason)
	}
	if got.Score != 1.75 {
		t.Errorf("Score: got %v, want 1.75", got.Score)
	}
}

func TestEvaluate_ScoreBoundary(t *testing.T) {
	e := New(abcRules())

	tests := []struct {
		name        string
		conf        map[string]float64
		wantPresent bool
		wantScore   float64
	}{
		{
			name:        "weights exactly at acceptance",
			conf:        map[string]float64{"A": 0.6, "B": 0.6},
			wantPresent: true,
			wantScore:   3.0,
		},
		{
			name:        "bonus reaches acceptance",
			conf:        map[string]float64{"A": 0.6, "C": 0.6},
			wantPresent: true,
			wantScore:   3.0,
		},
		{
			name:        "strictly below acceptance",
			conf:        map[string]float64{"A": 0.6, "D": 0.6},
			wantPresent: false,
			wantScore:   2.25,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(tc.conf)
			if got.Present != tc.wantPresent || got.Score != tc.wantScore {
				t.Errorf("got %+v, want present=%v score=%v", got, tc.wantPresent, tc.wantScore)
			}
			if tc.wantPresent && !strings.HasPrefix(got.Reason, "score 3.00") {
				t.Errorf("Reason: got %q", got.Reason)
			}
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := New(abcRules())
	conf := map[string]float64{"B": 0.9, "C": 0.9, "D": 0.9, "A": 0.1}

	first := e.Evaluate(conf)
	for i := 0; i < 20; i++ {
		if got := e.Evaluate(conf); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}
