package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultKitchenRules_Valid(t *testing.T) {
	if err := DefaultKitchenRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	r := Rules{
		Labels: map[string]LabelRule{
			"Stove": {Weight: -1, Threshold: 1.5},
		},
		Roles: Roles{
			StrongAnchor: "Oven",
			Combo:        []string{"Stove"},
		},
		MinDistinct: 0,
	}

	err := r.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"threshold", "negative weight", `unknown label "Oven"`, "roles.combo", "min_distinct"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestParseRules_Overrides(t *testing.T) {
	doc := `
labels:
  Oven: {weight: 3.0, threshold: 0.4}
  Sink: {weight: 1.5, threshold: 0.5}
roles:
  strong_anchor: Oven
accept_score: 2.5
`
	r, err := ParseRules(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	if len(r.Labels) != 2 {
		t.Errorf("Labels: got %d, want 2", len(r.Labels))
	}
	if r.Roles.StrongAnchor != "Oven" {
		t.Errorf("StrongAnchor: got %q", r.Roles.StrongAnchor)
	}
	if r.AcceptScore != 2.5 {
		t.Errorf("AcceptScore: got %v", r.AcceptScore)
	}
	if r.MinDistinct != 3 {
		t.Errorf("MinDistinct should keep default 3, got %d", r.MinDistinct)
	}

	got := New(r).Evaluate(map[string]float64{"Oven": 0.45})
	if !got.Present || got.Reason != "Oven conf=0.45" {
		t.Errorf("Evaluate: got %+v", got)
	}
}

func TestParseRules_RejectsUnknownFields(t *testing.T) {
	_, err := ParseRules(strings.NewReader("labelz: {}\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRules_RejectsRolesOutsideTable(t *testing.T) {
	doc := `
labels:
  Sink: {weight: 1.5, threshold: 0.5}
roles:
  strong_anchor: Stove
`
	if _, err := ParseRules(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for roles naming missing labels")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
labels:
  Stove:  {weight: 3.0, threshold: 0.55}
  Fridge: {weight: 2.5, threshold: 0.60}
  Basin:  {weight: 1.5, threshold: 0.50}
  Pot:    {weight: 1.0, threshold: 0.50}
  Kettle: {weight: 1.0, threshold: 0.50}
roles:
  strong_anchor: Stove
  secondary_anchor: Fridge
  support: [Basin, Pot, Kettle]
  combo: [Basin, Pot]
bonuses:
  - {labels: [Basin, Pot], increment: 1.0}
  - {labels: [Stove, Kettle], increment: 0.5}
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	def := DefaultKitchenRules()
	if r.Roles.StrongAnchor != def.Roles.StrongAnchor || len(r.Roles.Support) != 3 || len(r.Bonuses) != 2 {
		t.Errorf("roles not decoded: %+v", r)
	}
	if r.AcceptScore != def.AcceptScore || r.MinDistinct != def.MinDistinct {
		t.Errorf("defaults not applied: %+v", r)
	}

	got := New(r).Evaluate(map[string]float64{"Stove": 0.70})
	if want := New(def).Evaluate(map[string]float64{"Stove": 0.70}); got != want {
		t.Errorf("file rules disagree with defaults: got %+v, want %+v", got, want)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadRules: expected error for missing file")
	}
}
