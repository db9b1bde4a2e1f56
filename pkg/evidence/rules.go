package evidence

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LabelRule is the weight and acceptance threshold for one label.
type LabelRule struct {
	Weight    float64 `yaml:"weight" json:"weight"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// Roles names which configured labels the priority rules look at.
type Roles struct {
	// StrongAnchor alone is enough (rule 1).
	StrongAnchor string `yaml:"strong_anchor" json:"strong_anchor"`

	// SecondaryAnchor counts when any Support label also qualifies (rule 2).
	SecondaryAnchor string   `yaml:"secondary_anchor" json:"secondary_anchor"`
	Support         []string `yaml:"support" json:"support"`

	// Combo is a pair that counts together (rule 3).
	Combo []string `yaml:"combo" json:"combo"`
}

// Bonus adds Increment to the aggregate score when both labels qualify.
type Bonus struct {
	Labels    []string `yaml:"labels" json:"labels"`
	Increment float64  `yaml:"increment" json:"increment"`
}

// Rules is the full evaluator configuration.
type Rules struct {
	Labels  map[string]LabelRule `yaml:"labels" json:"labels"`
	Roles   Roles                `yaml:"roles" json:"roles"`
	Bonuses []Bonus              `yaml:"bonuses" json:"bonuses"`

	// MinDistinct is how many qualifying labels trigger rule 4.
	MinDistinct int `yaml:"min_distinct" json:"min_distinct"`

	// AcceptScore is the inclusive rule-5 acceptance threshold.
	AcceptScore float64 `yaml:"accept_score" json:"accept_score"`
}

// DefaultKitchenRules returns the kitchen anchor table.
func DefaultKitchenRules() Rules {
	return Rules{
		Labels: map[string]LabelRule{
			"Stove":  {Weight: 3.0, Threshold: 0.55},
			"Fridge": {Weight: 2.5, Threshold: 0.60},
			"Basin":  {Weight: 1.5, Threshold: 0.50},
			"Pot":    {Weight: 1.0, Threshold: 0.50},
			"Kettle": {Weight: 1.0, Threshold: 0.50},
		},
		Roles: Roles{
			StrongAnchor:    "Stove",
			SecondaryAnchor: "Fridge",
			Support:         []string{"Basin", "Pot", "Kettle"},
			Combo:           []string{"Basin", "Pot"},
		},
		Bonuses: []Bonus{
			{Labels: []string{"Basin", "Pot"}, Increment: 1.0},
			{Labels: []string{"Stove", "Kettle"}, Increment: 0.5},
		},
		MinDistinct: 3,
		AcceptScore: 3.0,
	}
}

// Validate reports every inconsistency in the rule table.
func (r Rules) Validate() error {
	var errs []error

	if len(r.Labels) == 0 {
		errs = append(errs, errors.New("labels: at least one label is required"))
	}
	for name, lr := range r.Labels {
		if lr.Threshold < 0 || lr.Threshold > 1 {
			errs = append(errs, fmt.Errorf("labels.%s: threshold %.2f outside [0,1]", name, lr.Threshold))
		}
		if lr.Weight < 0 {
			errs = append(errs, fmt.Errorf("labels.%s: negative weight %.2f", name, lr.Weight))
		}
	}

	known := func(field, label string) {
		if label == "" {
			return
		}
		if _, ok := r.Labels[label]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown label %q", field, label))
		}
	}

	known("roles.strong_anchor", r.Roles.StrongAnchor)
	known("roles.secondary_anchor", r.Roles.SecondaryAnchor)
	for _, s := range r.Roles.Support {
		known("roles.support", s)
	}
	if len(r.Roles.Combo) != 0 && len(r.Roles.Combo) != 2 {
		errs = append(errs, fmt.Errorf("roles.combo: need exactly 2 labels, got %d", len(r.Roles.Combo)))
	}
	for _, c := range r.Roles.Combo {
		known("roles.combo", c)
	}
	for i, b := range r.Bonuses {
		if len(b.Labels) != 2 {
			errs = append(errs, fmt.Errorf("bonuses[%d]: need exactly 2 labels, got %d", i, len(b.Labels)))
		}
		for _, l := range b.Labels {
			known(fmt.Sprintf("bonuses[%d]", i), l)
		}
	}
	if r.MinDistinct < 1 {
		errs = append(errs, fmt.Errorf("min_distinct: must be >= 1, got %d", r.MinDistinct))
	}

	return errors.Join(errs...)
}

// ParseRules decodes a YAML rule table. The document must list labels;
// min_distinct and accept_score default to 3 and 3.0 when omitted.
func ParseRules(r io.Reader) (Rules, error) {
	rules := Rules{MinDistinct: 3, AcceptScore: 3.0}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("evidence: decode rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("evidence: invalid rules: %w", err)
	}
	return rules, nil
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("evidence: open %q: %w", path, err)
	}
	defer f.Close()
	return ParseRules(f)
}
