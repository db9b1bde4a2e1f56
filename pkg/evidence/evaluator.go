// Package evidence decides whether a frame shows the target zone from the
// per-label confidences of an object detector.
//
// Rules are checked in a fixed priority order and the first match wins:
//
//  1. strong anchor qualifies
//  2. secondary anchor qualifies together with any support label
//  3. both combo labels qualify
//  4. MinDistinct or more labels qualify
//  5. aggregate weight plus pair bonuses reaches AcceptScore
//
// The rules overlap, so order decides which reason and score are reported.
package evidence

import (
	"fmt"
	"math"
	"sort"
)

// ReasonInsufficient is reported when no rule accepts the frame.
const ReasonInsufficient = "insufficient combination"

// Result is the per-frame decision.
type Result struct {
	Present bool    `json:"present"`
	Reason  string  `json:"reason"`
	Score   float64 `json:"score"`
}

// Evaluator applies a Rules table. It holds no mutable state and is safe for
// concurrent use.
type Evaluator struct {
	rules Rules
}

// New creates an evaluator for rules.
func New(rules Rules) *Evaluator {
	return &Evaluator{rules: rules}
}

// Rules returns the table the evaluator was built with.
func (e *Evaluator) Rules() Rules {
	return e.rules
}

// qualifies reports whether label is configured and meets its threshold.
// Missing labels read as confidence 0.
func (e *Evaluator) qualifies(conf map[string]float64, label string) bool {
	lr, ok := e.rules.Labels[label]
	if !ok || label == "" {
		return false
	}
	c := conf[label]
	if math.IsNaN(c) {
		return false
	}
	return c >= lr.Threshold
}

func (e *Evaluator) weight(label string) float64 {
	return e.rules.Labels[label].Weight
}

// Evaluate returns the decision for one frame's best-confidence-per-label map.
func (e *Evaluator) Evaluate(conf map[string]float64) Result {
	roles := e.rules.Roles

	if a := roles.StrongAnchor; e.qualifies(conf, a) {
		return Result{
			Present: true,
			Reason:  fmt.Sprintf("%s conf=%.2f", a, conf[a]),
			Score:   e.weight(a),
		}
	}

	if a := roles.SecondaryAnchor; e.qualifies(conf, a) {
		for _, s := range roles.Support {
			if e.qualifies(conf, s) {
				return Result{
					Present: true,
					Reason:  fmt.Sprintf("%s+support conf=%.2f", a, conf[a]),
					Score:   e.weight(a),
				}
			}
		}
	}

	if len(roles.Combo) == 2 && e.qualifies(conf, roles.Combo[0]) && e.qualifies(conf, roles.Combo[1]) {
		return Result{
			Present: true,
			Reason:  comboReason(roles.Combo),
			Score:   e.weight(roles.Combo[0]) + e.weight(roles.Combo[1]),
		}
	}

	var valid []string
	for label := range e.rules.Labels {
		if e.qualifies(conf, label) {
			valid = append(valid, label)
		}
	}
	sort.Strings(valid)

	score := 0.0
	for _, label := range valid {
		score += e.weight(label)
	}

	if len(valid) >= e.rules.MinDistinct {
		return Result{
			Present: true,
			Reason:  fmt.Sprintf("%d+ objects: %v", e.rules.MinDistinct, valid),
			Score:   score,
		}
	}

	for _, b := range e.rules.Bonuses {
		if len(b.Labels) == 2 && e.qualifies(conf, b.Labels[0]) && e.qualifies(conf, b.Labels[1]) {
			score += b.Increment
		}
	}

	if score >= e.rules.AcceptScore {
		return Result{
			Present: true,
			Reason:  fmt.Sprintf("score %.2f >= %.2f", score, e.rules.AcceptScore),
			Score:   score,
		}
	}

	return Result{Present: false, Reason: ReasonInsufficient, Score: score}
}

func comboReason(combo []string) string {
	return combo[0] + "+" + combo[1] + " combo"
}
