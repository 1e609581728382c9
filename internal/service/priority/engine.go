package priority

import (
	"sort"

	"github.com/jwalitptl/triage-api/internal/model"
)

// RuleMatch explains why a rule fired.
type RuleMatch struct {
	Rule          string         `json:"rule"`
	Priority      model.Priority `json:"priority"`
	Justification string         `json:"justification"`
}

// Assessment is the full engine output kept for audit and display.
type Assessment struct {
	Computed  model.Priority  `json:"computed_priority"`
	Manual    *model.Priority `json:"manual_priority,omitempty"`
	Effective model.Priority  `json:"effective_priority"`
	Triggered []RuleMatch     `json:"triggered_rules"`
}

// Engine maps validated vitals to a priority using first-match rules.
type Engine struct {
	rules []Rule
}

// NewEngine uses DefaultRules when none are given. Rules are kept in
// severity order so that a custom table cannot under-triage by accident.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Engine{rules: ordered}
}

// Calculate returns the priority of the first matching rule, P5 otherwise.
func (e *Engine) Calculate(v model.VitalSigns) model.Priority {
	for _, r := range e.rules {
		if r.Match(v) {
			return r.Priority
		}
	}
	return model.PriorityNonUrgent
}

// Evaluate reports the computed priority and every rule that fired.
func (e *Engine) Evaluate(v model.VitalSigns) Assessment {
	a := Assessment{Computed: model.PriorityNonUrgent, Triggered: []RuleMatch{}}
	for _, r := range e.rules {
		if !r.Match(v) {
			continue
		}
		if len(a.Triggered) == 0 {
			a.Computed = r.Priority
		}
		a.Triggered = append(a.Triggered, RuleMatch{
			Rule:          r.Name,
			Priority:      r.Priority,
			Justification: r.Justification,
		})
	}
	a.Effective = a.Computed
	return a
}

// Assess evaluates vitals and applies an optional manual override. The
// computed priority is always retained.
func (e *Engine) Assess(v model.VitalSigns, manual *int) (Assessment, error) {
	a := e.Evaluate(v)
	if manual == nil {
		return a, nil
	}
	p, err := model.ParsePriority(*manual)
	if err != nil {
		return Assessment{}, err
	}
	a.Manual = &p
	a.Effective = p
	return a, nil
}
