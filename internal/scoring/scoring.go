// Package scoring computes the points of a single answer against a question's weighted choices.
package scoring

import (
	"math"

	"github.com/victornm/judgeboard/internal/domain"
)

// Outcome describes how an answer was scored.
type Outcome struct {
	Matched         bool
	OptionWeight    float64
	MaxOptionWeight float64
	Points          float64
}

// QuestionWeight returns the point multiplier of q. An unset weight counts as 1.
func QuestionWeight(q domain.Question) float64 {
	if q.Weight == 0 {
		return 1
	}
	return q.Weight
}

// MaxWeight returns the highest choice weight of q, or 0 if q has no choices.
func MaxWeight(q domain.Question) float64 {
	if len(q.Choices) == 0 {
		return 0
	}

	m := math.Inf(-1)
	for _, c := range q.Choices {
		m = math.Max(m, c.Weight)
	}
	return m
}

// Evaluate scores text against q. The choice must match text exactly.
// Points are (selected weight / max weight) * question weight, and 0 when nothing matches
// or the max weight is not positive.
func Evaluate(q domain.Question, text string) Outcome {
	out := Outcome{MaxOptionWeight: MaxWeight(q)}

	idx := -1
	for i, c := range q.Choices {
		if c.Text == text {
			idx = i
			break
		}
	}
	if idx < 0 {
		return out
	}

	out.Matched = true
	out.OptionWeight = q.Choices[idx].Weight

	if out.MaxOptionWeight <= 0 {
		return out
	}

	p := (out.OptionWeight / out.MaxOptionWeight) * QuestionWeight(q)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return out
	}

	out.Points = p
	return out
}

// Points is a shorthand for Evaluate(q, text).Points.
func Points(q domain.Question, text string) float64 {
	return Evaluate(q, text).Points
}
