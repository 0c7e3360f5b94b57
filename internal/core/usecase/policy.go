package usecase

import (
	"strings"
	"unicode/utf8"
)

// DefaultAnalyticalTriggers are the words that mark a long question as analytical.
var DefaultAnalyticalTriggers = []string{
	"relationship", "analysis", "compare", "trends", "patterns",
	"correlation", "complex", "analytical", "understand",
}

const DefaultComplexLengthThreshold = 100

// ComplexityPolicy routes a question to the analytical path when it is longer
// than MinLength characters and contains a trigger word. It is a coarse
// heuristic kept as configuration, not a classifier.
type ComplexityPolicy struct {
	MinLength int
	Triggers  []string
}

func DefaultComplexityPolicy() ComplexityPolicy {
	return ComplexityPolicy{MinLength: DefaultComplexLengthThreshold, Triggers: DefaultAnalyticalTriggers}
}

func (p ComplexityPolicy) IsComplex(question string) bool {
	question = strings.TrimSpace(question)
	if utf8.RuneCountInString(question) <= p.MinLength {
		return false
	}
	tokens := toTokenSet(question)
	for _, trigger := range p.Triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" {
			continue
		}
		if _, ok := tokens[trigger]; ok {
			return true
		}
	}
	return false
}
