package curriculum

import (
	"math"
	"strings"
)

const defaultSeniorityLevel = 0.5

// DepthScore returns how deep module moduleID of a topic should go, from 0
// (very basic) up to the configured maximum.
func DepthScore(t Thresholds, seniority string, mastery, moduleID int) float64 {
	level, ok := t.Depth.SeniorityLevels[seniority]
	if !ok {
		level = defaultSeniorityLevel
	}

	w := t.Depth.Weights
	score := w.TargetSeniority*level + w.Mastery*float64(mastery)/100

	if p := t.Depth.ModuleProgression; p.Divisor > 0 && moduleID > 1 {
		bonus := float64(moduleID-1) / p.Divisor
		if p.MaxBonus > 0 && bonus > p.MaxBonus {
			bonus = p.MaxBonus
		}
		score += bonus
	}

	score = math.Round(score*100) / 100
	if limit := t.Depth.MaxDepth; limit > 0 && score > limit {
		return limit
	}
	return score
}

// IsFoundational reports whether a module should stay at introductory
// level, either because its depth is low or its name says so.
func IsFoundational(t Thresholds, depth float64, moduleName string) bool {
	if depth < t.Personalization.FoundationalThreshold {
		return true
	}
	name := strings.ToLower(moduleName)
	for _, kw := range t.Personalization.FoundationalKeywords {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// ShouldReframe reports whether a module name should be tailored to the
// user's target role.
func ShouldReframe(t Thresholds, depth float64, mastery int, moduleName string) bool {
	p := t.Personalization
	return mastery >= p.SkipBasicsMastery &&
		depth >= p.ReframingThreshold &&
		!IsFoundational(t, depth, moduleName)
}

// Instructions maps a depth score to prompt guidance.
func Instructions(depth float64) DepthInstructions {
	switch {
	case depth < 0.35:
		return DepthInstructions{
			Level:              "Beginner",
			ExplanationStyle:   "simple analogies and step-by-step breakdowns with everyday examples",
			QuestionDifficulty: "basic recall and simple application of concepts",
		}
	case depth < 0.65:
		return DepthInstructions{
			Level:              "Intermediate",
			ExplanationStyle:   "clear explanations with practical examples and real-world applications",
			QuestionDifficulty: "understanding, problem-solving, and practical application",
		}
	default:
		return DepthInstructions{
			Level:              "Advanced",
			ExplanationStyle:   "technical detail, mathematical rigor, and theoretical foundations",
			QuestionDifficulty: "deep understanding, synthesis, and advanced problem-solving",
		}
	}
}
