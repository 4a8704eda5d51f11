package resources

import "strings"

var (
	entryKeywords    = []string{"intern", "student", "entry", "junior", "graduate", "beginner"}
	advancedKeywords = []string{"senior", "advanced", "director", "lead", "principal", "head", "vp", "researcher"}
)

// DetermineTier derives a tier from the target seniority, using mastery
// only when the seniority names neither an entry nor an advanced level.
func DetermineTier(mastery int, seniority string) Tier {
	s := strings.ToLower(seniority)
	if containsAny(s, entryKeywords) {
		return TierEntry
	}
	if containsAny(s, advancedKeywords) {
		return TierAdvanced
	}

	switch {
	case mastery < 30:
		return TierEntry
	case mastery > 70:
		return TierAdvanced
	default:
		return TierIntermediate
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
