package validate

import "strings"

// GradeAnswer compares multiple-choice answers by their first letter, so
// "b" and "B) 0.5" both match "B". The letter must be one of A to D.
func GradeAnswer(userAnswer, correctAnswer string) bool {
	user := strings.ToUpper(strings.TrimSpace(userAnswer))
	correct := strings.ToUpper(strings.TrimSpace(correctAnswer))
	if user == "" || correct == "" {
		return false
	}
	return user[0] == correct[0] && strings.IndexByte("ABCD", user[0]) >= 0
}
