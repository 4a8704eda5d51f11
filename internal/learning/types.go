// Package learning defines the validated value types of a learning path.
// Values of these types are only produced by the validators in
// internal/validate and the resolvers in internal/resources.
package learning

import "encoding/json"

// Difficulty is the difficulty level of a topic.
type Difficulty string

const (
	Foundational Difficulty = "foundational"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Valid reports whether d is one of the three legal levels.
func (d Difficulty) Valid() bool {
	switch d {
	case Foundational, Intermediate, Advanced:
		return true
	}
	return false
}

// TopicNode is one topic of a learning path. An empty Prereq means the
// topic has no prerequisite.
type TopicNode struct {
	ID         string
	Prereq     string
	Difficulty Difficulty
}

type topicNodeJSON struct {
	ID         string     `json:"id"`
	Prereq     *string    `json:"prereq"`
	Difficulty Difficulty `json:"difficulty"`
}

// MarshalJSON encodes a missing prerequisite as null.
func (t TopicNode) MarshalJSON() ([]byte, error) {
	out := topicNodeJSON{ID: t.ID, Difficulty: t.Difficulty}
	if t.Prereq != "" {
		p := t.Prereq
		out.Prereq = &p
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a node previously written by MarshalJSON.
func (t *TopicNode) UnmarshalJSON(data []byte) error {
	var in topicNodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.ID = in.ID
	t.Difficulty = in.Difficulty
	t.Prereq = ""
	if in.Prereq != nil {
		t.Prereq = *in.Prereq
	}
	return nil
}

// Subtopic is a unit of study inside an assessed topic.
type Subtopic struct {
	ID    string  `json:"id"`
	Hours float64 `json:"hours"`
}

// AssessedTopic is a topic with the user's estimated mastery of it.
type AssessedTopic struct {
	TopicID         string     `json:"topic_id"`
	Mastery         int        `json:"mastery"`
	ModulesComplete string     `json:"modules_complete"`
	EstimatedHours  int        `json:"estimated_hours"`
	Subtopics       []Subtopic `json:"subtopics"`
}

// Question is a multiple-choice comprehension question.
type Question struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation"`
}

// Reference is a citation shown alongside module content. URL is "#" for
// text-only citations taken from the curated catalog.
type Reference struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ContentBundle is the generated content of one module.
type ContentBundle struct {
	ModuleName  string      `json:"module_name"`
	Content     string      `json:"content"`
	KeyConcepts []string    `json:"key_concepts"`
	Questions   []Question  `json:"questions"`
	References  []Reference `json:"references"`
}

// JobForm holds the user's current and target positions. The current
// fields are optional.
type JobForm struct {
	CurrentJobTitle    string `json:"current_job_title"`
	CurrentDescription string `json:"current_description"`
	CurrentSeniority   string `json:"current_seniority"`
	TargetJobTitle     string `json:"target_job_title"`
	TargetDescription  string `json:"target_description"`
	TargetSeniority    string `json:"target_seniority"`
	TargetCompany      string `json:"target_company"`
	TargetIndustry     string `json:"target_industry"`
}
