package validate

import (
	"fmt"
	"math"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
)

const assessmentSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["topic_id", "mastery", "modules_complete", "estimated_hours", "subtopics"],
    "properties": {
      "topic_id":         {"type": "string", "minLength": 1},
      "mastery":          {"type": "integer", "minimum": 0, "maximum": 100},
      "modules_complete": {"type": "string"},
      "estimated_hours":  {"type": "integer", "minimum": 1},
      "subtopics": {
        "type": "array",
        "minItems": 3,
        "maxItems": 8,
        "items": {
          "type": "object",
          "required": ["id", "hours"],
          "properties": {
            "id":    {"type": "string", "minLength": 1},
            "hours": {"type": "number", "minimum": 0}
          }
        }
      }
    }
  }
}`

var compiledAssessmentSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(assessmentSchema))
})

// AssessedTopics validates a decoded assessment list.
func AssessedTopics(v llmjson.Value) ([]learning.AssessedTopic, error) {
	if v.Kind() != llmjson.KindArray {
		return nil, &SchemaViolationError{
			Subject:  "assessment",
			Problems: []string{"assessment must be an array, got " + v.Kind().String()},
		}
	}

	schema, err := compiledAssessmentSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling assessment schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(v.Untyped()))
	if err != nil {
		return nil, fmt.Errorf("validating assessment: %w", err)
	}
	if !result.Valid() {
		var probs problems
		for _, re := range result.Errors() {
			probs.add("%s: %s", re.Field(), re.Description())
		}
		return nil, probs.err("assessment")
	}

	// The schema guarantees every accessor below succeeds, except that an
	// integral estimated_hours may still overflow int.
	items, _ := v.Array()
	out := make([]learning.AssessedTopic, 0, len(items))
	var probs problems
	for i, item := range items {
		t := assessedTopic(item)
		if t.EstimatedHours == 0 {
			probs.add("%d.estimated_hours: out of range", i)
		}
		out = append(out, t)
	}
	if err := probs.err("assessment"); err != nil {
		return nil, err
	}
	return out, nil
}

func assessedTopic(item llmjson.Value) learning.AssessedTopic {
	var t learning.AssessedTopic
	if f, ok := item.Field("topic_id"); ok {
		t.TopicID, _ = f.Text()
	}
	if f, ok := item.Field("mastery"); ok {
		t.Mastery, _ = f.Int()
	}
	if f, ok := item.Field("modules_complete"); ok {
		t.ModulesComplete, _ = f.Text()
	}
	if f, ok := item.Field("estimated_hours"); ok {
		t.EstimatedHours, _ = f.Int()
	}
	if f, ok := item.Field("subtopics"); ok {
		subs, _ := f.Array()
		for _, s := range subs {
			var st learning.Subtopic
			if id, ok := s.Field("id"); ok {
				st.ID, _ = id.Text()
			}
			if h, ok := s.Field("hours"); ok {
				st.Hours, _ = h.Float()
			}
			t.Subtopics = append(t.Subtopics, st)
		}
	}
	return t
}

// GlobalReadiness is the mean mastery across topics rounded to one decimal.
func GlobalReadiness(topics []learning.AssessedTopic) float64 {
	if len(topics) == 0 {
		return 0
	}
	total := 0
	for _, t := range topics {
		total += t.Mastery
	}
	return math.Round(float64(total)/float64(len(topics))*10) / 10
}
