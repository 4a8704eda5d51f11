package validate

import (
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
)

// TopicRules configures the repairs Topics is allowed to make.
type TopicRules struct {
	// DifficultySynonyms maps lower-cased unknown difficulty labels to legal
	// levels. Labels missing from the map become Intermediate.
	DifficultySynonyms map[string]learning.Difficulty
}

// DefaultTopicRules returns the synonym table observed in completions.
func DefaultTopicRules() TopicRules {
	return TopicRules{
		DifficultySynonyms: map[string]learning.Difficulty{
			"expert":   learning.Advanced,
			"basic":    learning.Foundational,
			"beginner": learning.Foundational,
		},
	}
}

// Topics validates a decoded topic list with DefaultTopicRules.
func Topics(v llmjson.Value) ([]learning.TopicNode, error) {
	return DefaultTopicRules().Topics(v)
}

// Topics validates a decoded topic list and returns it as an acyclic graph.
//
// Repairs: a list-valued prereq becomes its first element (or none), an
// unknown difficulty is mapped through the synonym table, and a prereq
// naming a missing topic is dropped. A missing field, a duplicate id, a
// self-reference or a prereq cycle is an error.
func (r TopicRules) Topics(v llmjson.Value) ([]learning.TopicNode, error) {
	items, ok := v.Array()
	if !ok {
		return nil, &SchemaViolationError{
			Subject:  "topics",
			Problems: []string{"topics must be an array, got " + v.Kind().String()},
		}
	}

	var probs problems
	nodes := make([]learning.TopicNode, 0, len(items))
	for i, item := range items {
		node, ok := r.topicNode(i, item, &probs)
		if ok {
			nodes = append(nodes, node)
		}
	}
	if err := probs.err("topics"); err != nil {
		return nil, err
	}

	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if ids[n.ID] {
			return nil, &GraphInvariantViolationError{Violation: DuplicateID, NodeID: n.ID}
		}
		ids[n.ID] = true
	}

	for i := range nodes {
		n := &nodes[i]
		if n.Prereq == n.ID {
			return nil, &GraphInvariantViolationError{Violation: SelfReference, NodeID: n.ID}
		}
		if n.Prereq != "" && !ids[n.Prereq] {
			slog.Warn("dropping dangling prereq", "topic", n.ID, "prereq", n.Prereq)
			n.Prereq = ""
		}
	}

	if id, found := findCycle(nodes); found {
		return nil, &GraphInvariantViolationError{Violation: Cycle, NodeID: id}
	}
	return nodes, nil
}

func (r TopicRules) topicNode(i int, item llmjson.Value, probs *problems) (learning.TopicNode, bool) {
	if item.Kind() != llmjson.KindObject {
		probs.add("topic %d must be an object, got %s", i, item.Kind())
		return learning.TopicNode{}, false
	}

	ok := true
	for _, field := range []string{"id", "prereq", "difficulty"} {
		if !item.Has(field) {
			probs.add("topic %d missing %q", i, field)
			ok = false
		}
	}
	if !ok {
		return learning.TopicNode{}, false
	}

	idVal, _ := item.Field("id")
	id, isText := idVal.Text()
	id = strings.TrimSpace(id)
	if !isText || id == "" {
		probs.add("topic %d id must be a non-empty string", i)
		return learning.TopicNode{}, false
	}

	prereqVal, _ := item.Field("prereq")
	prereq, ok := topicPrereq(id, prereqVal)
	if !ok {
		probs.add("topic %q prereq must be a string, null or a list of strings", id)
		return learning.TopicNode{}, false
	}

	diffVal, _ := item.Field("difficulty")
	return learning.TopicNode{
		ID:         id,
		Prereq:     prereq,
		Difficulty: r.difficulty(id, diffVal),
	}, true
}

func topicPrereq(id string, v llmjson.Value) (string, bool) {
	switch v.Kind() {
	case llmjson.KindNull:
		return "", true
	case llmjson.KindString:
		s, _ := v.Text()
		return strings.TrimSpace(s), true
	case llmjson.KindArray:
		list, _ := v.Array()
		if len(list) == 0 {
			slog.Warn("repaired list prereq", "topic", id, "prereq", "")
			return "", true
		}
		if list[0].IsNull() {
			return "", true
		}
		first, ok := list[0].Text()
		if !ok {
			return "", false
		}
		first = strings.TrimSpace(first)
		slog.Warn("repaired list prereq", "topic", id, "prereq", first, "dropped", len(list)-1)
		return first, true
	}
	return "", false
}

func (r TopicRules) difficulty(id string, v llmjson.Value) learning.Difficulty {
	label, _ := v.Text()
	d := learning.Difficulty(strings.ToLower(strings.TrimSpace(label)))
	if d.Valid() {
		return d
	}
	mapped, ok := r.DifficultySynonyms[string(d)]
	if !ok || !mapped.Valid() {
		mapped = learning.Intermediate
	}
	slog.Warn("repaired difficulty", "topic", id, "from", label, "to", mapped)
	return mapped
}

// findCycle walks prereq edges depth first in input order and returns a
// node that is reached again while still on the current path.
func findCycle(nodes []learning.TopicNode) (string, bool) {
	const (
		unvisited = iota
		onStack
		done
	)

	prereq := make(map[string]string, len(nodes))
	for _, n := range nodes {
		prereq[n.ID] = n.Prereq
	}

	state := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if state[n.ID] != unvisited {
			continue
		}
		var path []string
		for id := n.ID; id != ""; id = prereq[id] {
			if state[id] == onStack {
				return id, true
			}
			if state[id] == done {
				break
			}
			state[id] = onStack
			path = append(path, id)
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return "", false
}
