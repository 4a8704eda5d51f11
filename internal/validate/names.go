package validate

import (
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
)

// ModuleNames validates a {"1": "...", ..., "N": "..."} object. Every key
// from 1 to count must map to a non-empty string. Extra keys are ignored.
func ModuleNames(v llmjson.Value, count int) (map[int]string, error) {
	if v.Kind() != llmjson.KindObject {
		return nil, &SchemaViolationError{
			Subject:  "module names",
			Problems: []string{"module names must be an object, got " + v.Kind().String()},
		}
	}

	var probs problems
	names := make(map[int]string, count)
	for i := 1; i <= count; i++ {
		f, ok := v.Field(strconv.Itoa(i))
		if !ok {
			probs.add("missing module %d", i)
			continue
		}
		name, _ := f.Text()
		name = strings.TrimSpace(name)
		if name == "" {
			probs.add("module %d must be a non-empty string", i)
			continue
		}
		names[i] = name
	}
	if err := probs.err("module names"); err != nil {
		return nil, err
	}
	return names, nil
}
