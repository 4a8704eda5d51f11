package agent_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-learnpath/internal/agent"
	"github.com/p-n-ai/pai-learnpath/internal/ai"
	"github.com/p-n-ai/pai-learnpath/internal/curriculum"
	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
	"github.com/p-n-ai/pai-learnpath/internal/resources"
	"github.com/p-n-ai/pai-learnpath/internal/store"
	"github.com/p-n-ai/pai-learnpath/internal/validate"
)

const testThresholds = `depth_calculation:
  seniority_levels:
    Junior: 0.3
    Senior: 0.8
  weights:
    target_seniority: 0.7
    mastery: 0.3
  module_progression:
    divisor: 14
    max_bonus: 0.5
  max_depth: 1.0
content_personalization:
  foundational_threshold: 0.3
  foundational_keywords: [fundamental, basics, introduction]
  reframing_threshold: 0.5
  skip_basics_mastery: 50
difficulty_synonyms:
  expert: advanced
  basic: foundational
`

var testPrompts = map[string]string{
	"job_parser":       "Target role: {{.TargetJobTitle}}\n    Recent: {{.RecentSkills}}",
	"topic_assessor":   "Assess {{.TopicsJSON}} for {{.CurrentJobContext}}. Recent: {{.RecentSkills}}",
	"module_naming":    "Name modules of {{.TopicID}} for {{.TargetSeniority}} {{.TargetRole}} at {{.Mastery}}%",
	"module_reframing": "Reframe {{.ModuleName}} from {{.CurrentJobTitle}} to {{.TargetJobTitle}} at {{.TargetCompany}}",
	"content_generator": "Module {{.ModuleID}} {{.ModuleName}} of {{.TopicID}} depth {{.DepthScore}} {{.DepthLevel}}\n" +
		"    {{.AllModuleNames}}",
}

const testCatalog = `topic_keywords:
  python: [python, pandas]
roles:
  ML Engineer:
    core_resources:
      - text: Python docs
        url: https://docs.python.org/3/
    topic_resources:
      python:
        - text: Fluent Python
          note: (book)
`

// liveChecker reports every URL as reachable.
type liveChecker struct{}

func (liveChecker) Check(context.Context, string) (resources.LinkStatus, error) {
	return resources.LinkStatus{Reachable: true, StatusCode: 200}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupConfig(t *testing.T) *curriculum.Loader {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, curriculum.ThresholdsFile), testThresholds)
	for name, tmpl := range testPrompts {
		writeFile(t, filepath.Join(dir, "prompts", name+".yaml"),
			"name: "+name+"\ntemplate: |\n    "+tmpl+"\n")
	}
	writeFile(t, filepath.Join(dir, "agents", "content_generator.yaml"), `name: content_generator
calls:
  content_generation: {temperature: 0.4, max_tokens: 2500}
  module_naming: {temperature: 0.7, max_tokens: 300}
  module_reframing: {temperature: 0.5, max_tokens: 50}
`)
	writeFile(t, filepath.Join(dir, "agents", "job_parser.yaml"), `name: job_parser
calls:
  topic_extraction: {temperature: 0.2, max_tokens: 1500}
`)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return loader
}

type harness struct {
	engine *agent.Engine
	mock   *ai.MockProvider
	store  *store.MemoryStore
	events *agent.MemoryEventLogger
	budget *ai.InMemoryBudget
}

func newHarness(t *testing.T, responses ...string) *harness {
	t.Helper()
	catalog, err := resources.ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	provider := resources.NewStaticProvider(catalog)

	h := &harness{
		mock:   ai.NewScriptedMockProvider(responses...),
		store:  store.NewMemoryStore(),
		events: agent.NewMemoryEventLogger(),
		budget: ai.NewInMemoryBudget(0),
	}
	h.engine = agent.NewEngine(agent.EngineConfig{
		Completer: ai.NewCompleter(h.mock, h.budget),
		Config:    setupConfig(t),
		Resolver:  resources.NewResolver(provider),
		Gate:      resources.NewGate(provider, liveChecker{}),
		Store:     h.store,
		Events:    h.events,
	})
	return h
}

func (h *harness) user(t *testing.T) store.User {
	t.Helper()
	u, err := h.store.CreateUser(context.Background(), "Ada", "ada@example.com", "password123", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

var mlForm = learning.JobForm{
	CurrentJobTitle:    "Data Analyst",
	CurrentDescription: "SQL reporting",
	CurrentSeniority:   "Junior",
	TargetJobTitle:     "ML Engineer",
	TargetSeniority:    "Senior",
	TargetCompany:      "Acme",
}

const topicsResponse = "Here are the topics:\n```json\n" + `[
  {"id": "python", "prereq": null, "difficulty": "foundational"},
  {"id": "deep_learning", "prereq": ["python"], "difficulty": "expert"}
]` + "\n```"

const assessmentResponse = `[
  {"topic_id": "python", "mastery": 85, "modules_complete": "0/8", "estimated_hours": 10,
   "subtopics": [{"id": "syntax", "hours": 2}, {"id": "numpy", "hours": 4}, {"id": "pandas", "hours": 4}]},
  {"topic_id": "deep_learning", "mastery": 20, "modules_complete": "0/8", "estimated_hours": 40,
   "subtopics": [{"id": "mlp", "hours": 10}, {"id": "cnn", "hours": 15}, {"id": "training", "hours": 15}]}
]`

func TestEngine_ParseJobs(t *testing.T) {
	h := newHarness(t, topicsResponse)
	u := h.user(t)

	topics, err := h.engine.ParseJobs(context.Background(), u.ID, mlForm)
	if err != nil {
		t.Fatalf("ParseJobs() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("ParseJobs() = %d topics, want 2", len(topics))
	}
	dl := topics[1]
	if dl.Prereq != "python" || dl.Difficulty != learning.Advanced {
		t.Errorf("deep_learning = %+v, want prereq python and advanced difficulty", dl)
	}

	req := h.mock.LastRequest()
	if req.Task != ai.TaskTopicExtraction || req.Temperature != 0.2 || req.MaxTokens != 1500 {
		t.Errorf("request = %+v", req)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "Target role: ML Engineer") || !strings.Contains(prompt, "Recent: None") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestEngine_ParseJobs_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		target   error
		kind     string
	}{
		{"no array", "I cannot help with that.", llmjson.ErrExtraction, "extraction"},
		{
			"prereq cycle",
			`[{"id": "a", "prereq": "b", "difficulty": "foundational"}, {"id": "b", "prereq": "a", "difficulty": "advanced"}]`,
			validate.ErrGraphInvariant,
			"graph",
		},
		{"missing field", `[{"id": "a", "difficulty": "foundational"}]`, validate.ErrSchemaViolation, "schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.response)
			_, err := h.engine.ParseJobs(context.Background(), "user-1", mlForm)
			if !errors.Is(err, tt.target) {
				t.Errorf("ParseJobs() error = %v, want %v", err, tt.target)
			}

			failed := h.events.OfType(agent.EventGenerationFailed)
			if len(failed) != 1 {
				t.Fatalf("generation_failed events = %d, want 1", len(failed))
			}
			data := failed[0].Data
			if data["call"] != "topic_extraction" || data["kind"] != tt.kind || data["error"] == "" {
				t.Errorf("event data = %v, want call topic_extraction and kind %s", data, tt.kind)
			}
			if failed[0].UserID != "user-1" {
				t.Errorf("event UserID = %q, want user-1", failed[0].UserID)
			}
		})
	}
}

func TestEngine_GeneratePath(t *testing.T) {
	h := newHarness(t, topicsResponse, assessmentResponse)
	u := h.user(t)
	ctx := context.Background()

	path, err := h.engine.GeneratePath(ctx, u.ID, mlForm)
	if err != nil {
		t.Fatalf("GeneratePath() error = %v", err)
	}
	if len(path.Topics) != 2 || path.GlobalReadiness != 52.5 {
		t.Errorf("GeneratePath() = %+v", path)
	}

	saved, err := h.store.GetPath(ctx, path.ID)
	if err != nil {
		t.Fatalf("GetPath() error = %v", err)
	}
	if saved.GlobalReadiness != 52.5 || len(saved.Topics) != 2 {
		t.Errorf("saved path = %+v", saved)
	}

	skills, err := h.store.Skills(ctx, u.ID)
	if err != nil || len(skills) != 2 {
		t.Fatalf("Skills() = %+v, %v", skills, err)
	}

	assessReq := h.mock.Requests()[1]
	if assessReq.Task != ai.TaskAssessment {
		t.Errorf("second task = %v, want assessment", assessReq.Task)
	}
	// topic_assessor has no agent config, so the defaults apply.
	if assessReq.MaxTokens != 2000 {
		t.Errorf("assessment MaxTokens = %d, want default 2000", assessReq.MaxTokens)
	}
	if !strings.Contains(assessReq.Messages[0].Content, "Junior Data Analyst: SQL reporting") {
		t.Errorf("assessment prompt = %q", assessReq.Messages[0].Content)
	}

	if got := h.events.OfType(agent.EventPathGenerated); len(got) != 1 || got[0].PathID != path.ID {
		t.Errorf("path_generated events = %+v", got)
	}

	// The mastered python skill is passed to the next parse.
	h.mock.Enqueue(topicsResponse)
	if _, err := h.engine.ParseJobs(ctx, u.ID, mlForm); err != nil {
		t.Fatalf("ParseJobs() error = %v", err)
	}
	if prompt := h.mock.LastRequest().Messages[0].Content; !strings.Contains(prompt, "Recent: python") {
		t.Errorf("prompt = %q, want recent python", prompt)
	}
}

func TestEngine_GeneratePath_Errors(t *testing.T) {
	t.Run("missing target", func(t *testing.T) {
		h := newHarness(t)
		u := h.user(t)
		_, err := h.engine.GeneratePath(context.Background(), u.ID, learning.JobForm{})
		if !errors.Is(err, agent.ErrInvalidRequest) {
			t.Errorf("GeneratePath() error = %v, want ErrInvalidRequest", err)
		}
		if len(h.mock.Requests()) != 0 {
			t.Error("no completion should be requested")
		}
	})

	t.Run("assessment fails schema", func(t *testing.T) {
		h := newHarness(t, topicsResponse, `[{"topic_id": "python", "mastery": 140}]`)
		u := h.user(t)
		_, err := h.engine.GeneratePath(context.Background(), u.ID, mlForm)
		if !errors.Is(err, validate.ErrSchemaViolation) {
			t.Errorf("GeneratePath() error = %v, want ErrSchemaViolation", err)
		}
		if got := h.events.OfType(agent.EventPathGenerated); len(got) != 0 {
			t.Errorf("path_generated logged on failure: %+v", got)
		}
		failed := h.events.OfType(agent.EventGenerationFailed)
		if len(failed) != 1 || failed[0].Data["call"] != "assessment" || failed[0].Data["kind"] != "schema" {
			t.Errorf("generation_failed events = %+v", failed)
		}
		paths, err := h.store.ListPaths(context.Background(), u.ID)
		if err != nil || len(paths) != 0 {
			t.Errorf("ListPaths() = %+v, %v; a failed generation must not leave a path", paths, err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		h := newHarness(t, topicsResponse, assessmentResponse)
		_, err := h.engine.GeneratePath(context.Background(), "missing", mlForm)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GeneratePath() error = %v, want ErrNotFound", err)
		}
		if len(h.mock.Requests()) != 0 {
			t.Error("no completion should be requested for an unknown user")
		}
	})
}

func TestEngine_ModuleNames(t *testing.T) {
	h := newHarness(t,
		`{"1": "NumPy Arrays", "2": "Pandas Series", "3": "Vectorization", "4": "Feature Pipelines",
		  "5": "Model Serving", "6": "Profiling", "7": "Packaging", "8": "Testing ML Code"}`,
		`{"1": "Only one"}`,
	)

	names := h.engine.ModuleNames(context.Background(), "u1", "python", "ML Engineer", "", 40)
	if names[1] != "NumPy Arrays" || names[8] != "Testing ML Code" {
		t.Errorf("ModuleNames() = %v", names)
	}
	req := h.mock.LastRequest()
	if req.Temperature != 0.7 || req.MaxTokens != 300 {
		t.Errorf("naming request = %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "Mid-level ML Engineer at 40%") {
		t.Errorf("naming prompt = %q", req.Messages[0].Content)
	}

	fallback := h.engine.ModuleNames(context.Background(), "u1", "python", "ML Engineer", "Senior", 40)
	if len(fallback) != 8 || fallback[1] != "Module 1" || fallback[8] != "Module 8" {
		t.Errorf("fallback ModuleNames() = %v", fallback)
	}
	if got := h.events.OfType(agent.EventModuleNameFallback); len(got) != 1 {
		t.Errorf("fallback events = %d, want 1", len(got))
	}
}

func TestEngine_Reframe(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"quoted answer", `  "Market Making for HFT"  `, "Market Making for HFT"},
		{"too long", "A very long module name that keeps going well past the limit", "Market Fundamentals"},
		{"unchanged", "Market Fundamentals", "Market Fundamentals"},
		{"empty", `""`, "Market Fundamentals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.response)
			got := h.engine.Reframe(context.Background(), "u1", "Market Fundamentals", mlForm, 70)
			if got != tt.want {
				t.Errorf("Reframe() = %q, want %q", got, tt.want)
			}
		})
	}
}

const shortContent = `{
  "module_name": "Pandas Time Series",
  "content": "Resampling turns irregular ticks into regular bars.",
  "key_concepts": ["resample", "rolling windows", "time zones"],
  "questions": [
    {"id": "q1", "text": "Which method?", "correct_answer": "A", "explanation": "resample"},
    {"id": "q2", "text": "Which window?", "correct_answer": "B", "explanation": "rolling"},
    {"id": "q3", "text": "Which zone?", "correct_answer": "C", "explanation": "UTC"}
  ],
  "references": [
    {"text": "Made up book", "url": "https://example.com/fake"},
    {"text": "Another", "url": "https://example.com/other"}
  ]
}`

func TestEngine_GenerateContent_CuratedReferences(t *testing.T) {
	h := newHarness(t, shortContent)

	res, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{
		UserID:     "u1",
		PathID:     "p1",
		TopicID:    "python",
		ModuleID:   1,
		ModuleName: "Pandas Time Series",
		Mastery:    20,
		Form:       learning.JobForm{TargetJobTitle: "ML Engineer", TargetSeniority: "Junior"},
		ModuleNames: map[int]string{
			1: "Pandas Time Series", 2: "Feature Engineering",
		},
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	// Junior at 20% on module 1 is foundational: one completion, no reframing.
	if n := len(h.mock.Requests()); n != 1 {
		t.Fatalf("completions = %d, want 1", n)
	}
	if res.ModuleName != "Pandas Time Series" || res.Depth != 0.27 || res.Tier != resources.TierEntry {
		t.Errorf("result = %+v", res)
	}
	if res.Category != "python" {
		t.Errorf("Category = %q, want python", res.Category)
	}

	want := []learning.Reference{
		{Text: "Fluent Python (book)", URL: resources.NoURL},
		{Text: "Python docs", URL: "https://docs.python.org/3/"},
	}
	if len(res.Bundle.References) != len(want) {
		t.Fatalf("References = %+v", res.Bundle.References)
	}
	for i := range want {
		if res.Bundle.References[i] != want[i] {
			t.Errorf("References[%d] = %+v, want %+v", i, res.Bundle.References[i], want[i])
		}
	}

	prompt := h.mock.LastRequest().Messages[0].Content
	if !strings.Contains(prompt, "depth 0.27 Beginner") || !strings.Contains(prompt, "Module 1: Pandas Time Series <- YOU ARE HERE") {
		t.Errorf("prompt = %q", prompt)
	}

	// The short content is flagged but still returned.
	if len(res.Warnings) != 1 {
		t.Fatalf("Warnings = %+v, want one truncation warning", res.Warnings)
	}
	if _, ok := res.Warnings[0].(validate.TruncationWarning); !ok {
		t.Errorf("Warnings[0] = %T, want TruncationWarning", res.Warnings[0])
	}
	if got := h.events.OfType(agent.EventContentWarning); len(got) != 1 {
		t.Errorf("content_warning events = %d, want 1", len(got))
	}
	if got := h.events.OfType(agent.EventContentGenerated); len(got) != 1 || got[0].PathID != "p1" {
		t.Errorf("content_generated events = %+v", got)
	}
}

func TestEngine_GenerateContent_ReframedAndGated(t *testing.T) {
	content := `{
  "module_name": "Market Making for HFT",
  "content": "` + strings.Repeat("Quotes adjust to inventory risk. ", 70) + `",
  "key_concepts": ["spread", "inventory", "adverse selection"],
  "questions": [
    {"id": 1, "text": "Q1", "correct_answer": "A", "explanation": "E1"},
    {"id": 2, "text": "Q2", "correct_answer": "B", "explanation": "E2"},
    {"id": 3, "text": "Q3", "correct_answer": "D", "explanation": "E3"}
  ],
  "references": [
    {"text": "Khan video", "url": "https://www.khanacademy.org/economics"},
    {"text": "Avellaneda and Stoikov", "url": "https://arxiv.org/abs/1234.5678"}
  ]
}`
	h := newHarness(t, `"Market Making for HFT"`, content)

	res, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{
		UserID:     "u1",
		TopicID:    "market_microstructure",
		ModuleID:   5,
		ModuleName: "Liquidity Provision",
		Mastery:    60,
		Form:       mlForm,
	})
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}

	reqs := h.mock.Requests()
	if len(reqs) != 2 || reqs[0].Task != ai.TaskReframing || reqs[1].Task != ai.TaskContent {
		t.Fatalf("requests = %+v", reqs)
	}
	if res.ModuleName != "Market Making for HFT" || res.Depth != 1.0 || res.Tier != resources.TierAdvanced {
		t.Errorf("result = %+v", res)
	}
	if got := h.events.OfType(agent.EventModuleReframed); len(got) != 1 {
		t.Errorf("module_reframed events = %d, want 1", len(got))
	}
	if !strings.Contains(reqs[1].Messages[0].Content, "generate standalone content") {
		t.Errorf("content prompt = %q", reqs[1].Messages[0].Content)
	}

	// Nothing curated for the module, so the model's references are gated:
	// the banned domain is replaced with a search fallback.
	refs := res.Bundle.References
	if len(refs) != 2 {
		t.Fatalf("References = %+v", refs)
	}
	if !strings.HasPrefix(refs[0].URL, "https://ocw.mit.edu/search/?q=Market+Making+for+HFT") {
		t.Errorf("References[0] = %+v, want OCW search fallback", refs[0])
	}
	if refs[1].URL != "https://arxiv.org/abs/1234.5678" {
		t.Errorf("References[1] = %+v", refs[1])
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %+v, want none", res.Warnings)
	}
	if res.Bundle.Questions[0].ID != "1" {
		t.Errorf("numeric question id = %q, want \"1\"", res.Bundle.Questions[0].ID)
	}
}

func TestEngine_GenerateContent_Errors(t *testing.T) {
	t.Run("invalid module", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{TopicID: "x", ModuleID: 9})
		if !errors.Is(err, agent.ErrInvalidRequest) {
			t.Errorf("GenerateContent() error = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("two questions", func(t *testing.T) {
		h := newHarness(t, `{"module_name": "m", "content": "c", "key_concepts": ["a", "b", "c"],
			"questions": [{"id": "1", "text": "t", "correct_answer": "A", "explanation": "e"},
			              {"id": "2", "text": "t", "correct_answer": "A", "explanation": "e"}],
			"references": [{"text": "a", "url": "https://a.example"}, {"text": "b", "url": "https://b.example"}]}`)
		_, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{UserID: "u1", PathID: "p1", TopicID: "x", ModuleID: 1, Form: mlForm})
		if !errors.Is(err, validate.ErrSchemaViolation) {
			t.Errorf("GenerateContent() error = %v, want ErrSchemaViolation", err)
		}
		failed := h.events.OfType(agent.EventGenerationFailed)
		if len(failed) != 1 || failed[0].PathID != "p1" || failed[0].Data["call"] != "content_generation" || failed[0].Data["kind"] != "schema" {
			t.Errorf("generation_failed events = %+v", failed)
		}
		if got := h.events.OfType(agent.EventContentGenerated); len(got) != 0 {
			t.Errorf("content_generated logged on failure: %+v", got)
		}
	})

	t.Run("prose instead of json", func(t *testing.T) {
		h := newHarness(t, "Sorry, I can only describe this module in words.")
		_, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{UserID: "u1", TopicID: "x", ModuleID: 1, Form: mlForm})
		if !errors.Is(err, llmjson.ErrExtraction) {
			t.Errorf("GenerateContent() error = %v, want ErrExtraction", err)
		}
		failed := h.events.OfType(agent.EventGenerationFailed)
		if len(failed) != 1 || failed[0].Data["kind"] != "extraction" {
			t.Errorf("generation_failed events = %+v", failed)
		}
	})

	t.Run("budget exhausted", func(t *testing.T) {
		h := newHarness(t, shortContent)
		h.budget.SetBudget("u1", 5)
		h.budget.Record(context.Background(), "u1", 5)
		_, err := h.engine.GenerateContent(context.Background(), agent.ContentRequest{UserID: "u1", TopicID: "x", ModuleID: 1, Form: mlForm})
		if !errors.Is(err, ai.ErrBudgetExhausted) {
			t.Errorf("GenerateContent() error = %v, want ErrBudgetExhausted", err)
		}
	})
}

func TestEngine_SubmitQuiz(t *testing.T) {
	h := newHarness(t)
	u := h.user(t)
	ctx := context.Background()

	path, err := h.store.CreatePath(ctx, u.ID, mlForm)
	if err != nil {
		t.Fatalf("CreatePath() error = %v", err)
	}
	if err := h.store.UpdatePathReadiness(ctx, path.ID, 20, []learning.AssessedTopic{
		{TopicID: "python", Mastery: 20, ModulesComplete: "0/8", EstimatedHours: 10},
	}); err != nil {
		t.Fatalf("UpdatePathReadiness() error = %v", err)
	}

	questions := []learning.Question{
		{ID: "q1", CorrectAnswer: "A"},
		{ID: "q2", CorrectAnswer: "B) Rolling"},
		{ID: "q3", CorrectAnswer: "C"},
	}
	sub := agent.QuizSubmission{
		UserID: u.ID, PathID: path.ID, TopicID: "python", ModuleID: 1,
		Questions: questions,
		Answers:   map[string]string{"q1": "a", "q2": "B", "q3": "D"},
	}

	res, err := h.engine.SubmitQuiz(ctx, sub)
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if res.Correct != 2 || res.Completed || res.PathMastery != 20 {
		t.Errorf("partial SubmitQuiz() = %+v", res)
	}

	sub.Answers["q3"] = "c"
	res, err = h.engine.SubmitQuiz(ctx, sub)
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if res.Correct != 3 || !res.Completed || res.PathMastery != 30 {
		t.Errorf("full SubmitQuiz() = %+v", res)
	}

	if n := len(h.store.Answers()); n != 6 {
		t.Errorf("recorded answers = %d, want 6", n)
	}
	if got := h.events.OfType(agent.EventModuleCompleted); len(got) != 1 {
		t.Errorf("module_completed events = %d, want 1", len(got))
	}
}
