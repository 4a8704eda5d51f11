package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-learnpath/internal/ai"
	"github.com/p-n-ai/pai-learnpath/internal/curriculum"
	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
	"github.com/p-n-ai/pai-learnpath/internal/resources"
	"github.com/p-n-ai/pai-learnpath/internal/store"
	"github.com/p-n-ai/pai-learnpath/internal/validate"
)

// Agent, prompt and call names in the config directory.
const (
	jobParserAgent        = "job_parser"
	topicAssessorAgent    = "topic_assessor"
	contentGeneratorAgent = "content_generator"

	promptJobParser    = "job_parser"
	promptAssessor     = "topic_assessor"
	promptContent      = "content_generator"
	promptModuleNaming = "module_naming"
	promptReframing    = "module_reframing"

	callTopicExtraction = "topic_extraction"
	callAssessment      = "assessment"
	callContent         = "content_generation"
	callModuleNaming    = "module_naming"
	callReframing       = "module_reframing"
)

const (
	defaultRecentWindow = 30 * 24 * time.Hour
	maxReframedWords    = 8
)

var defaultCall = curriculum.CallConfig{Temperature: 0.3, MaxTokens: 2000}

// ErrInvalidRequest is returned for requests rejected before any completion.
var ErrInvalidRequest = errors.New("invalid request")

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	Completer    *ai.Completer
	Config       *curriculum.Loader
	Resolver     *resources.Resolver
	Gate         *resources.Gate
	Store        store.Store
	Events       EventLogger
	ContentRules validate.ContentRules // zero value uses the defaults
	RecentWindow time.Duration         // how far back mastered skills are skipped (default 30 days)
}

// Engine runs the learning path pipeline: job parsing, topic assessment,
// module naming and content generation.
type Engine struct {
	completer    *ai.Completer
	config       *curriculum.Loader
	resolver     *resources.Resolver
	gate         *resources.Gate
	store        store.Store
	events       EventLogger
	contentRules validate.ContentRules
	recentWindow time.Duration
	now          func() time.Time
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) *Engine {
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	rules := cfg.ContentRules
	if rules == (validate.ContentRules{}) {
		rules = validate.DefaultContentRules()
	}
	window := cfg.RecentWindow
	if window == 0 {
		window = defaultRecentWindow
	}
	return &Engine{
		completer:    cfg.Completer,
		config:       cfg.Config,
		resolver:     cfg.Resolver,
		gate:         cfg.Gate,
		store:        st,
		events:       events,
		contentRules: rules,
		recentWindow: window,
		now:          time.Now,
	}
}

// Store returns the store the engine persists to.
func (e *Engine) Store() store.Store {
	return e.store
}

type jobPrompt struct {
	learning.JobForm
	RecentSkills string
}

// ParseJobs extracts the topic graph separating the user's current job
// from the target job. Topics mastered recently are left out by the prompt.
func (e *Engine) ParseJobs(ctx context.Context, userID string, form learning.JobForm) ([]learning.TopicNode, error) {
	recent, err := e.recentSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt, err := e.config.Render(promptJobParser, jobPrompt{JobForm: form, RecentSkills: recent})
	if err != nil {
		return nil, err
	}
	text, err := e.complete(ctx, userID, ai.TaskTopicExtraction, jobParserAgent, callTopicExtraction, prompt)
	if err != nil {
		return nil, err
	}

	v, err := llmjson.Decode(text, llmjson.KindArray)
	if err != nil {
		return nil, e.generationFailed(ctx, userID, "", callTopicExtraction, err)
	}
	topics, err := e.topicRules().Topics(v)
	if err != nil {
		return nil, e.generationFailed(ctx, userID, "", callTopicExtraction, err)
	}

	slog.Info("jobs parsed", "user_id", userID, "topics", len(topics))
	return topics, nil
}

type assessPrompt struct {
	TopicsJSON        string
	CurrentJobContext string
	RecentSkills      string
}

// AssessTopics estimates the user's mastery of each topic and splits the
// topics into subtopics with hour estimates.
func (e *Engine) AssessTopics(ctx context.Context, userID string, topics []learning.TopicNode, currentContext string) ([]learning.AssessedTopic, error) {
	recent, err := e.recentSkills(ctx, userID)
	if err != nil {
		return nil, err
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("marshal topics: %w", err)
	}
	if strings.TrimSpace(currentContext) == "" {
		currentContext = "No current job context"
	}

	prompt, err := e.config.Render(promptAssessor, assessPrompt{
		TopicsJSON:        string(topicsJSON),
		CurrentJobContext: currentContext,
		RecentSkills:      recent,
	})
	if err != nil {
		return nil, err
	}
	text, err := e.complete(ctx, userID, ai.TaskAssessment, topicAssessorAgent, callAssessment, prompt)
	if err != nil {
		return nil, err
	}

	v, err := llmjson.Decode(text, llmjson.KindArray)
	if err != nil {
		return nil, e.generationFailed(ctx, userID, "", callAssessment, err)
	}
	assessed, err := validate.AssessedTopics(v)
	if err != nil {
		return nil, e.generationFailed(ctx, userID, "", callAssessment, err)
	}

	slog.Info("topics assessed", "user_id", userID, "topics", len(assessed))
	return assessed, nil
}

// GeneratePath parses and assesses the form, then persists the path. Any
// failing step stops the pipeline and nothing is stored.
func (e *Engine) GeneratePath(ctx context.Context, userID string, form learning.JobForm) (store.Path, error) {
	if strings.TrimSpace(form.TargetJobTitle) == "" {
		return store.Path{}, fmt.Errorf("%w: target job title is required", ErrInvalidRequest)
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return store.Path{}, fmt.Errorf("load user: %w", err)
	}

	topics, err := e.ParseJobs(ctx, userID, form)
	if err != nil {
		return store.Path{}, fmt.Errorf("parse jobs: %w", err)
	}

	currentContext := fmt.Sprintf("%s %s: %s", form.CurrentSeniority, form.CurrentJobTitle, form.CurrentDescription)
	assessed, err := e.AssessTopics(ctx, userID, topics, currentContext)
	if err != nil {
		return store.Path{}, fmt.Errorf("assess topics: %w", err)
	}
	readiness := validate.GlobalReadiness(assessed)

	path, err := e.store.CreatePath(ctx, userID, form)
	if err != nil {
		return store.Path{}, fmt.Errorf("create path: %w", err)
	}
	if err := e.store.UpdatePathReadiness(ctx, path.ID, readiness, assessed); err != nil {
		return store.Path{}, fmt.Errorf("save path: %w", err)
	}
	for _, t := range assessed {
		if err := e.store.UpsertSkill(ctx, store.Skill{
			UserID:          userID,
			TopicID:         t.TopicID,
			Mastery:         t.Mastery,
			ModulesComplete: t.ModulesComplete,
		}); err != nil {
			return store.Path{}, fmt.Errorf("save skill %s: %w", t.TopicID, err)
		}
	}

	path.Topics = assessed
	path.GlobalReadiness = readiness
	e.logEvent(ctx, Event{
		PathID:    path.ID,
		UserID:    userID,
		EventType: EventPathGenerated,
		Data:      map[string]any{"topics": len(assessed), "global_readiness": readiness},
	})
	slog.Info("path generated", "path_id", path.ID, "topics", len(assessed), "global_readiness", readiness)
	return path, nil
}

type namingPrompt struct {
	TopicID         string
	TargetRole      string
	TargetSeniority string
	Mastery         int
}

// ModuleNames returns one name per module of a topic. It never fails: any
// problem with the completion falls back to "Module N" names.
func (e *Engine) ModuleNames(ctx context.Context, userID, topicID, role, seniority string, mastery int) map[int]string {
	if seniority == "" {
		seniority = "Mid-level"
	}
	names, err := e.moduleNames(ctx, userID, namingPrompt{
		TopicID:         topicID,
		TargetRole:      role,
		TargetSeniority: seniority,
		Mastery:         mastery,
	})
	if err != nil {
		slog.Warn("module naming failed, using generic names", "topic_id", topicID, "error", err)
		e.logEvent(ctx, Event{
			UserID:    userID,
			EventType: EventModuleNameFallback,
			Data:      map[string]any{"topic_id": topicID, "error": err.Error()},
		})
		return genericModuleNames()
	}
	return names
}

func (e *Engine) moduleNames(ctx context.Context, userID string, data namingPrompt) (map[int]string, error) {
	prompt, err := e.config.Render(promptModuleNaming, data)
	if err != nil {
		return nil, err
	}
	text, err := e.complete(ctx, userID, ai.TaskModuleNaming, contentGeneratorAgent, callModuleNaming, prompt)
	if err != nil {
		return nil, err
	}
	v, err := llmjson.Decode(text, llmjson.KindObject)
	if err != nil {
		return nil, err
	}
	return validate.ModuleNames(v, store.ModulesPerTopic)
}

func genericModuleNames() map[int]string {
	names := make(map[int]string, store.ModulesPerTopic)
	for i := 1; i <= store.ModulesPerTopic; i++ {
		names[i] = genericModuleName(i)
	}
	return names
}

func genericModuleName(moduleID int) string {
	return "Module " + strconv.Itoa(moduleID)
}

type reframePrompt struct {
	ModuleName      string
	CurrentJobTitle string
	TargetJobTitle  string
	TargetCompany   string
	Mastery         int
}

// Reframe renames a generic module for the user's transition. The original
// name is kept when the completion fails, is empty, is unchanged or runs
// longer than eight words.
func (e *Engine) Reframe(ctx context.Context, userID, moduleName string, form learning.JobForm, mastery int) string {
	prompt, err := e.config.Render(promptReframing, reframePrompt{
		ModuleName:      moduleName,
		CurrentJobTitle: orDefault(form.CurrentJobTitle, "Professional"),
		TargetJobTitle:  orDefault(form.TargetJobTitle, "Senior Professional"),
		TargetCompany:   orDefault(form.TargetCompany, "Industry"),
		Mastery:         mastery,
	})
	if err != nil {
		slog.Warn("reframing prompt failed", "module", moduleName, "error", err)
		return moduleName
	}
	text, err := e.complete(ctx, userID, ai.TaskReframing, contentGeneratorAgent, callReframing, prompt)
	if err != nil {
		slog.Warn("reframing failed, keeping module name", "module", moduleName, "error", err)
		return moduleName
	}

	reframed := strings.Trim(strings.TrimSpace(text), `"'`)
	reframed = strings.TrimSpace(reframed)
	if reframed == "" || reframed == moduleName || len(strings.Fields(reframed)) > maxReframedWords {
		return moduleName
	}
	return reframed
}

// ContentRequest asks for the content of one module.
type ContentRequest struct {
	UserID      string
	PathID      string
	TopicID     string
	ModuleID    int
	ModuleName  string // empty uses "Module N"
	Mastery     int    // the user's current mastery of the topic
	Form        learning.JobForm
	ModuleNames map[int]string // the topic's full module list, used to avoid overlap
}

// ContentResult is generated module content with curated references.
type ContentResult struct {
	Bundle     learning.ContentBundle
	ModuleName string // the name the content was generated for, possibly reframed
	Depth      float64
	Tier       resources.Tier
	Category   string
	Warnings   []validate.Warning
}

type contentPrompt struct {
	TopicID            string
	ModuleID           int
	ModuleName         string
	DepthScore         string
	DepthLevel         string
	ExplanationStyle   string
	QuestionDifficulty string
	CurrentSeniority   string
	CurrentJobTitle    string
	CurrentDescription string
	TargetSeniority    string
	TargetJobTitle     string
	TargetDescription  string
	TargetCompany      string
	Mastery            int
	AllModuleNames     string
}

// GenerateContent writes the content of one module. The references the
// model proposes are replaced by curated ones; they are only kept, after
// passing the quality gate, when the catalog has nothing for the module.
func (e *Engine) GenerateContent(ctx context.Context, req ContentRequest) (ContentResult, error) {
	if req.ModuleID < 1 || req.ModuleID > store.ModulesPerTopic {
		return ContentResult{}, fmt.Errorf("%w: module_id must be 1-%d, got %d", ErrInvalidRequest, store.ModulesPerTopic, req.ModuleID)
	}
	if req.TopicID == "" {
		return ContentResult{}, fmt.Errorf("%w: topic_id is required", ErrInvalidRequest)
	}

	t := e.config.Thresholds()
	depth := curriculum.DepthScore(t, req.Form.TargetSeniority, req.Mastery, req.ModuleID)

	moduleName := orDefault(req.ModuleName, genericModuleName(req.ModuleID))
	if curriculum.ShouldReframe(t, depth, req.Mastery, moduleName) {
		reframed := e.Reframe(ctx, req.UserID, moduleName, req.Form, req.Mastery)
		if reframed != moduleName {
			e.logEvent(ctx, Event{
				PathID:    req.PathID,
				UserID:    req.UserID,
				EventType: EventModuleReframed,
				Data:      map[string]any{"from": moduleName, "to": reframed},
			})
			moduleName = reframed
		}
	} else if curriculum.IsFoundational(t, depth, moduleName) {
		slog.Debug("foundational module, not reframed", "module", moduleName, "depth", depth)
	}

	instr := curriculum.Instructions(depth)
	prompt, err := e.config.Render(promptContent, contentPrompt{
		TopicID:            req.TopicID,
		ModuleID:           req.ModuleID,
		ModuleName:         moduleName,
		DepthScore:         strconv.FormatFloat(depth, 'f', 2, 64),
		DepthLevel:         instr.Level,
		ExplanationStyle:   instr.ExplanationStyle,
		QuestionDifficulty: instr.QuestionDifficulty,
		CurrentSeniority:   orDefault(req.Form.CurrentSeniority, "Intermediate"),
		CurrentJobTitle:    orDefault(req.Form.CurrentJobTitle, "Professional"),
		CurrentDescription: orDefault(req.Form.CurrentDescription, "General background"),
		TargetSeniority:    orDefault(req.Form.TargetSeniority, "Advanced"),
		TargetJobTitle:     orDefault(req.Form.TargetJobTitle, "Senior Professional"),
		TargetDescription:  orDefault(req.Form.TargetDescription, "Advanced skills required"),
		TargetCompany:      orDefault(req.Form.TargetCompany, "Industry"),
		Mastery:            req.Mastery,
		AllModuleNames:     curriculumOutline(req.ModuleNames, req.ModuleID),
	})
	if err != nil {
		return ContentResult{}, err
	}

	text, err := e.complete(ctx, req.UserID, ai.TaskContent, contentGeneratorAgent, callContent, prompt)
	if err != nil {
		return ContentResult{}, err
	}
	v, err := llmjson.Decode(text, llmjson.KindObject)
	if err != nil {
		return ContentResult{}, e.generationFailed(ctx, req.UserID, req.PathID, callContent, err)
	}
	validated, err := e.contentRules.Content(v)
	if err != nil {
		return ContentResult{}, e.generationFailed(ctx, req.UserID, req.PathID, callContent, err)
	}

	res := ContentResult{
		Bundle:     validated.Bundle,
		ModuleName: moduleName,
		Depth:      depth,
		Tier:       resources.DetermineTier(req.Mastery, req.Form.TargetSeniority),
		Warnings:   validated.Warnings,
	}

	resolution, err := e.resolver.Resolve(ctx, req.Form.TargetJobTitle, moduleName, res.Tier)
	if err != nil {
		return ContentResult{}, err
	}
	res.Category = resolution.Category
	if len(resolution.References) > 0 {
		res.Bundle.References = resolution.References
		if resolution.Warning != nil {
			res.Warnings = append(res.Warnings, *resolution.Warning)
		}
	} else {
		slog.Warn("no curated resources, checking model references", "module", moduleName, "count", len(res.Bundle.References))
		res.Bundle.References = e.gate.Check(ctx, res.Bundle.References, req.TopicID, moduleName)
	}

	for _, w := range res.Warnings {
		e.logEvent(ctx, Event{
			PathID:    req.PathID,
			UserID:    req.UserID,
			EventType: EventContentWarning,
			Data: map[string]any{
				"topic_id":  req.TopicID,
				"module_id": req.ModuleID,
				"warning":   w.Warning(),
			},
		})
	}
	e.logEvent(ctx, Event{
		PathID:    req.PathID,
		UserID:    req.UserID,
		EventType: EventContentGenerated,
		Data: map[string]any{
			"topic_id":   req.TopicID,
			"module_id":  req.ModuleID,
			"depth":      depth,
			"tier":       res.Tier.Key(),
			"references": len(res.Bundle.References),
		},
	})
	slog.Info("content generated",
		"topic_id", req.TopicID,
		"module_id", req.ModuleID,
		"depth", depth,
		"tier", res.Tier.Key(),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// curriculumOutline lists a topic's modules, marking the current one.
func curriculumOutline(names map[int]string, current int) string {
	if len(names) == 0 {
		return "(Not provided - generate standalone content)"
	}
	var b strings.Builder
	for i := 1; i <= store.ModulesPerTopic; i++ {
		name, ok := names[i]
		if !ok {
			name = genericModuleName(i)
		}
		fmt.Fprintf(&b, "  Module %d: %s", i, name)
		if i == current {
			b.WriteString(" <- YOU ARE HERE")
		}
		if i < store.ModulesPerTopic {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// QuizSubmission is a user's answers to the questions of one module.
type QuizSubmission struct {
	UserID    string
	PathID    string
	TopicID   string
	ModuleID  int
	Questions []learning.Question
	Answers   map[string]string // question ID -> answer letter
}

// QuizResult is the outcome of a graded submission.
type QuizResult struct {
	Correct     int             `json:"correct"`
	Total       int             `json:"total"`
	Results     map[string]bool `json:"results"`
	Completed   bool            `json:"completed"`
	PathMastery float64         `json:"path_mastery"`
}

// SubmitQuiz grades and records every answer. The module is completed only
// when all answers are correct.
func (e *Engine) SubmitQuiz(ctx context.Context, sub QuizSubmission) (QuizResult, error) {
	if len(sub.Questions) == 0 {
		return QuizResult{}, fmt.Errorf("%w: no questions", ErrInvalidRequest)
	}

	res := QuizResult{Total: len(sub.Questions), Results: make(map[string]bool, len(sub.Questions))}
	for _, q := range sub.Questions {
		answer := strings.TrimSpace(sub.Answers[q.ID])
		correct := validate.GradeAnswer(answer, q.CorrectAnswer)
		if correct {
			res.Correct++
		}
		res.Results[q.ID] = correct

		if err := e.store.RecordAnswer(ctx, store.Answer{
			UserID:     sub.UserID,
			PathID:     sub.PathID,
			TopicID:    sub.TopicID,
			ModuleID:   sub.ModuleID,
			QuestionID: q.ID,
			UserAnswer: answer,
			Correct:    correct,
		}); err != nil {
			return QuizResult{}, fmt.Errorf("record answer: %w", err)
		}
	}
	e.logEvent(ctx, Event{
		PathID:    sub.PathID,
		UserID:    sub.UserID,
		EventType: EventAnswerRecorded,
		Data:      map[string]any{"topic_id": sub.TopicID, "module_id": sub.ModuleID, "correct": res.Correct, "total": res.Total},
	})

	if res.Correct == res.Total {
		if err := e.store.CompleteModule(ctx, sub.UserID, sub.PathID, sub.TopicID, sub.ModuleID); err != nil {
			return QuizResult{}, fmt.Errorf("complete module: %w", err)
		}
		res.Completed = true
		e.logEvent(ctx, Event{
			PathID:    sub.PathID,
			UserID:    sub.UserID,
			EventType: EventModuleCompleted,
			Data:      map[string]any{"topic_id": sub.TopicID, "module_id": sub.ModuleID},
		})
	}

	mastery, err := e.PathMastery(ctx, sub.UserID, sub.PathID)
	if err != nil {
		return QuizResult{}, err
	}
	res.PathMastery = mastery
	return res, nil
}

// PathMastery returns the path's current mastery including completed modules.
func (e *Engine) PathMastery(ctx context.Context, userID, pathID string) (float64, error) {
	path, err := e.store.GetPath(ctx, pathID)
	if err != nil {
		return 0, fmt.Errorf("load path: %w", err)
	}
	completed, err := e.store.CompletedModules(ctx, userID, pathID)
	if err != nil {
		return 0, fmt.Errorf("load completed modules: %w", err)
	}
	return store.PathMastery(path.Topics, completed), nil
}

func (e *Engine) complete(ctx context.Context, userID string, task ai.TaskType, agentName, callName, prompt string) (string, error) {
	cc := e.callConfig(agentName, callName)
	text, tokens, err := e.completer.Complete(ctx, ai.Call{
		UserID:      userID,
		Task:        task,
		Prompt:      prompt,
		Temperature: cc.Temperature,
		MaxTokens:   cc.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	slog.Debug("completion received", "agent", agentName, "call", callName, "tokens", tokens)
	return text, nil
}

func (e *Engine) callConfig(agentName, callName string) curriculum.CallConfig {
	if cc, ok := e.config.Call(agentName, callName); ok {
		return cc
	}
	slog.Warn("no call config, using defaults", "agent", agentName, "call", callName)
	return defaultCall
}

// recentSkills lists the topics mastered within the recent window, or
// "None".
func (e *Engine) recentSkills(ctx context.Context, userID string) (string, error) {
	recent, err := e.store.RecentlyMastered(ctx, userID, e.now().Add(-e.recentWindow))
	if err != nil {
		return "", fmt.Errorf("recent skills: %w", err)
	}
	if len(recent) == 0 {
		return "None", nil
	}
	return strings.Join(recent, ", "), nil
}

// topicRules builds the topic validation rules from the configured
// difficulty synonyms.
func (e *Engine) topicRules() validate.TopicRules {
	synonyms := e.config.Thresholds().DifficultySynonyms
	if len(synonyms) == 0 {
		return validate.DefaultTopicRules()
	}

	rules := validate.TopicRules{DifficultySynonyms: make(map[string]learning.Difficulty, len(synonyms))}
	for label, level := range synonyms {
		d := learning.Difficulty(strings.ToLower(level))
		if !d.Valid() {
			slog.Warn("ignoring difficulty synonym", "label", label, "level", level)
			continue
		}
		rules.DifficultySynonyms[strings.ToLower(label)] = d
	}
	return rules
}

// generationFailed records a rejected completion and returns err unchanged.
func (e *Engine) generationFailed(ctx context.Context, userID, pathID, call string, err error) error {
	kind := failureKind(err)
	slog.Warn("completion rejected", "call", call, "kind", kind, "error", err)
	e.logEvent(ctx, Event{
		PathID:    pathID,
		UserID:    userID,
		EventType: EventGenerationFailed,
		Data:      map[string]any{"call": call, "kind": kind, "error": err.Error()},
	})
	return err
}

// failureKind names the stage that rejected a completion.
func failureKind(err error) string {
	switch {
	case errors.Is(err, llmjson.ErrExtraction):
		return "extraction"
	case errors.Is(err, validate.ErrGraphInvariant):
		return "graph"
	case errors.Is(err, validate.ErrSchemaViolation):
		return "schema"
	default:
		return "unknown"
	}
}

// logEvent records ev even when the caller's context is already canceled.
func (e *Engine) logEvent(ctx context.Context, ev Event) {
	if err := e.events.LogEvent(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("failed to log event", "type", ev.EventType, "error", err)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
