package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/pai-learnpath/internal/agent"
	"github.com/p-n-ai/pai-learnpath/internal/ai"
	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
	"github.com/p-n-ai/pai-learnpath/internal/report"
	"github.com/p-n-ai/pai-learnpath/internal/store"
	"github.com/p-n-ai/pai-learnpath/internal/validate"
)

const (
	maxBodyBytes    = 1 << 20
	readinessWindow = 3 * time.Second
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// checkFunc reports whether one dependency is usable.
type checkFunc func(ctx context.Context) error

// app holds what the HTTP handlers need.
type app struct {
	engine *agent.Engine
	store  store.Store
	// checks run on /readyz, keyed by dependency name.
	checks map[string]checkFunc
	// reload re-reads prompts, thresholds and the resource catalog.
	reload func() error
	// isAdmin reports whether an email is listed as an admin in config.
	isAdmin func(email string) bool
}

// newMux creates the HTTP router with health and API endpoints.
func newMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("POST /v1/users", a.handleCreateUser)
	mux.HandleFunc("POST /v1/sessions", a.handleLogin)
	mux.HandleFunc("GET /v1/users/{id}/paths", a.handleListPaths)
	mux.HandleFunc("GET /v1/users/{id}/skills", a.handleSkills)

	mux.HandleFunc("POST /v1/paths", a.handleGeneratePath)
	mux.HandleFunc("GET /v1/paths/{id}", a.handleGetPath)
	mux.HandleFunc("GET /v1/paths/{id}/export", a.handleExport)
	mux.HandleFunc("POST /v1/modules", a.handleModuleNames)
	mux.HandleFunc("POST /v1/content", a.handleGenerateContent)
	mux.HandleFunc("POST /v1/quiz", a.handleSubmitQuiz)

	mux.HandleFunc("POST /v1/admin/reload", a.handleReload)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessWindow)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *app) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeMessage(w, http.StatusBadRequest, "email is required")
		return
	}

	u, err := a.store.CreateUser(r.Context(), req.Name, req.Email, req.Password, a.adminEmail(req.Email))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *app) handleListPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := a.store.ListPaths(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paths)
}

func (a *app) handleSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := a.store.Skills(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

type generatePathRequest struct {
	UserID string           `json:"user_id"`
	Form   learning.JobForm `json:"form"`
}

func (a *app) handleGeneratePath(w http.ResponseWriter, r *http.Request) {
	var req generatePathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := a.store.GetUser(r.Context(), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	path, err := a.engine.GeneratePath(r.Context(), req.UserID, req.Form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, path)
}

type pathResponse struct {
	store.Path
	CompletedModules map[string][]int `json:"completed_modules"`
	PathMastery      float64          `json:"path_mastery"`
}

func (a *app) handleGetPath(w http.ResponseWriter, r *http.Request) {
	path, completed, ok := a.loadPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{
		Path:             path,
		CompletedModules: completed,
		PathMastery:      store.PathMastery(path.Topics, completed),
	})
}

func (a *app) handleExport(w http.ResponseWriter, r *http.Request) {
	path, completed, ok := a.loadPath(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WritePathWorkbook(&buf, path, completed); err != nil {
		writeError(w, r, fmt.Errorf("export path %s: %w", path.ID, err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="path-%s.xlsx"`, path.ID))
	w.Write(buf.Bytes())
}

// loadPath loads the path named in the URL with the completed modules of
// its owner.
func (a *app) loadPath(w http.ResponseWriter, r *http.Request) (store.Path, map[string][]int, bool) {
	path, err := a.store.GetPath(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return store.Path{}, nil, false
	}
	completed, err := a.store.CompletedModules(r.Context(), path.UserID, path.ID)
	if err != nil {
		writeError(w, r, err)
		return store.Path{}, nil, false
	}
	return path, completed, true
}

type moduleNamesRequest struct {
	UserID  string `json:"user_id"`
	PathID  string `json:"path_id"`
	TopicID string `json:"topic_id"`
}

func (a *app) handleModuleNames(w http.ResponseWriter, r *http.Request) {
	var req moduleNamesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, topic, err := a.pathTopic(r.Context(), req.PathID, req.TopicID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	names := a.engine.ModuleNames(r.Context(), req.UserID, topic.TopicID,
		path.Form.TargetJobTitle, path.Form.TargetSeniority, topic.Mastery)
	writeJSON(w, http.StatusOK, map[string]any{"topic_id": topic.TopicID, "modules": names})
}

type contentRequest struct {
	UserID      string         `json:"user_id"`
	PathID      string         `json:"path_id"`
	TopicID     string         `json:"topic_id"`
	ModuleID    int            `json:"module_id"`
	ModuleName  string         `json:"module_name"`
	ModuleNames map[int]string `json:"module_names"`
}

type contentResponse struct {
	learning.ContentBundle
	GeneratedFor string   `json:"generated_for"`
	Depth        float64  `json:"depth"`
	Tier         string   `json:"tier"`
	Category     string   `json:"category,omitempty"`
	Warnings     []string `json:"warnings"`
}

func (a *app) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, topic, err := a.pathTopic(r.Context(), req.PathID, req.TopicID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	moduleName := req.ModuleName
	if moduleName == "" {
		moduleName = req.ModuleNames[req.ModuleID]
	}
	res, err := a.engine.GenerateContent(r.Context(), agent.ContentRequest{
		UserID:      req.UserID,
		PathID:      path.ID,
		TopicID:     topic.TopicID,
		ModuleID:    req.ModuleID,
		ModuleName:  moduleName,
		Mastery:     topic.Mastery,
		Form:        path.Form,
		ModuleNames: req.ModuleNames,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	warnings := make([]string, 0, len(res.Warnings))
	for _, wn := range res.Warnings {
		warnings = append(warnings, wn.Warning())
	}
	writeJSON(w, http.StatusOK, contentResponse{
		ContentBundle: res.Bundle,
		GeneratedFor:  res.ModuleName,
		Depth:         res.Depth,
		Tier:          res.Tier.Key(),
		Category:      res.Category,
		Warnings:      warnings,
	})
}

// pathTopic loads a path and one of its assessed topics.
func (a *app) pathTopic(ctx context.Context, pathID, topicID string) (store.Path, learning.AssessedTopic, error) {
	path, err := a.store.GetPath(ctx, pathID)
	if err != nil {
		return store.Path{}, learning.AssessedTopic{}, err
	}
	for _, t := range path.Topics {
		if t.TopicID == topicID {
			return path, t, nil
		}
	}
	return store.Path{}, learning.AssessedTopic{}, fmt.Errorf("topic %q in path %s: %w", topicID, pathID, store.ErrNotFound)
}

type quizRequest struct {
	UserID    string              `json:"user_id"`
	PathID    string              `json:"path_id"`
	TopicID   string              `json:"topic_id"`
	ModuleID  int                 `json:"module_id"`
	Questions []learning.Question `json:"questions"`
	Answers   map[string]string   `json:"answers"`
}

func (a *app) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, _, err := a.pathTopic(r.Context(), req.PathID, req.TopicID); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := a.engine.SubmitQuiz(r.Context(), agent.QuizSubmission{
		UserID:    req.UserID,
		PathID:    req.PathID,
		TopicID:   req.TopicID,
		ModuleID:  req.ModuleID,
		Questions: req.Questions,
		Answers:   req.Answers,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// adminEmail reports whether email is currently listed as an admin.
func (a *app) adminEmail(email string) bool {
	return a.isAdmin != nil && a.isAdmin(email)
}

type reloadRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleReload requires admin credentials. A stored admin flag or a current
// listing in the admin users file both qualify.
func (a *app) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !u.IsAdmin && !a.adminEmail(u.Email) {
		writeMessage(w, http.StatusForbidden, "admin only")
		return
	}
	if err := a.reload(); err != nil {
		slog.Error("config reload failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "reload failed, previous configuration kept")
		return
	}
	slog.Info("config reloaded", "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeError maps domain errors to HTTP statuses. Failures caused by model
// output are reported as retryable without their details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validate.ErrSchemaViolation),
		errors.Is(err, validate.ErrGraphInvariant),
		errors.Is(err, llmjson.ErrExtraction):
		slog.Warn("generated output rejected", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusUnprocessableEntity, "regeneration failed, please retry")
	case errors.Is(err, agent.ErrInvalidRequest), errors.Is(err, store.ErrWeakPassword):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ai.ErrBudgetExhausted):
		writeMessage(w, http.StatusTooManyRequests, "token budget exhausted")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
