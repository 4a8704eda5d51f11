package curriculum

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	// ThresholdsFile is the name of the thresholds file in the config root.
	ThresholdsFile = "thresholds.yaml"
	// AdminsFile lists the emails granted admin rights. It is optional.
	AdminsFile = "admin_users.yaml"
)

// Loader loads and caches operator configuration from a directory laid out as
//
//	thresholds.yaml
//	admin_users.yaml
//	prompts/*.yaml
//	agents/*.yaml
type Loader struct {
	rootDir    string
	thresholds Thresholds
	prompts    map[string]*template.Template
	agents     map[string]AgentConfig
	admins     map[string]bool
	mu         sync.RWMutex
}

// NewLoader creates a new config loader and loads all files.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{rootDir: rootDir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the config directory. On error the previously loaded
// configuration stays in place.
func (l *Loader) Reload() error {
	thresholds, err := loadThresholds(filepath.Join(l.rootDir, ThresholdsFile))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	admins, err := loadAdmins(filepath.Join(l.rootDir, AdminsFile))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prompts := make(map[string]*template.Template)
	agents := make(map[string]AgentConfig)

	err = filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		switch filepath.Base(filepath.Dir(path)) {
		case "prompts":
			return loadPrompt(path, prompts)
		case "agents":
			return loadAgent(path, agents)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	l.mu.Lock()
	l.thresholds = thresholds
	l.prompts = prompts
	l.agents = agents
	l.admins = admins
	l.mu.Unlock()

	slog.Info("config loaded", "dir", l.rootDir, "prompts", len(prompts), "agents", len(agents), "admins", len(admins))
	return nil
}

// Thresholds returns the loaded thresholds.
func (l *Loader) Thresholds() Thresholds {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.thresholds
}

// IsAdmin reports whether email is listed in the admin users file.
// Emails compare case-insensitively.
func (l *Loader) IsAdmin(email string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admins[normalizeEmail(email)]
}

// Call returns the sampling configuration for a call made by an agent.
func (l *Loader) Call(agent, call string) (CallConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[agent]
	if !ok {
		return CallConfig{}, false
	}
	c, ok := a.Calls[call]
	return c, ok
}

// Render executes the named prompt template with data.
func (l *Loader) Render(name string, data any) (string, error) {
	l.mu.RLock()
	tmpl, ok := l.prompts[name]
	l.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return buf.String(), nil
}

func loadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Thresholds{}, fmt.Errorf("%s is empty", path)
	}

	var t Thresholds
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if t.Depth.ModuleProgression.Divisor <= 0 {
		return Thresholds{}, errors.New("depth_calculation.module_progression.divisor must be positive")
	}
	return t, nil
}

type adminsFile struct {
	AdminEmails []string `yaml:"admin_emails"`
}

func loadAdmins(path string) (map[string]bool, error) {
	admins := make(map[string]bool)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return admins, nil
	}
	if err != nil {
		return nil, err
	}

	var f adminsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, email := range f.AdminEmails {
		if e := normalizeEmail(email); e != "" {
			admins[e] = true
		}
	}
	return admins, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func loadPrompt(path string, prompts map[string]*template.Template) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var p promptFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		slog.Warn("skipping invalid prompt YAML", "path", path, "error", err)
		return nil
	}
	if p.Name == "" || p.Template == "" {
		return nil
	}

	tmpl, err := template.New(p.Name).Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return fmt.Errorf("parsing prompt %s: %w", path, err)
	}
	prompts[p.Name] = tmpl
	return nil
}

func loadAgent(path string, agents map[string]AgentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var a AgentConfig
	if err := yaml.Unmarshal(data, &a); err != nil {
		slog.Warn("skipping invalid agent YAML", "path", path, "error", err)
		return nil
	}
	if a.Name == "" {
		return nil
	}
	agents[a.Name] = a
	return nil
}
