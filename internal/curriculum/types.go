package curriculum

// Thresholds holds the tunable parameters for depth scoring and content
// personalization, loaded from thresholds.yaml.
type Thresholds struct {
	Depth              DepthCalculation       `yaml:"depth_calculation"`
	Personalization    ContentPersonalization `yaml:"content_personalization"`
	DifficultySynonyms map[string]string      `yaml:"difficulty_synonyms"`
}

// DepthCalculation configures DepthScore.
type DepthCalculation struct {
	SeniorityLevels   map[string]float64 `yaml:"seniority_levels"`
	Weights           DepthWeights       `yaml:"weights"`
	ModuleProgression ModuleProgression  `yaml:"module_progression"`
	MaxDepth          float64            `yaml:"max_depth"`
}

// DepthWeights balances target seniority against current mastery.
type DepthWeights struct {
	TargetSeniority float64 `yaml:"target_seniority"`
	Mastery         float64 `yaml:"mastery"`
}

// ModuleProgression adds a per-module bonus so later modules go deeper.
type ModuleProgression struct {
	Divisor  float64 `yaml:"divisor"`
	MaxBonus float64 `yaml:"max_bonus"`
}

// ContentPersonalization decides when module names are reframed for a user.
type ContentPersonalization struct {
	FoundationalThreshold float64  `yaml:"foundational_threshold"`
	FoundationalKeywords  []string `yaml:"foundational_keywords"`
	ReframingThreshold    float64  `yaml:"reframing_threshold"`
	SkipBasicsMastery     int      `yaml:"skip_basics_mastery"`
}

// CallConfig is the sampling configuration for one kind of completion.
type CallConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AgentConfig is one agents/*.yaml file.
type AgentConfig struct {
	Name  string                `yaml:"name"`
	Calls map[string]CallConfig `yaml:"calls"`
}

// promptFile is one prompts/*.yaml file.
type promptFile struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

// DepthInstructions tells the content prompt how deep to pitch a module.
type DepthInstructions struct {
	Level              string
	ExplanationStyle   string
	QuestionDifficulty string
}
