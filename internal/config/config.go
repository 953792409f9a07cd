package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds settings loaded from research.yml.
type Config struct {
	Search   SearchConfig   `yaml:"search,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	Research ResearchConfig `yaml:"research,omitempty"`
	Sources  SourcesConfig  `yaml:"sources,omitempty"`
	Fetch    FetchConfig    `yaml:"fetch,omitempty"`

	// ArchiveDir receives a JSON export of every finished job. Empty disables archiving.
	ArchiveDir string `yaml:"archiveDir,omitempty"`
	Verbose    bool   `yaml:"verbose,omitempty"`
}

// SearchConfig configures the web search backend and its dispatcher.
type SearchConfig struct {
	Provider       string   `yaml:"provider,omitempty"` // "brave" or "duckduckgo"
	BraveAPIKey    string   `yaml:"braveApiKey,omitempty"`
	Count          int      `yaml:"count,omitempty"`
	MaxAttempts    int      `yaml:"maxAttempts,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty"`
	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`
	RatePerSecond  float64  `yaml:"ratePerSecond,omitempty"`
	Burst          int      `yaml:"burst,omitempty"`
	MaxQueueWait   Duration `yaml:"maxQueueWait,omitempty"`
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Model          string   `yaml:"model,omitempty"`
	SubagentModels []string `yaml:"subagentModels,omitempty"`
	Temperature    float64  `yaml:"temperature,omitempty"`
	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`
	MaxAttempts    int      `yaml:"maxAttempts,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty"`
}

// CacheConfig configures the on-disk search cache.
type CacheConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// ResearchConfig bounds the orchestration loop.
type ResearchConfig struct {
	Concurrency         int      `yaml:"concurrency,omitempty"`
	MinSubtopics        int      `yaml:"minSubtopics,omitempty"`
	MaxSubtopics        int      `yaml:"maxSubtopics,omitempty"`
	MaxRefinementRounds *int     `yaml:"maxRefinementRounds,omitempty"`
	ScopingSearch       *bool    `yaml:"scopingSearch,omitempty"`
	TaskTimeout         Duration `yaml:"taskTimeout,omitempty"`
	ResearchDeadline    Duration `yaml:"researchDeadline,omitempty"`
}

// SourcesConfig selects the source graph backend.
type SourcesConfig struct {
	Graph string `yaml:"graph,omitempty"` // "memory" or "kuzu"
	Path  string `yaml:"path,omitempty"`  // kuzu database directory; empty means in-memory
}

// FetchConfig controls reading result pages before each subtopic is
// summarized.
type FetchConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	MaxPages    int      `yaml:"maxPages,omitempty"` // per subtopic
	MaxChars    int      `yaml:"maxChars,omitempty"` // per page, after cleaning
	Timeout     Duration `yaml:"timeout,omitempty"`
	Concurrency int      `yaml:"concurrency,omitempty"`
	Blocked     []string `yaml:"blocked,omitempty"` // hosts never fetched
}

// On reports whether page fetching is enabled.
func (f FetchConfig) On() bool { return f.Enabled != nil && *f.Enabled }

// Defaults used when a field is left unset.
const (
	DefaultProvider            = "brave"
	DefaultSearchCount         = 5
	DefaultMaxAttempts         = 3
	DefaultInitialBackoff      = 500 * time.Millisecond
	DefaultMaxBackoff          = 8 * time.Second
	DefaultSearchTimeout       = 20 * time.Second
	DefaultRatePerSecond       = 1.0
	DefaultBurst               = 1
	DefaultMaxQueueWait        = 30 * time.Second
	DefaultLLMHost             = "http://localhost:11434"
	DefaultLLMModel            = "gpt-oss:20b"
	DefaultLLMTimeout          = 5 * time.Minute
	DefaultCacheDir            = "cache"
	DefaultConcurrency         = 5
	DefaultMinSubtopics        = 2
	DefaultMaxSubtopics        = 5
	DefaultMaxRefinementRounds = 1
	DefaultTaskTimeout         = 10 * time.Minute
	DefaultResearchDeadline    = 30 * time.Minute
	DefaultFetchPages          = 5
	DefaultFetchChars          = 12000
	DefaultFetchTimeout        = 30 * time.Second
	DefaultFetchConcurrency    = 5
)

// DefaultFetchBlocked are the hosts skipped when fetch.blocked is unset.
var DefaultFetchBlocked = []string{"r.jina.ai"}

// Load attempts to read research.yml or research.yaml from the given
// directory. A missing file yields the defaults (not an error). Environment
// overrides are applied after the file.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	for _, name := range []string{"research.yml", "research.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadFile reads an explicit config file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. getenv is injected
// so tests do not depend on the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BRAVE_API_KEY"); v != "" {
		c.Search.BraveAPIKey = v
	}
	if v := getenv("SEARCH_PROVIDER"); v != "" {
		c.Search.Provider = v
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		c.LLM.Host = v
	}
	if v := getenv("OLLAMA_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("RESEARCH_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := getenv("RESEARCH_FETCH"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Fetch.Enabled = &on
		}
	}
	if v := getenv("RESEARCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Research.Concurrency = n
		}
	}
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	s := &c.Search
	if s.Provider == "" {
		s.Provider = DefaultProvider
	}
	if s.Count <= 0 {
		s.Count = DefaultSearchCount
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.InitialBackoff <= 0 {
		s.InitialBackoff = Duration(DefaultInitialBackoff)
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = Duration(DefaultMaxBackoff)
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = Duration(DefaultSearchTimeout)
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = DefaultRatePerSecond
	}
	if s.Burst <= 0 {
		s.Burst = DefaultBurst
	}
	if s.MaxQueueWait <= 0 {
		s.MaxQueueWait = Duration(DefaultMaxQueueWait)
	}

	l := &c.LLM
	if l.Host == "" {
		l.Host = DefaultLLMHost
	}
	if l.Model == "" {
		l.Model = DefaultLLMModel
	}
	if l.RequestTimeout <= 0 {
		l.RequestTimeout = Duration(DefaultLLMTimeout)
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = DefaultMaxAttempts
	}
	if l.InitialBackoff <= 0 {
		l.InitialBackoff = Duration(DefaultInitialBackoff)
	}
	if l.MaxBackoff <= 0 {
		l.MaxBackoff = Duration(DefaultMaxBackoff)
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}

	r := &c.Research
	if r.Concurrency <= 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.MinSubtopics <= 0 {
		r.MinSubtopics = DefaultMinSubtopics
	}
	if r.MaxSubtopics < r.MinSubtopics {
		r.MaxSubtopics = DefaultMaxSubtopics
		if r.MaxSubtopics < r.MinSubtopics {
			r.MaxSubtopics = r.MinSubtopics
		}
	}
	if r.MaxRefinementRounds == nil {
		n := DefaultMaxRefinementRounds
		r.MaxRefinementRounds = &n
	}
	if r.ScopingSearch == nil {
		on := true
		r.ScopingSearch = &on
	}
	if r.TaskTimeout <= 0 {
		r.TaskTimeout = Duration(DefaultTaskTimeout)
	}
	if r.ResearchDeadline <= 0 {
		r.ResearchDeadline = Duration(DefaultResearchDeadline)
	}

	if c.Sources.Graph == "" {
		c.Sources.Graph = "memory"
	}

	f := &c.Fetch
	if f.Enabled == nil {
		on := true
		f.Enabled = &on
	}
	if f.MaxPages <= 0 {
		f.MaxPages = DefaultFetchPages
	}
	if f.MaxChars <= 0 {
		f.MaxChars = DefaultFetchChars
	}
	if f.Timeout <= 0 {
		f.Timeout = Duration(DefaultFetchTimeout)
	}
	if f.Concurrency <= 0 {
		f.Concurrency = DefaultFetchConcurrency
	}
	if f.Blocked == nil {
		f.Blocked = append([]string(nil), DefaultFetchBlocked...)
	}
}
