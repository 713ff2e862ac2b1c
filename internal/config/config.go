// Package config holds the run configuration for the audit pipeline:
// crawl depth, provider budgets, API keys, named timeouts, and the tuning
// knobs the merger and scorer expose. Loaded once per process; treated as
// read-only afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlDepth controls how many URLs the sampling plan keeps.
type CrawlDepth string

const (
	CrawlSurface CrawlDepth = "surface"
	CrawlShallow CrawlDepth = "shallow"
	CrawlDeep    CrawlDepth = "deep"
)

// SampleSize maps the depth to the sampled URL count.
func (d CrawlDepth) SampleSize() int {
	switch d {
	case CrawlSurface:
		return 10
	case CrawlDeep:
		return 150
	default:
		return 50
	}
}

// VisualMode controls how the visual audit sees the page.
type VisualMode string

const (
	VisualURLContext VisualMode = "url_context"
	VisualRendered   VisualMode = "rendered"
	VisualBoth       VisualMode = "both"
	VisualNone       VisualMode = "none"
)

// SecurityScope controls how deep the security probe goes.
type SecurityScope string

const (
	SecurityHeadersOnly SecurityScope = "headers_only"
	SecurityFull        SecurityScope = "full"
)

// ProviderSettings configures one LLM provider.
type ProviderSettings struct {
	APIKey        string `yaml:"api_key"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Model         string `yaml:"model"`
}

// Providers configures the provider pair the registry serves.
type Providers struct {
	Gemini ProviderSettings `yaml:"gemini"`
	OpenAI ProviderSettings `yaml:"openai"`
}

// Keys holds the collector-side service credentials. Missing keys degrade
// the relevant probe to a collector error; they never abort the run.
type Keys struct {
	ScreenshotOne      string `yaml:"screenshotone_api_key"`
	PSI                string `yaml:"psi_api_key"`
	SerpAPI            string `yaml:"serpapi_key"`
	DataForSEOLogin    string `yaml:"dataforseo_login"`
	DataForSEOPassword string `yaml:"dataforseo_password"`
}

// Timeouts are the named per-probe deadlines.
type Timeouts struct {
	DNS        time.Duration `yaml:"dns"`
	TLS        time.Duration `yaml:"tls"`
	Robots     time.Duration `yaml:"robots"`
	RootFetch  time.Duration `yaml:"root_fetch"`
	HTMLSample time.Duration `yaml:"html_sample"`
	Sitemap    time.Duration `yaml:"sitemap"`
	WellKnown  time.Duration `yaml:"well_known"`
	Screenshot time.Duration `yaml:"screenshot"`
	Lighthouse time.Duration `yaml:"lighthouse"`
	Serp       time.Duration `yaml:"serp"`
	LLM        time.Duration `yaml:"llm"`
}

// DefaultTimeouts returns the named defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		DNS:        5 * time.Second,
		TLS:        5 * time.Second,
		Robots:     5 * time.Second,
		RootFetch:  10 * time.Second,
		HTMLSample: 8 * time.Second,
		Sitemap:    15 * time.Second,
		WellKnown:  5 * time.Second,
		Screenshot: 60 * time.Second,
		Lighthouse: 60 * time.Second,
		Serp:       15 * time.Second,
		LLM:        30 * time.Second,
	}
}

// ActionPlanCaps bounds the action-plan buckets.
type ActionPlanCaps struct {
	Immediate int `yaml:"immediate"`
	ShortTerm int `yaml:"short_term"`
	LongTerm  int `yaml:"long_term"`
}

// Deductions are the per-priority score deductions.
type Deductions struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

// Tuning surfaces the knobs the source treats as parameters: merge
// threshold, key-phrase boost list, plan caps, and deductions.
type Tuning struct {
	MergeThreshold float64        `yaml:"merge_threshold"`
	KeyPhrases     []string       `yaml:"key_phrases"`
	PlanCaps       ActionPlanCaps `yaml:"plan_caps"`
	Deductions     Deductions     `yaml:"deductions"`
}

// DefaultTuning returns the source defaults.
func DefaultTuning() Tuning {
	return Tuning{
		MergeThreshold: 0.6,
		KeyPhrases: []string{
			"title", "description", "canonical", "lcp", "cls", "hsts",
			"https", "sitemap", "robots", "h1", "alt", "schema", "viewport",
		},
		PlanCaps:   ActionPlanCaps{Immediate: 5, ShortTerm: 7, LongTerm: 5},
		Deductions: Deductions{Critical: 25, High: 15, Medium: 8, Low: 3},
	}
}

// Config is the full run configuration.
type Config struct {
	CrawlDepth         CrawlDepth    `yaml:"crawl_depth"`
	VisualMode         VisualMode    `yaml:"visual_mode"`
	PSIEnabled         bool          `yaml:"psi_enabled"`
	SecurityScope      SecurityScope `yaml:"security_scope"`
	EnableCodebasePeek bool          `yaml:"enable_codebase_peek"`
	EnablePDP          bool          `yaml:"enable_pdp"`
	CollectorLimit     int           `yaml:"collector_limit"`

	Providers Providers `yaml:"providers"`
	Keys      Keys      `yaml:"keys"`
	Timeouts  Timeouts  `yaml:"timeouts"`
	Tuning    Tuning    `yaml:"tuning"`

	// SecurityScanCommand is the optional external scanner CLI. Empty
	// disables the probe.
	SecurityScanCommand string `yaml:"security_scan_command"`

	ToolVersions   string `yaml:"tool_versions"`
	PromptVersions string `yaml:"prompt_versions"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		CrawlDepth:     CrawlShallow,
		VisualMode:     VisualRendered,
		PSIEnabled:     true,
		SecurityScope:  SecurityHeadersOnly,
		CollectorLimit: 6,
		Providers: Providers{
			Gemini: ProviderSettings{MaxConcurrent: 4, Model: "gemini-2.5-flash"},
			OpenAI: ProviderSettings{MaxConcurrent: 4, Model: "gpt-4o"},
		},
		Timeouts:       DefaultTimeouts(),
		Tuning:         DefaultTuning(),
		ToolVersions:   "fetch@1;dns@1;tls@1;sitemap@1;screenshot@1;psi@1;serp@1",
		PromptVersions: "visual@1;serp@1;synthesis@1",
	}
}

// Load reads a YAML config file over the defaults, then applies env
// overrides for credentials.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv fills credentials from the environment when the config file
// left them empty.
func (c *Config) ApplyEnv() {
	setIfEmpty(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setIfEmpty(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.Keys.ScreenshotOne, "SCREENSHOTONE_API_KEY")
	setIfEmpty(&c.Keys.PSI, "PSI_API_KEY")
	setIfEmpty(&c.Keys.SerpAPI, "SERPAPI_KEY")
	setIfEmpty(&c.Keys.DataForSEOLogin, "DATAFORSEO_LOGIN")
	setIfEmpty(&c.Keys.DataForSEOPassword, "DATAFORSEO_PASSWORD")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}
