package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, CrawlShallow, cfg.CrawlDepth)
	assert.Equal(t, 6, cfg.CollectorLimit)
	assert.Equal(t, 4, cfg.Providers.Gemini.MaxConcurrent)
	assert.Equal(t, 0.6, cfg.Tuning.MergeThreshold)
	assert.Equal(t, 5, cfg.Tuning.PlanCaps.Immediate)
	assert.Equal(t, 7, cfg.Tuning.PlanCaps.ShortTerm)
	assert.Equal(t, 25.0, cfg.Tuning.Deductions.Critical)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.LLM)
}

func TestSampleSizePerDepth(t *testing.T) {
	assert.Equal(t, 10, CrawlSurface.SampleSize())
	assert.Equal(t, 50, CrawlShallow.SampleSize())
	assert.Equal(t, 150, CrawlDeep.SampleSize())
	assert.Equal(t, 50, CrawlDepth("").SampleSize())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawl_depth: deep
psi_enabled: false
tuning:
  merge_threshold: 0.75
providers:
  openai:
    max_concurrent: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CrawlDeep, cfg.CrawlDepth)
	assert.False(t, cfg.PSIEnabled)
	assert.Equal(t, 0.75, cfg.Tuning.MergeThreshold)
	assert.Equal(t, 2, cfg.Providers.OpenAI.MaxConcurrent)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("SERPAPI_KEY", "env-serp")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "env-gemini", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, "env-serp", cfg.Keys.SerpAPI)
}

func TestEnvDoesNotClobberFileValue(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "from-file"
	cfg.ApplyEnv()
	assert.Equal(t, "from-file", cfg.Providers.OpenAI.APIKey)
}
