package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Engine.MinConfidence)
	assert.Equal(t, 3, cfg.Engine.MinSources)
	assert.Equal(t, 5, cfg.Engine.MaxIterations)
	assert.Equal(t, "comprehensive", cfg.Engine.ValidationLevel)
	assert.Equal(t, "localhost", cfg.Search.Vector.Host)
	assert.Equal(t, 6333, cfg.Search.Vector.Port)
	assert.Equal(t, "sources", cfg.Search.Vector.Collection)
	assert.Equal(t, 2112, cfg.Metrics.Port)
	assert.Equal(t, "json", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := `engine:
  min_confidence: 0.75
  min_sources: 2
  validation_level: exhaustive
search:
  vector:
    collection: research
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Engine.MinConfidence)
	assert.Equal(t, 2, cfg.Engine.MinSources)
	assert.Equal(t, "exhaustive", cfg.Engine.ValidationLevel)
	assert.Equal(t, "research", cfg.Search.Vector.Collection)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Engine.MaxIterations)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DEEPSEARCH_ENGINE_MIN_SOURCES", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MinSources)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Engine.MinConfidence = 0.6
		c.Engine.MinSources = 3
		c.Engine.MaxIterations = 5
		c.Engine.ValidationLevel = "basic"
		return c
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Engine.MinConfidence = 1.5
	assert.Error(t, c.Validate())

	c = base()
	c.Engine.MinSources = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Engine.MaxIterations = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Engine.ValidationLevel = "paranoid"
	assert.Error(t, c.Validate())
}
