package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "catalog.json", cfg.CatalogPath)
	assert.Equal(t, "procmap_state.json", cfg.SnapshotPath)

	assert.Equal(t, 0.5, cfg.Cluster.SimilarityThreshold)
	assert.Equal(t, 1, cfg.Cluster.MinGroupSize)
	assert.Equal(t, 2, cfg.Cluster.MinGlobalClusters)
	assert.True(t, cfg.Cluster.UseTwoPhase)
	assert.True(t, cfg.Cluster.ExcludeSystemTables)
	assert.Equal(t, []string{"dbo"}, cfg.Cluster.CandidateSchemas)
	assert.Nil(t, cfg.Cluster.ExcludePatterns)

	assert.False(t, cfg.LLM.IsAvailable())
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout())
	assert.False(t, cfg.MSSQL.IsAvailable())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CATALOG_PATH", "/data/export.json")
	t.Setenv("CLUSTER_SIMILARITY_THRESHOLD", "0.7")
	t.Setenv("CLUSTER_USE_TWO_PHASE", "false")
	t.Setenv("CLUSTER_EXCLUDE_PATTERNS", "_temp, _bak ,_archive")
	t.Setenv("CLUSTER_CANDIDATE_SCHEMAS", "dbo,sales")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "/data/export.json", cfg.CatalogPath)
	assert.Equal(t, 0.7, cfg.Cluster.SimilarityThreshold)
	assert.False(t, cfg.Cluster.UseTwoPhase)
	assert.Equal(t, []string{"_temp", "_bak", "_archive"}, cfg.Cluster.ExcludePatterns)
	assert.Equal(t, []string{"dbo", "sales"}, cfg.Cluster.CandidateSchemas)
}

func TestLoadLLMConfig(t *testing.T) {
	t.Setenv("LLM_ENDPOINT", "http://localhost:11434/v1")
	t.Setenv("LLM_MODEL", "qwen2.5")
	t.Setenv("LLM_API_KEY", "secret")
	t.Setenv("LLM_TIMEOUT_SECONDS", "30")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.True(t, cfg.LLM.IsAvailable())
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "similarity threshold out of range",
			env:  map[string]string{"CLUSTER_SIMILARITY_THRESHOLD": "1.5"},
		},
		{
			name: "negative assignment similarity",
			env:  map[string]string{"CLUSTER_MIN_ASSIGNMENT_SIMILARITY": "-0.1"},
		},
		{
			name: "min global clusters below one",
			env:  map[string]string{"CLUSTER_MIN_GLOBAL_CLUSTERS": "0"},
		},
		{
			name: "llm endpoint without model",
			env:  map[string]string{"LLM_ENDPOINT": "http://localhost:11434/v1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("dev")
			require.Error(t, err)
		})
	}
}

func TestParameters(t *testing.T) {
	t.Setenv("CLUSTER_MIN_GROUP_SIZE", "3")
	t.Setenv("CLUSTER_EXCLUDE_PATTERNS", "_staging")

	cfg, err := Load("dev")
	require.NoError(t, err)

	params := cfg.Parameters()
	assert.Equal(t, 3, params.MinGroupSize)
	assert.Equal(t, 0.5, params.SimilarityThreshold)
	assert.True(t, params.UseTwoPhase)
	assert.Equal(t, []string{"_staging"}, params.ExcludePatterns)
}

func TestSplitCommaList(t *testing.T) {
	assert.Nil(t, splitCommaList(""))
	assert.Nil(t, splitCommaList("  "))
	assert.Equal(t, []string{"a"}, splitCommaList("a"))
	assert.Equal(t, []string{"a", "b"}, splitCommaList(" a , b ,"))
}
