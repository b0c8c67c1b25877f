package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/procmap-io/procmap/pkg/models"
)

// Config holds all configuration for procmap.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, connection strings) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// CatalogPath is the catalog.json export to build clusters from.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-default:"catalog.json"`

	// SnapshotPath is where the cluster state snapshot is persisted.
	SnapshotPath string `yaml:"snapshot_path" env:"SNAPSHOT_PATH" env-default:"procmap_state.json"`

	// Cluster algorithm parameters
	Cluster ClusterConfig `yaml:"cluster"`

	// LLM intent classification (optional)
	LLM LLMConfig `yaml:"llm"`

	// Live SQL Server catalog loading (optional)
	MSSQL MSSQLConfig `yaml:"mssql"`
}

// ClusterConfig holds the clustering algorithm parameters.
type ClusterConfig struct {
	SimilarityThreshold     float64 `yaml:"similarity_threshold" env:"CLUSTER_SIMILARITY_THRESHOLD" env-default:"0.5"`
	MinGroupSize            int     `yaml:"min_group_size" env:"CLUSTER_MIN_GROUP_SIZE" env-default:"1"`
	MinGlobalClusters       int     `yaml:"min_global_clusters" env:"CLUSTER_MIN_GLOBAL_CLUSTERS" env-default:"2"`
	MinAssignmentSimilarity float64 `yaml:"min_assignment_similarity" env:"CLUSTER_MIN_ASSIGNMENT_SIMILARITY" env-default:"0"`
	UseTwoPhase             bool    `yaml:"use_two_phase" env:"CLUSTER_USE_TWO_PHASE" env-default:"true"`
	ExcludeSystemTables     bool    `yaml:"exclude_system_tables" env:"CLUSTER_EXCLUDE_SYSTEM_TABLES" env-default:"true"`

	// ExcludePatternsStr is a comma-separated list of substring patterns.
	ExcludePatternsStr string `yaml:"exclude_patterns" env:"CLUSTER_EXCLUDE_PATTERNS" env-default:""`

	// CandidateSchemasStr is a comma-separated list of schemas tried when
	// resolving unqualified table references.
	CandidateSchemasStr string `yaml:"candidate_schemas" env:"CLUSTER_CANDIDATE_SCHEMAS" env-default:"dbo"`

	// Parsed forms of the comma-separated fields.
	ExcludePatterns  []string `yaml:"-"`
	CandidateSchemas []string `yaml:"-"`
}

// LLMConfig holds settings for the OpenAI-compatible intent endpoint.
// When Endpoint is empty the keyword heuristic classifier is used instead.
type LLMConfig struct {
	Endpoint       string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model          string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"12"`
}

// Timeout returns the classification timeout as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsAvailable returns true if an LLM endpoint is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Model != ""
}

// MSSQLConfig holds the optional live SQL Server connection.
type MSSQLConfig struct {
	DSN string `yaml:"-" env:"MSSQL_DSN"` // Secret - not in YAML
}

// IsAvailable returns true if a live SQL Server connection is configured.
func (c *MSSQLConfig) IsAvailable() bool {
	return c.DSN != ""
}

// Load reads configuration from config.yaml with environment variable
// overrides. The YAML file is optional; environment variables alone are
// enough to run. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Cluster.ExcludePatterns = splitCommaList(c.Cluster.ExcludePatternsStr)
	c.Cluster.CandidateSchemas = splitCommaList(c.Cluster.CandidateSchemasStr)
}

func (c *Config) validate() error {
	if c.Cluster.SimilarityThreshold < 0 || c.Cluster.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Cluster.SimilarityThreshold)
	}
	if c.Cluster.MinAssignmentSimilarity < 0 || c.Cluster.MinAssignmentSimilarity > 1 {
		return fmt.Errorf("min_assignment_similarity must be in [0,1], got %v", c.Cluster.MinAssignmentSimilarity)
	}
	if c.Cluster.MinGlobalClusters < 1 {
		return fmt.Errorf("min_global_clusters must be >= 1, got %d", c.Cluster.MinGlobalClusters)
	}
	if c.LLM.Endpoint != "" && c.LLM.Model == "" {
		return fmt.Errorf("llm model is required when llm endpoint is set")
	}
	return nil
}

// Parameters converts the cluster section into algorithm parameters.
func (c *Config) Parameters() models.Parameters {
	return models.Parameters{
		SimilarityThreshold:     c.Cluster.SimilarityThreshold,
		MinGroupSize:            c.Cluster.MinGroupSize,
		MinGlobalClusters:       c.Cluster.MinGlobalClusters,
		MinAssignmentSimilarity: c.Cluster.MinAssignmentSimilarity,
		UseTwoPhase:             c.Cluster.UseTwoPhase,
		ExcludeSystemTables:     c.Cluster.ExcludeSystemTables,
		ExcludePatterns:         c.Cluster.ExcludePatterns,
	}
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
