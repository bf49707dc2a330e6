package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, vars := range envBindings {
		for _, name := range vars {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

func loadFromDir(t *testing.T) *Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	return cfg
}

// ─── ParseToolFilter ────────────────────────────────────────────────────────

func TestParseToolFilter_DefaultSet(t *testing.T) {
	f := ParseToolFilter("")

	assert.False(t, f.All())
	assert.ElementsMatch(t, DefaultTools, f.Names())
	assert.Len(t, f.Names(), 10)
	assert.True(t, f.Allows("search_step_function_executions"))
	assert.False(t, f.Allows("get_langsmith_run_details"))
	assert.False(t, f.Allows("get_jira_ticket"))
}

func TestParseToolFilter_All(t *testing.T) {
	for _, in := range []string{"all", "ALL", " all "} {
		f := ParseToolFilter(in)
		assert.True(t, f.All(), in)
		assert.Nil(t, f.Names())
		assert.True(t, f.Allows("anything"))
	}
}

func TestParseToolFilter_CustomList(t *testing.T) {
	f := ParseToolFilter("describe_log_groups, list_state_machines,,")

	assert.Equal(t, []string{"describe_log_groups", "list_state_machines"}, f.Names())
	assert.True(t, f.Allows("describe_log_groups"))
	assert.False(t, f.Allows("analyze_log_group"))
}

// ─── Load ───────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := loadFromDir(t)

	assert.Equal(t, ExposeMeta, cfg.Expose)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ".env", cfg.LangSmith.DotenvPath)
	assert.Equal(t, "none", cfg.Embedding.Provider)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 8000, cfg.Embedding.MaxChars)
	assert.Equal(t, 5, cfg.StepFunctions.Concurrency)
	assert.Equal(t, "uvx", cfg.Upstream.Command)

	assert.False(t, cfg.AWSEnabled())
	assert.Equal(t, DefaultRegion, cfg.Region())
	assert.False(t, cfg.LangSmithEnabled())
	assert.False(t, cfg.JiraEnabled())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_PROFILE", "debug")
	t.Setenv("DEBUG_MCP_TOOLS", "all")
	t.Setenv("JIRA_HOST", "acme.atlassian.net")
	t.Setenv("JIRA_EMAIL", "dev@acme.io")
	t.Setenv("JIRA_API_TOKEN", "tok")
	t.Setenv("LANGSMITH_API_KEY", "ls-key")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DEBUG_MCP_EMBEDDING_PROVIDER", "openai")

	cfg := loadFromDir(t)

	assert.Equal(t, "eu-west-1", cfg.Region())
	assert.Equal(t, "debug", cfg.AWS.Profile)
	assert.True(t, cfg.AWSEnabled())
	assert.True(t, cfg.ToolFilter().All())
	assert.True(t, cfg.JiraEnabled())
	assert.Equal(t, "ls-key", cfg.LangSmith.APIKey)
	assert.True(t, cfg.LangSmithEnabled())
	assert.Equal(t, "sk-test", cfg.EmbeddingAPIKey())
}

func TestLoad_LangSmithEnabledThroughAWS(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "us-east-2")

	cfg := loadFromDir(t)

	assert.Empty(t, cfg.LangSmith.APIKey)
	assert.True(t, cfg.LangSmithEnabled())
}

func TestLoad_JiraNeedsAllThree(t *testing.T) {
	clearEnv(t)
	t.Setenv("JIRA_HOST", "acme.atlassian.net")
	t.Setenv("JIRA_EMAIL", "dev@acme.io")

	cfg := loadFromDir(t)
	assert.False(t, cfg.JiraEnabled())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "debug-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aws:
  region: ap-southeast-2
tools: describe_log_groups,get_jira_ticket
expose: direct
embedding:
  provider: google
  api_key: g-key
  timeout: 5s
stepfunctions:
  concurrency: 0
`), 0600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "ap-southeast-2", cfg.Region())
	assert.Equal(t, ExposeDirect, cfg.Expose)
	assert.Equal(t, []string{"describe_log_groups", "get_jira_ticket"}, cfg.ToolFilter().Names())
	assert.Equal(t, "google", cfg.Embedding.Provider)
	assert.Equal(t, "g-key", cfg.EmbeddingAPIKey())
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 1, cfg.StepFunctions.Concurrency, "concurrency is clamped to 1")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "debug-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aws:\n  region: ap-southeast-2\n"), 0600))
	t.Setenv("AWS_REGION", "us-west-2")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad expose", func(c *Config) { c.Expose = "both" }, "invalid expose mode"},
		{"bad transport", func(c *Config) { c.Transport = "sse" }, "invalid transport"},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "invalid embedding provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Expose: ExposeMeta, Transport: TransportStdio, StepFunctions: StepFunctionsConfig{Concurrency: 2}}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
