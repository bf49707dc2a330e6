// Package config loads debug-mcp configuration from flags, an optional
// config file, and the environment (in that order of precedence), and
// decides which tools the server exposes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is looked up in $HOME/.debug-mcp and the working
// directory when no --config flag is given.
const DefaultConfigFileName = "debug-mcp"

// DefaultRegion is used for AWS clients when no region is configured.
const DefaultRegion = "us-east-1"

// Exposure modes for the MCP tool surface.
const (
	ExposeMeta   = "meta"
	ExposeDirect = "direct"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	AWS           AWSConfig           `mapstructure:"aws"`
	Tools         string              `mapstructure:"tools"`
	Expose        string              `mapstructure:"expose"`
	Transport     string              `mapstructure:"transport"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Log           LogConfig           `mapstructure:"log"`
	Jira          JiraConfig          `mapstructure:"jira"`
	LangSmith     LangSmithConfig     `mapstructure:"langsmith"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	StepFunctions StepFunctionsConfig `mapstructure:"stepfunctions"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
}

// AWSConfig selects the account and region used by every AWS client.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// HTTPConfig is used when Transport is "http".
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// JiraConfig holds Jira Cloud credentials.
type JiraConfig struct {
	Host     string `mapstructure:"host"`
	Email    string `mapstructure:"email"`
	APIToken string `mapstructure:"api_token"`
	Project  string `mapstructure:"project"`
}

// LangSmithConfig holds the fallback LangSmith credentials and the .env
// location used by the "local" environment.
type LangSmithConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	Project    string `mapstructure:"project"`
	DotenvPath string `mapstructure:"dotenv_path"`
}

// EmbeddingConfig selects the semantic search backend of the run memory.
type EmbeddingConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	GoogleAPIKey string        `mapstructure:"google_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
}

// StepFunctionsConfig tunes execution search.
type StepFunctionsConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// UpstreamConfig configures the AWS MCP passthrough.
type UpstreamConfig struct {
	Command string `mapstructure:"command"`
}

// Load reads configuration into a Config. Flags must already be bound to v.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".debug-mcp"))
		}
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("expose", ExposeMeta)
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("langsmith.dotenv_path", ".env")
	v.SetDefault("embedding.provider", "none")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_chars", 8000)
	v.SetDefault("stepfunctions.concurrency", 5)
	v.SetDefault("upstream.command", "uvx")
}

// envBindings maps config keys to the conventional AWS, Jira and LangChain
// environment variables. The first variable that is set wins.
var envBindings = map[string][]string{
	"aws.region":               {"AWS_REGION", "AWS_DEFAULT_REGION"},
	"aws.profile":              {"AWS_PROFILE"},
	"aws.access_key_id":        {"AWS_ACCESS_KEY_ID"},
	"aws.secret_access_key":    {"AWS_SECRET_ACCESS_KEY"},
	"aws.session_token":        {"AWS_SESSION_TOKEN"},
	"tools":                    {"DEBUG_MCP_TOOLS"},
	"expose":                   {"DEBUG_MCP_EXPOSE"},
	"transport":                {"DEBUG_MCP_TRANSPORT"},
	"http.addr":                {"DEBUG_MCP_HTTP_ADDR"},
	"log.level":                {"DEBUG_MCP_LOG_LEVEL"},
	"log.file":                 {"DEBUG_MCP_LOG_FILE"},
	"jira.host":                {"JIRA_HOST"},
	"jira.email":               {"JIRA_EMAIL"},
	"jira.api_token":           {"JIRA_API_TOKEN"},
	"jira.project":             {"JIRA_PROJECT"},
	"langsmith.api_key":        {"LANGCHAIN_API_KEY", "LANGSMITH_API_KEY"},
	"langsmith.endpoint":       {"LANGCHAIN_ENDPOINT", "LANGSMITH_ENDPOINT"},
	"langsmith.project":        {"LANGCHAIN_PROJECT", "LANGSMITH_PROJECT"},
	"langsmith.dotenv_path":    {"DEBUG_MCP_DOTENV_PATH"},
	"embedding.provider":       {"DEBUG_MCP_EMBEDDING_PROVIDER"},
	"embedding.model":          {"DEBUG_MCP_EMBEDDING_MODEL"},
	"embedding.openai_api_key": {"OPENAI_API_KEY"},
	"embedding.google_api_key": {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

func bindEnv(v *viper.Viper) error {
	keys := make([]string, 0, len(envBindings))
	for k := range envBindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args := append([]string{k}, envBindings[k]...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", k, err)
		}
	}
	return nil
}

// Validate rejects values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Expose {
	case ExposeMeta, ExposeDirect:
	default:
		return fmt.Errorf("invalid expose mode %q (want %s or %s)", c.Expose, ExposeMeta, ExposeDirect)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}
	switch c.Embedding.Provider {
	case "", "none", "openai", "google":
	default:
		return fmt.Errorf("invalid embedding provider %q (want none, openai or google)", c.Embedding.Provider)
	}
	if c.StepFunctions.Concurrency < 1 {
		c.StepFunctions.Concurrency = 1
	}
	return nil
}

// Region returns the configured AWS region, or DefaultRegion.
func (c *Config) Region() string {
	if c.AWS.Region != "" {
		return c.AWS.Region
	}
	return DefaultRegion
}

// AWSEnabled reports whether a region was configured explicitly. AWS
// tools stay hidden otherwise.
func (c *Config) AWSEnabled() bool {
	return c.AWS.Region != ""
}

// LangSmithEnabled reports whether LangSmith credentials can be found:
// either a key is configured, or AWS is available for Secrets Manager.
func (c *Config) LangSmithEnabled() bool {
	return c.LangSmith.APIKey != "" || c.AWSEnabled()
}

// JiraEnabled reports whether host, email and token are all present.
func (c *Config) JiraEnabled() bool {
	return c.Jira.Host != "" && c.Jira.Email != "" && c.Jira.APIToken != ""
}

// EmbeddingAPIKey returns the key for the selected embedding provider.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	switch c.Embedding.Provider {
	case "openai":
		return c.Embedding.OpenAIAPIKey
	case "google":
		return c.Embedding.GoogleAPIKey
	}
	return ""
}

// ToolFilter returns the parsed tool selection.
func (c *Config) ToolFilter() ToolFilter {
	return ParseToolFilter(c.Tools)
}

// ─── Tool filter ────────────────────────────────────────────────────────────

// DefaultTools is the tool set exposed when no selection is configured:
// the CloudWatch Logs and Step Functions tools.
var DefaultTools = []string{
	"describe_log_groups",
	"analyze_log_group",
	"execute_log_insights_query",
	"get_logs_insight_query_results",
	"cancel_logs_insight_query",
	"list_state_machines",
	"get_state_machine_definition",
	"list_step_function_executions",
	"get_step_function_execution_details",
	"search_step_function_executions",
}

// ToolFilter decides which registered tools are exposed. The zero value
// allows nothing; use ParseToolFilter.
type ToolFilter struct {
	all   bool
	names map[string]struct{}
}

// ParseToolFilter interprets a DEBUG_MCP_TOOLS value: empty selects
// DefaultTools, "all" disables filtering, anything else is a comma list.
func ParseToolFilter(s string) ToolFilter {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ToolFilter{all: true}
	}
	var items []string
	if s == "" {
		items = DefaultTools
	} else {
		items = strings.Split(s, ",")
	}
	names := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			names[item] = struct{}{}
		}
	}
	return ToolFilter{names: names}
}

// All reports whether every tool is allowed.
func (f ToolFilter) All() bool { return f.all }

// Allows reports whether the named tool passes the filter.
func (f ToolFilter) Allows(name string) bool {
	if f.all {
		return true
	}
	_, ok := f.names[name]
	return ok
}

// Names returns the explicitly selected tool names, sorted. It is nil
// when the filter allows everything.
func (f ToolFilter) Names() []string {
	if f.all {
		return nil
	}
	out := make([]string, 0, len(f.names))
	for n := range f.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
