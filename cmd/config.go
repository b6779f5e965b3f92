package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "codereview"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage codereview configuration.

Running bare 'codereview config' is the same as 'codereview config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# codereview configuration
# See: codereview config show (for effective values and sources)

# API credential for the LLM endpoint. Prefer CODEREVIEW_API_CREDENTIAL,
# OPENROUTER_API_KEY or ANTHROPIC_API_KEY over storing it here.
# api_credential: ""

# SQLite database and PDF report locations
database_path: "{{ .DatabasePath }}"
reports_directory: "{{ .ReportsDirectory }}"

# Model request parameters
default_model_id: "{{ .ModelID }}"
max_tokens: {{ .MaxTokens }}
temperature: {{ .Temperature }}
request_timeout_seconds: {{ .TimeoutSeconds }}

llm:
  # openai (any OpenAI-compatible endpoint such as OpenRouter) or anthropic
  provider: "{{ .Provider }}"
  base_url: "{{ .BaseURL }}"
  max_attempts: {{ .MaxAttempts }}
  backoff: "{{ .Backoff }}"
  cache:
    # Reuse responses for identical prompts
    enabled: {{ .CacheEnabled }}
    ttl: "{{ .CacheTTL }}"

ingest:
  max_file_bytes: {{ .MaxFileBytes }}
  encoding: "{{ .Encoding }}"

prompt:
  # Mask credentials found in source before sending it to the model
  redact_secrets: {{ .RedactSecrets }}

render:
  include_excerpts: {{ .IncludeExcerpts }}

storage:
  # Refuse to store reports when the reports volume has less free space
  min_free_bytes: {{ .MinFreeBytes }}

# Identity used by the CLI and MCP server
user:
  id: "{{ .UserID }}"
  role: "{{ .UserRole }}"

# REST server port
port: {{ .Port }}
`

type configTemplateData struct {
	DatabasePath     string
	ReportsDirectory string
	ModelID          string
	MaxTokens        int
	Temperature      float64
	TimeoutSeconds   int
	Provider         string
	BaseURL          string
	MaxAttempts      int
	Backoff          string
	CacheEnabled     bool
	CacheTTL         string
	MaxFileBytes     int64
	Encoding         string
	RedactSecrets    bool
	IncludeExcerpts  bool
	MinFreeBytes     int64
	UserID           string
	UserRole         string
	Port             int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DatabasePath:     viper.GetString("database_path"),
		ReportsDirectory: viper.GetString("reports_directory"),
		ModelID:          viper.GetString("default_model_id"),
		MaxTokens:        viper.GetInt("max_tokens"),
		Temperature:      viper.GetFloat64("temperature"),
		TimeoutSeconds:   viper.GetInt("request_timeout_seconds"),
		Provider:         viper.GetString("llm.provider"),
		BaseURL:          viper.GetString("llm.base_url"),
		MaxAttempts:      viper.GetInt("llm.max_attempts"),
		Backoff:          viper.GetString("llm.backoff"),
		CacheEnabled:     viper.GetBool("llm.cache.enabled"),
		CacheTTL:         viper.GetString("llm.cache.ttl"),
		MaxFileBytes:     viper.GetInt64("ingest.max_file_bytes"),
		Encoding:         viper.GetString("ingest.encoding"),
		RedactSecrets:    viper.GetBool("prompt.redact_secrets"),
		IncludeExcerpts:  viper.GetBool("render.include_excerpts"),
		MinFreeBytes:     viper.GetInt64("storage.min_free_bytes"),
		UserID:           viper.GetString("user.id"),
		UserRole:         viper.GetString("user.role"),
		Port:             viper.GetInt("port"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "api_credential", EnvVar: "CODEREVIEW_API_CREDENTIAL"},
	{Key: "database_path", EnvVar: "CODEREVIEW_DATABASE_PATH"},
	{Key: "reports_directory", EnvVar: "CODEREVIEW_REPORTS_DIRECTORY"},
	{Key: "default_model_id", EnvVar: "CODEREVIEW_DEFAULT_MODEL_ID"},
	{Key: "max_tokens", EnvVar: "CODEREVIEW_MAX_TOKENS"},
	{Key: "temperature", EnvVar: "CODEREVIEW_TEMPERATURE"},
	{Key: "request_timeout_seconds", EnvVar: "CODEREVIEW_REQUEST_TIMEOUT_SECONDS"},
	{Key: "llm.provider", EnvVar: "CODEREVIEW_LLM_PROVIDER"},
	{Key: "llm.base_url", EnvVar: "CODEREVIEW_LLM_BASE_URL"},
	{Key: "llm.max_attempts", EnvVar: "CODEREVIEW_LLM_MAX_ATTEMPTS"},
	{Key: "llm.backoff", EnvVar: "CODEREVIEW_LLM_BACKOFF"},
	{Key: "llm.cache.enabled", EnvVar: "CODEREVIEW_LLM_CACHE_ENABLED"},
	{Key: "llm.cache.ttl", EnvVar: "CODEREVIEW_LLM_CACHE_TTL"},
	{Key: "ingest.max_file_bytes", EnvVar: "CODEREVIEW_INGEST_MAX_FILE_BYTES"},
	{Key: "ingest.encoding", EnvVar: "CODEREVIEW_INGEST_ENCODING"},
	{Key: "prompt.max_tokens", EnvVar: "CODEREVIEW_PROMPT_MAX_TOKENS"},
	{Key: "prompt.redact_secrets", EnvVar: "CODEREVIEW_PROMPT_REDACT_SECRETS"},
	{Key: "render.include_excerpts", EnvVar: "CODEREVIEW_RENDER_INCLUDE_EXCERPTS"},
	{Key: "storage.min_free_bytes", EnvVar: "CODEREVIEW_STORAGE_MIN_FREE_BYTES"},
	{Key: "user.id", EnvVar: "CODEREVIEW_USER_ID"},
	{Key: "user.role", EnvVar: "CODEREVIEW_USER_ROLE"},
	{Key: "port", EnvVar: "CODEREVIEW_PORT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "api_credential" {
			val = maskSecret(apiCredential())
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret keeps the last four characters of a credential.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'codereview config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
