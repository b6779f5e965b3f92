package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/access"
	"github.com/joescharf/codereview/internal/cache"
	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/output"
	"github.com/joescharf/codereview/internal/render"
	"github.com/joescharf/codereview/internal/review"
	"github.com/joescharf/codereview/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *slog.Logger

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "codereview",
	Short: "LLM-assisted code review with PDF reports",
	Long: `codereview sends source files to a large language model for review,
parses the answer into fixed sections, estimates time and space complexity
per file, and stores the result as a PDF report.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "codereview %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output and debug logging")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/codereview/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CODEREVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(dir string) {
	viper.SetDefault("api_credential", "")
	viper.SetDefault("database_path", filepath.Join(dir, "codereview.db"))
	viper.SetDefault("reports_directory", filepath.Join(dir, "reports"))
	viper.SetDefault("default_model_id", "qwen/qwen-2.5-coder-32b-instruct:free")
	viper.SetDefault("max_tokens", 4000)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("request_timeout_seconds", 60)

	viper.SetDefault("llm.provider", llm.ProviderOpenAI)
	viper.SetDefault("llm.base_url", llm.DefaultBaseURL)
	viper.SetDefault("llm.max_attempts", 3)
	viper.SetDefault("llm.backoff", "1s")
	viper.SetDefault("llm.max_backoff", "30s")
	viper.SetDefault("llm.cache.enabled", false)
	viper.SetDefault("llm.cache.dir", filepath.Join(dir, "cache"))
	viper.SetDefault("llm.cache.ttl", "24h")

	viper.SetDefault("ingest.max_file_bytes", ingest.DefaultMaxFileBytes)
	viper.SetDefault("ingest.encoding", "utf-8")
	viper.SetDefault("prompt.max_tokens", review.DefaultMaxPromptTokens)
	viper.SetDefault("prompt.redact_secrets", false)
	viper.SetDefault("render.title", render.DefaultTitle)
	viper.SetDefault("render.include_excerpts", true)
	viper.SetDefault("render.excerpt_chars", render.DefaultExcerptChars)
	viper.SetDefault("render.excerpt_lines", render.DefaultExcerptLines)
	viper.SetDefault("storage.min_free_bytes", 10<<20)

	viper.SetDefault("user.id", os.Getenv("USER"))
	viper.SetDefault("user.role", string(models.RoleUser))
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Store and LLM client are opened lazily so config/version commands
	// run without a database or credential.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("database_path"), store.Config{
		ReportsDir:   viper.GetString("reports_directory"),
		MinFreeBytes: uint64(viper.GetInt64("storage.min_free_bytes")),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// apiCredential returns the configured credential, falling back to the
// provider's conventional environment variable.
func apiCredential() string {
	if key := viper.GetString("api_credential"); key != "" {
		return key
	}
	if viper.GetString("llm.provider") == llm.ProviderAnthropic {
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return os.Getenv("OPENROUTER_API_KEY")
}

// newLLMClient builds the LLM client from config. A missing credential is an error.
func newLLMClient() (*llm.Client, error) {
	key := apiCredential()
	if key == "" {
		return nil, fmt.Errorf("no API credential configured (set api_credential or CODEREVIEW_API_CREDENTIAL)")
	}

	var c *cache.Cache
	if viper.GetBool("llm.cache.enabled") {
		var err error
		c, err = cache.New(viper.GetString("llm.cache.dir"), viper.GetDuration("llm.cache.ttl"))
		if err != nil {
			return nil, fmt.Errorf("open response cache: %w", err)
		}
	}

	return llm.NewClient(llm.Config{
		Provider:    viper.GetString("llm.provider"),
		BaseURL:     viper.GetString("llm.base_url"),
		APIKey:      key,
		ModelID:     viper.GetString("default_model_id"),
		MaxAttempts: viper.GetInt("llm.max_attempts"),
		Backoff:     viper.GetDuration("llm.backoff"),
		MaxBackoff:  viper.GetDuration("llm.max_backoff"),
		Timeout:     time.Duration(viper.GetInt("request_timeout_seconds")) * time.Second,
		Cache:       c,
		Logger:      logger,
	})
}

// newPipeline wires every pipeline stage from config.
func newPipeline(rv review.Reviewer) (*review.Pipeline, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	in, err := ingest.New(ingest.Config{
		MaxFileBytes: viper.GetInt64("ingest.max_file_bytes"),
		Encoding:     viper.GetString("ingest.encoding"),
	})
	if err != nil {
		return nil, err
	}

	builder := review.NewBuilder(review.PromptConfig{
		MaxTokens:     viper.GetInt("prompt.max_tokens"),
		RedactSecrets: viper.GetBool("prompt.redact_secrets"),
	})
	renderer := render.NewRenderer(render.Config{
		Title:           viper.GetString("render.title"),
		IncludeExcerpts: viper.GetBool("render.include_excerpts"),
		ExcerptChars:    viper.GetInt("render.excerpt_chars"),
		ExcerptLines:    viper.GetInt("render.excerpt_lines"),
	})

	return review.NewPipeline(in, builder, rv, renderer, s, review.Config{
		ModelID:     viper.GetString("default_model_id"),
		MaxTokens:   viper.GetInt("max_tokens"),
		Temperature: viper.GetFloat64("temperature"),
		Timeout:     time.Duration(viper.GetInt("request_timeout_seconds")) * time.Second,
	}, logger), nil
}

// currentRequester is the identity the CLI and MCP surfaces act as.
func currentRequester() (models.Requester, error) {
	id := viper.GetString("user.id")
	if id == "" {
		return models.Requester{}, fmt.Errorf("no user configured (set user.id or CODEREVIEW_USER_ID)")
	}
	role, err := access.ParseRole(viper.GetString("user.role"))
	if err != nil {
		return models.Requester{}, err
	}
	return models.Requester{UserID: id, Role: role}, nil
}
