package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/rulelabel/internal/logging"
	"github.com/ppiankov/rulelabel/internal/model"
)

// Version is the release version, overridden at build time with -ldflags
var Version = "0.1.0"

var (
	cfgFile  string
	verbose  bool
	logLevel string

	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rulelabel",
	Short: "rulelabel - batch rule classification of research abstracts",
	Long: `rulelabel sends research abstracts to a generative classifier together with
a fixed rule specification, records a yes/no verdict per rule, and enforces
the logical dependencies between rules on the resulting table.

Labels are the classifier's judgments; rulelabel only enforces their shape
and consistency.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		l, err := logging.New(logging.Config{Level: level, Development: cfg.Logging.Development})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of rulelabel.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rulelabel v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rulelabel/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	setDefaults(viper.GetViper(), model.DefaultConfig())

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.rulelabel")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// RULELABEL_BATCH_WORKERS maps to batch.workers
	viper.SetEnvPrefix("RULELABEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged viper settings over the defaults
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = model.DefaultConfig().Logging.Level
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables can override it
func setDefaults(v *viper.Viper, d *model.Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.http_proxy", d.LLM.HTTPProxy)
	v.SetDefault("llm.https_proxy", d.LLM.HTTPSProxy)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.exponential", d.Retry.Exponential)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.inter_call_delay", d.Batch.InterCallDelay)
	v.SetDefault("batch.call_timeout", d.Batch.CallTimeout)
	v.SetDefault("batch.strip_markup", d.Batch.StripMarkup)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)

	v.SetDefault("normalize.enabled", d.Normalize.Enabled)
	v.SetDefault("normalize.mode", d.Normalize.Mode)
	v.SetDefault("normalize.graph_file", d.Normalize.GraphFile)

	v.SetDefault("input.id_base", d.Input.IDBase)
	v.SetDefault("output.bom", d.Output.BOM)
	v.SetDefault("output.rule_count", d.Output.RuleCount)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
