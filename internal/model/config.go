package model

import "time"

// Config is the complete rulelabel configuration
type Config struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// LLMConfig selects and configures the external classifier
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`       // gemini, openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`             // Provider-specific model name
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"` // Prefer environment variables
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds, transport-level
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	HTTPProxy   string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// RetryConfig bounds retries of transient classifier failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Delay       time.Duration `yaml:"delay" mapstructure:"delay"`
	Exponential bool          `yaml:"exponential" mapstructure:"exponential"` // Double the delay after each attempt
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// BatchConfig controls pacing of the batch runner
type BatchConfig struct {
	Workers        int           `yaml:"workers" mapstructure:"workers"`                 // 1 = strictly serial
	InterCallDelay time.Duration `yaml:"inter_call_delay" mapstructure:"inter_call_delay"` // Pause after each successful call
	CallTimeout    time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`       // Upper bound for one external call
	StripMarkup    bool          `yaml:"strip_markup" mapstructure:"strip_markup"`       // Remove inline HTML from abstracts before sending
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// NormalizeConfig selects the dependency propagation behavior
type NormalizeConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Mode      string `yaml:"mode" mapstructure:"mode"`             // fixed-point, single-pass
	GraphFile string `yaml:"graph_file,omitempty" mapstructure:"graph_file"` // Optional YAML edge set; built-in graph otherwise
}

// InputConfig controls how source tables are read
type InputConfig struct {
	IDBase int `yaml:"id_base" mapstructure:"id_base"` // 0 or 1; used when the table has no ID column
}

// OutputConfig controls how result tables are written
type OutputConfig struct {
	BOM       bool `yaml:"bom" mapstructure:"bom"`               // Prefix output with a UTF-8 byte-order mark
	RuleCount int  `yaml:"rule_count" mapstructure:"rule_count"` // Minimum number of rule columns
	Verbose   bool `yaml:"verbose" mapstructure:"verbose"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// MetricsConfig configures the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"` // e.g. ":9090"; empty disables the endpoint
}

// DefaultConfig returns the defaults used by the original batch scripts
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-1.5-flash",
			Timeout:     120,
			MaxTokens:   2048,
			Temperature: 0,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       5 * time.Second,
			MaxDelay:    time.Minute,
		},
		Batch: BatchConfig{
			Workers:        1,
			InterCallDelay: 4 * time.Second,
			CallTimeout:    2 * time.Minute,
			StripMarkup:    false,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".rulelabel-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Normalize: NormalizeConfig{
			Enabled: true,
			Mode:    "fixed-point",
		},
		Input: InputConfig{
			IDBase: 1,
		},
		Output: OutputConfig{
			BOM:       false,
			RuleCount: RuleCount,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
