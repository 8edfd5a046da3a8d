package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	Record  RecordConfig  `yaml:"record" mapstructure:"record"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Replay  ReplayConfig  `yaml:"replay" mapstructure:"replay"`
	Forward ForwardConfig `yaml:"forward" mapstructure:"forward"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
}

// RecordConfig recording proxy configuration
type RecordConfig struct {
	Upstream string `yaml:"upstream" mapstructure:"upstream"`
	Port     int    `yaml:"port" mapstructure:"port"`
	// Name of the report; a timestamped name is generated when empty
	Name      string `yaml:"name" mapstructure:"name"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	// MaxBodyBytes limits the size of accepted request bodies (0 = unlimited)
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RewriteHost  bool  `yaml:"rewrite_host" mapstructure:"rewrite_host"`
}

// FilterConfig decides which exchanges are written to the report
type FilterConfig struct {
	IncludeMethods []string `yaml:"include_methods" mapstructure:"include_methods"`
	ExcludeMethods []string `yaml:"exclude_methods" mapstructure:"exclude_methods"`
	IncludePaths   []string `yaml:"include_paths" mapstructure:"include_paths"`
	ExcludePaths   []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// ReplayConfig replay runner configuration
type ReplayConfig struct {
	BaseURL           string   `yaml:"base_url" mapstructure:"base_url"`
	IgnoredProperties []string `yaml:"ignored_properties" mapstructure:"ignored_properties"`
	Interactive       bool     `yaml:"interactive" mapstructure:"interactive"`
	Debug             bool     `yaml:"debug" mapstructure:"debug"`
	DebugDir          string   `yaml:"debug_dir" mapstructure:"debug_dir"`
}

// ForwardConfig upstream HTTP client configuration, durations in seconds
type ForwardConfig struct {
	Timeout               int  `yaml:"timeout" mapstructure:"timeout"`
	MaxConcurrent         int  `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxIdleConns          int  `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int  `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout       int  `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	ResponseHeaderTimeout int  `yaml:"response_header_timeout" mapstructure:"response_header_timeout"`
	TLSHandshakeTimeout   int  `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`
	ExpectContinueTimeout int  `yaml:"expect_continue_timeout" mapstructure:"expect_continue_timeout"`
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// OutputConfig controls CLI output style
type OutputConfig struct {
	Mode     string         `yaml:"mode" mapstructure:"mode"`
	Silence  bool           `yaml:"silence" mapstructure:"silence"`
	Verbose  bool           `yaml:"verbose" mapstructure:"verbose"`
	BodyView BodyViewConfig `yaml:"body_view" mapstructure:"body_view"`
}

// BodyViewConfig 控制正文格式化
type BodyViewConfig struct {
	Enable          bool `yaml:"enable" mapstructure:"enable"`
	MaxPreviewBytes int  `yaml:"max_preview_bytes" mapstructure:"max_preview_bytes"`
	PrettyJSON      bool `yaml:"pretty_json" mapstructure:"pretty_json"`
	PrettyXML       bool `yaml:"pretty_xml" mapstructure:"pretty_xml"`
	PrettyHTML      bool `yaml:"pretty_html" mapstructure:"pretty_html"`
	Form            bool `yaml:"form" mapstructure:"form"`
}

// StorageConfig 回放历史持久化参数
type StorageConfig struct {
	Enable  bool   `yaml:"enable" mapstructure:"enable"`
	Path    string `yaml:"path" mapstructure:"path"`
	MaxRuns int    `yaml:"max_runs" mapstructure:"max_runs"`
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("REQTAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("reqtape")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reqtape")
		v.AddConfigPath("/etc/reqtape")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Config file loaded: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Unmarshal doesn't apply defaults to zero-value fields
	applyDefaults(&config, v)

	return &config, nil
}

// applyDefaults apply default values to zero-value fields in the struct
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Record.Port == 0 {
		cfg.Record.Port = v.GetInt("record.port")
	}
	if cfg.Record.OutputDir == "" {
		cfg.Record.OutputDir = v.GetString("record.output_dir")
	}
	if cfg.Replay.DebugDir == "" {
		cfg.Replay.DebugDir = v.GetString("replay.debug_dir")
	}

	cfg.Filter.IncludeMethods = splitList(cfg.Filter.IncludeMethods)
	cfg.Filter.ExcludeMethods = splitList(cfg.Filter.ExcludeMethods)
	cfg.Filter.IncludePaths = splitList(cfg.Filter.IncludePaths)
	cfg.Filter.ExcludePaths = splitList(cfg.Filter.ExcludePaths)
	cfg.Replay.IgnoredProperties = splitList(cfg.Replay.IgnoredProperties)

	if cfg.Forward.MaxConcurrent == 0 {
		cfg.Forward.MaxConcurrent = v.GetInt("forward.max_concurrent")
	}
	if cfg.Forward.MaxIdleConns == 0 {
		cfg.Forward.MaxIdleConns = v.GetInt("forward.max_idle_conns")
	}
	if cfg.Forward.MaxIdleConnsPerHost == 0 {
		cfg.Forward.MaxIdleConnsPerHost = v.GetInt("forward.max_idle_conns_per_host")
	}
	if cfg.Forward.IdleConnTimeout == 0 {
		cfg.Forward.IdleConnTimeout = v.GetInt("forward.idle_conn_timeout")
	}
	if cfg.Forward.ResponseHeaderTimeout == 0 {
		cfg.Forward.ResponseHeaderTimeout = v.GetInt("forward.response_header_timeout")
	}
	if cfg.Forward.TLSHandshakeTimeout == 0 {
		cfg.Forward.TLSHandshakeTimeout = v.GetInt("forward.tls_handshake_timeout")
	}
	if cfg.Forward.ExpectContinueTimeout == 0 {
		cfg.Forward.ExpectContinueTimeout = v.GetInt("forward.expect_continue_timeout")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = v.GetString("log.level")
	}
	if cfg.Log.FileLogging.Path == "" {
		cfg.Log.FileLogging.Path = v.GetString("log.file_logging.path")
	}
	if cfg.Log.FileLogging.MaxSizeMB == 0 {
		cfg.Log.FileLogging.MaxSizeMB = v.GetInt("log.file_logging.max_size_mb")
	}
	if cfg.Log.FileLogging.MaxBackups == 0 {
		cfg.Log.FileLogging.MaxBackups = v.GetInt("log.file_logging.max_backups")
	}
	if cfg.Log.FileLogging.MaxAgeDays == 0 {
		cfg.Log.FileLogging.MaxAgeDays = v.GetInt("log.file_logging.max_age_days")
	}

	if cfg.Output.Mode == "" {
		cfg.Output.Mode = v.GetString("output.mode")
	}
	if cfg.Output.BodyView.MaxPreviewBytes == 0 {
		cfg.Output.BodyView.MaxPreviewBytes = v.GetInt("output.body_view.max_preview_bytes")
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = v.GetString("storage.path")
	}
	if cfg.Storage.MaxRuns == 0 {
		cfg.Storage.MaxRuns = v.GetInt("storage.max_runs")
	}
}

// setDefaults set default values
func setDefaults(v *viper.Viper) {
	// Record defaults
	v.SetDefault("record.upstream", "")
	v.SetDefault("record.port", 8080)
	v.SetDefault("record.name", "")
	v.SetDefault("record.output_dir", ".")
	v.SetDefault("record.max_body_bytes", int64(0))
	v.SetDefault("record.rewrite_host", false)

	// Filter defaults
	v.SetDefault("filter.include_methods", []string{})
	v.SetDefault("filter.exclude_methods", []string{})
	v.SetDefault("filter.include_paths", []string{})
	v.SetDefault("filter.exclude_paths", []string{})

	// Replay defaults
	v.SetDefault("replay.base_url", "")
	v.SetDefault("replay.ignored_properties", []string{})
	v.SetDefault("replay.interactive", false)
	v.SetDefault("replay.debug", false)
	v.SetDefault("replay.debug_dir", ".")

	// Forward defaults
	v.SetDefault("forward.timeout", 0)
	v.SetDefault("forward.max_concurrent", 0)
	v.SetDefault("forward.max_idle_conns", 200)
	v.SetDefault("forward.max_idle_conns_per_host", 64)
	v.SetDefault("forward.idle_conn_timeout", 90)
	v.SetDefault("forward.response_header_timeout", 30)
	v.SetDefault("forward.tls_handshake_timeout", 10)
	v.SetDefault("forward.expect_continue_timeout", 1)
	v.SetDefault("forward.tls_insecure_skip_verify", false)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./reqtape.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)

	// Output defaults
	v.SetDefault("output.mode", "console")
	v.SetDefault("output.silence", false)
	v.SetDefault("output.verbose", false)
	v.SetDefault("output.body_view.enable", true)
	v.SetDefault("output.body_view.max_preview_bytes", 32*1024)
	v.SetDefault("output.body_view.pretty_json", true)
	v.SetDefault("output.body_view.pretty_xml", true)
	v.SetDefault("output.body_view.pretty_html", false)
	v.SetDefault("output.body_view.form", true)

	// Storage defaults
	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.path", "./.reqtape/history.db")
	v.SetDefault("storage.max_runs", 500)
}

// Validate checks settings shared by every command
func (c *Config) Validate() error {
	if c.Record.Port < 1 || c.Record.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Record.Port)
	}
	if c.Record.MaxBodyBytes < 0 {
		return fmt.Errorf("record max body bytes cannot be negative")
	}

	for _, group := range []struct {
		name     string
		patterns []string
	}{
		{"include_paths", c.Filter.IncludePaths},
		{"exclude_paths", c.Filter.ExcludePaths},
	} {
		for i, pattern := range group.patterns {
			if !strings.HasPrefix(pattern, "/") && !strings.HasPrefix(pattern, "*") {
				return fmt.Errorf("filter %s[%d] %q must start with '/' or '*'", group.name, i, pattern)
			}
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("filter %s[%d] %q is not a valid glob", group.name, i, pattern)
			}
		}
	}
	for i, method := range append(append([]string{}, c.Filter.IncludeMethods...), c.Filter.ExcludeMethods...) {
		if strings.ContainsAny(method, " \t/") {
			return fmt.Errorf("filter method %d %q is not a valid HTTP method", i+1, method)
		}
	}

	if c.Replay.BaseURL != "" {
		if err := validateHTTPURL(c.Replay.BaseURL); err != nil {
			return fmt.Errorf("replay base_url: %w", err)
		}
	}
	if c.Replay.Debug && strings.TrimSpace(c.Replay.DebugDir) == "" {
		return fmt.Errorf("replay debug_dir cannot be empty when debug is enabled")
	}

	if c.Forward.Timeout < 0 {
		return fmt.Errorf("forward timeout cannot be negative")
	}
	if c.Forward.MaxConcurrent < 0 {
		return fmt.Errorf("forward max concurrent cannot be negative")
	}

	switch strings.ToLower(c.Output.Mode) {
	case "console", "json", "yaml":
		c.Output.Mode = strings.ToLower(c.Output.Mode)
	case "":
		c.Output.Mode = "console"
	default:
		return fmt.Errorf("output mode must be 'console', 'json' or 'yaml'")
	}
	if c.Output.BodyView.MaxPreviewBytes < 0 {
		return fmt.Errorf("output.body_view.max_preview_bytes cannot be negative")
	}

	if c.Storage.Enable && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage path cannot be empty when storage is enabled")
	}
	if c.Storage.MaxRuns < 0 {
		return fmt.Errorf("storage max_runs cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	// Validate file log configuration
	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("log file max backups cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return fmt.Errorf("log file max age cannot be negative")
		}
	}

	return nil
}

// ValidateRecord checks the settings the record command needs
func (c *Config) ValidateRecord() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Record.Upstream) == "" {
		return fmt.Errorf("upstream URL is required")
	}
	if err := validateHTTPURL(c.Record.Upstream); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if strings.TrimSpace(c.Record.OutputDir) == "" {
		return fmt.Errorf("record output_dir cannot be empty")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

// splitList expands comma separated entries, which is what environment
// variables and single flag values produce
func splitList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	result := make([]string, 0, len(list))
	for _, item := range list {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
