package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/oarkflow/bcl"
	"github.com/oarkflow/errors"
	"github.com/oarkflow/json"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/utils"
)

// DelimiterConfig overrides individual delimiters; empty values keep the default.
type DelimiterConfig struct {
	Field           string `json:"field" yaml:"field" toml:"field"`
	Component       string `json:"component" yaml:"component" toml:"component"`
	Subcomponent    string `json:"subcomponent" yaml:"subcomponent" toml:"subcomponent"`
	SubSubcomponent string `json:"sub_subcomponent" yaml:"sub_subcomponent" toml:"sub_subcomponent"`
	Escape          string `json:"escape" yaml:"escape" toml:"escape"`
}

type SourceConfig struct {
	Type             string `json:"type" yaml:"type" toml:"type"`
	Path             string `json:"path,omitempty" yaml:"path,omitempty" toml:"path"`
	Encoding         string `json:"encoding,omitempty" yaml:"encoding,omitempty" toml:"encoding"`
	SplitOnBlankLine bool   `json:"split_on_blank_line,omitempty" yaml:"split_on_blank_line,omitempty" toml:"split_on_blank_line"`
	URL              string `json:"url,omitempty" yaml:"url,omitempty" toml:"url"`
	Queue            string `json:"queue,omitempty" yaml:"queue,omitempty" toml:"queue"`
	Prefetch         int    `json:"prefetch,omitempty" yaml:"prefetch,omitempty" toml:"prefetch"`
}

type SinkConfig struct {
	Type       string `json:"type" yaml:"type" toml:"type"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty" toml:"path"`
	Host       string `json:"host,omitempty" yaml:"host,omitempty" toml:"host"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty" toml:"port"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty" toml:"username"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty" toml:"password"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty" toml:"database"`
	Table      string `json:"table,omitempty" yaml:"table,omitempty" toml:"table"`
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty" toml:"uri"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty" toml:"collection"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxMessages int64  `json:"max_messages" yaml:"max_messages" toml:"max_messages"`
	TTL         string `json:"ttl" yaml:"ttl" toml:"ttl"`
}

type ServerConfig struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes int    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

type RetryConfig struct {
	Attempts         int `json:"attempts" yaml:"attempts" toml:"attempts"`
	BackoffMs        int `json:"backoff_ms" yaml:"backoff_ms" toml:"backoff_ms"`
	BreakerThreshold int `json:"breaker_threshold" yaml:"breaker_threshold" toml:"breaker_threshold"`
}

// Config describes parsing behaviour and the ingest pipeline around it.
type Config struct {
	Delimiters       DelimiterConfig     `json:"delimiters" yaml:"delimiters" toml:"delimiters"`
	DetectDelimiters bool                `json:"detect_delimiters" yaml:"detect_delimiters" toml:"detect_delimiters"`
	Segments         map[string][]string `json:"segments" yaml:"segments" toml:"segments"`
	Sources          []SourceConfig      `json:"sources" yaml:"sources" toml:"sources"`
	Sink             SinkConfig          `json:"sink" yaml:"sink" toml:"sink"`
	Fields           map[string]string   `json:"fields" yaml:"fields" toml:"fields"`
	Formats          map[string]string   `json:"formats" yaml:"formats" toml:"formats"`
	Filters          []string            `json:"filters" yaml:"filters" toml:"filters"`
	Cache            CacheConfig         `json:"cache" yaml:"cache" toml:"cache"`
	Server           ServerConfig        `json:"server" yaml:"server" toml:"server"`
	Retry            RetryConfig         `json:"retry" yaml:"retry" toml:"retry"`
	Workers          int                 `json:"workers" yaml:"workers" toml:"workers"`
	BatchSize        int                 `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	Dedup            bool                `json:"dedup" yaml:"dedup" toml:"dedup"`
	DedupFile        string              `json:"dedup_file" yaml:"dedup_file" toml:"dedup_file"`
	Schedule         string              `json:"schedule" yaml:"schedule" toml:"schedule"`
}

type decodeFunc func([]byte, any) error

var decoders = map[string]decodeFunc{
	"yaml": yaml.Unmarshal,
	"yml":  yaml.Unmarshal,
	"json": func(data []byte, v any) error {
		return json.Unmarshal(data, v)
	},
	"bcl": func(data []byte, v any) error {
		_, err := bcl.Unmarshal(data, v)
		return err
	},
	"toml": toml.Unmarshal,
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a config file, choosing the decoder by extension.
func Load(path string) (*Config, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, ok := decoders[ext]; !ok {
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadFromString(string(raw), ext)
}

// LoadFromString decodes raw text in the named format after expanding
// environment variables.
func LoadFromString(content, format string) (*Config, error) {
	decode, ok := decoders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	var cfg Config
	if err := decode([]byte(os.ExpandEnv(content)), &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", format, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 4 * 1024 * 1024
	}
	if cfg.Cache.MaxMessages <= 0 {
		cfg.Cache.MaxMessages = 10000
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BackoffMs <= 0 {
		cfg.Retry.BackoffMs = 200
	}
	if cfg.Retry.BreakerThreshold <= 0 {
		cfg.Retry.BreakerThreshold = 5
	}
	if cfg.Sink.Type == "" {
		cfg.Sink.Type = "stdout"
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if _, err := cfg.ParsedDelimiters(); err != nil {
		return err
	}
	if _, err := cfg.Registry(); err != nil {
		return err
	}
	for i, src := range cfg.Sources {
		switch strings.ToLower(src.Type) {
		case "file":
			if src.Path == "" {
				return fmt.Errorf("source %d: file source requires a path", i)
			}
		case "amqp":
			if src.URL == "" || src.Queue == "" {
				return fmt.Errorf("source %d: amqp source requires url and queue", i)
			}
		default:
			return fmt.Errorf("source %d: unsupported type %q", i, src.Type)
		}
	}
	if err := cfg.Sink.Validate(); err != nil {
		return err
	}
	for name, expr := range cfg.Fields {
		if _, err := hl7.ParseSelector(expr); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	if _, err := cfg.CacheTTL(); err != nil {
		return err
	}
	return nil
}

func (s SinkConfig) Validate() error {
	switch t := strings.ToLower(s.Type); {
	case t == "stdout":
	case t == "jsonl":
		if s.Path == "" {
			return errors.New("SinkConfig: jsonl sink requires a path")
		}
	case utils.IsSQLType(t):
		if s.Host == "" || s.Database == "" {
			return errors.New("SinkConfig: host and database must be provided")
		}
	case t == "mongodb" || t == "mongo":
		if s.URI == "" || s.Database == "" {
			return errors.New("SinkConfig: uri and database must be provided")
		}
	default:
		return fmt.Errorf("SinkConfig: unsupported sink type %q", s.Type)
	}
	return nil
}

// ParsedDelimiters merges the configured overrides onto the defaults.
func (cfg *Config) ParsedDelimiters() (hl7.Delimiters, error) {
	d := hl7.DefaultDelimiters()
	overrides := []struct {
		value  string
		target *rune
		kind   hl7.DelimiterKind
	}{
		{cfg.Delimiters.Field, &d.Field, hl7.FieldDelimiter},
		{cfg.Delimiters.Component, &d.Component, hl7.ComponentDelimiter},
		{cfg.Delimiters.Subcomponent, &d.Subcomponent, hl7.SubcomponentDelimiter},
		{cfg.Delimiters.SubSubcomponent, &d.SubSubcomponent, hl7.SubSubcomponentDelimiter},
		{cfg.Delimiters.Escape, &d.Escape, hl7.EscapeCharacter},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if utf8.RuneCountInString(o.value) != 1 {
			return d, fmt.Errorf("%s delimiter must be a single character, got %q", o.kind, o.value)
		}
		r, _ := utf8.DecodeRuneInString(o.value)
		*o.target = r
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}

// Registry returns the built-in tables extended with configured segments.
// The result is frozen.
func (cfg *Config) Registry() (*hl7.Registry, error) {
	reg := hl7.DefaultRegistry()
	for code, names := range cfg.Segments {
		if err := reg.Register(code, hl7.NewFieldTable(names...)); err != nil {
			return nil, fmt.Errorf("segment %s: %w", code, err)
		}
	}
	reg.Freeze()
	return reg, nil
}

// ParserOptions builds the options for hl7.NewParser.
func (cfg *Config) ParserOptions() ([]hl7.Option, error) {
	d, err := cfg.ParsedDelimiters()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	opts := []hl7.Option{hl7.WithDelimiters(d), hl7.WithRegistry(reg)}
	if cfg.DetectDelimiters {
		opts = append(opts, hl7.WithHeaderDelimiters())
	}
	return opts, nil
}

func (cfg *Config) CacheTTL() (time.Duration, error) {
	if cfg.Cache.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(cfg.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("cache ttl: %w", err)
	}
	return ttl, nil
}

func (cfg *Config) RetryBackoff() time.Duration {
	return time.Duration(cfg.Retry.BackoffMs) * time.Millisecond
}
