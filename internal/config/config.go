// Package config loads radgrade settings from defaults, an optional .env
// file, a YAML document and RADGRADE_* environment variables, in that
// order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/cache"
	"github.com/abhisek/radgrade/internal/engine"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/llm"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/scoring"
)

const (
	// PathEnv names the YAML file when no path is given explicitly.
	PathEnv = "RADGRADE_CONFIG"

	envPrefix = "RADGRADE_"
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Models     model.Config     `yaml:"models"`
	LLM        llm.Config       `yaml:"llm"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Alignment  AlignmentConfig  `yaml:"alignment"`
	Scoring    scoring.Config   `yaml:"scoring"`
	Engine     engine.Config    `yaml:"engine"`
	Cache      cache.Config     `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"corsOrigins"`
	// Mode is the gin mode: "release", "debug" or "test".
	Mode string `yaml:"mode"`
}

// StoreConfig locates the sqlite database.
type StoreConfig struct {
	// Path is the database file. Empty selects the per-user default.
	Path string `yaml:"path"`
}

// VocabularyConfig selects the canonical vocabulary.
type VocabularyConfig struct {
	// File is a YAML vocabulary. Empty selects the built-in seed.
	File string `yaml:"file"`
}

// ExtractionConfig tunes the text pipeline.
type ExtractionConfig struct {
	SimilarityThreshold float64         `yaml:"similarityThreshold"`
	ScopeWindow         int             `yaml:"scopeWindow"`
	Sections            []string        `yaml:"sections"`
	Lexicon             extract.Lexicon `yaml:"lexicon"`
}

// Options converts the section into pipeline options.
func (c ExtractionConfig) Options() extract.Options {
	return extract.Options{
		SimilarityThreshold: c.SimilarityThreshold,
		ScopeWindow:         c.ScopeWindow,
		Sections:            append([]string(nil), c.Sections...),
		Lexicon:             c.Lexicon,
	}
}

// AlignmentConfig tunes how findings are matched.
type AlignmentConfig struct {
	// ImageThreshold is the minimum image confidence that counts as a
	// reference.
	ImageThreshold         float64 `yaml:"imageThreshold"`
	ClosedWorldGroundTruth bool    `yaml:"closedWorldGroundTruth"`
}

// Options converts the section into alignment options.
func (c AlignmentConfig) Options() align.Options {
	return align.Options{ClosedWorldGroundTruth: c.ClosedWorldGroundTruth}
}

// LoggingConfig configures the slog default.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level, falling back to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	ext := extract.DefaultOptions()
	return Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:5000"},
			Mode:        "release",
		},
		Models: model.DefaultConfig(),
		LLM:    llm.DefaultConfig(),
		Extraction: ExtractionConfig{
			SimilarityThreshold: ext.SimilarityThreshold,
			ScopeWindow:         ext.ScopeWindow,
			Lexicon:             ext.Lexicon,
		},
		Alignment: AlignmentConfig{
			ImageThreshold:         imaging.DefaultThreshold,
			ClosedWorldGroundTruth: align.DefaultOptions().ClosedWorldGroundTruth,
		},
		Scoring: scoring.DefaultConfig(),
		Engine:  engine.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty, in which case
// RADGRADE_CONFIG is consulted and, failing that, defaults stand. A
// missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.merge(raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.LLM.ApplyEnv()
	cfg.fitLLMTimeout()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fitLLMTimeout keeps the LLM deadline inside the text stage budget so
// a slow provider leaves time to finish on lexical matches.
func (c *Config) fitLLMTimeout() {
	limit := c.Engine.TextTimeout - c.Engine.TextTimeout/5
	if limit <= 0 {
		return
	}
	if c.LLM.Timeout <= 0 || c.LLM.Timeout > limit {
		c.LLM.Timeout = limit
	}
}

// merge overlays a YAML document onto c. Keys absent from the document
// keep their current values.
func (c *Config) merge(raw []byte) error {
	return yaml.Unmarshal(raw, c)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, key string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	float := func(dst *float64, key string) error {
		v := getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = f
		return nil
	}
	boolean := func(dst *bool, key string) error {
		v := getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
		return nil
	}
	duration := func(dst *time.Duration, key string) error {
		v := getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str(&c.Server.Addr, "ADDR")
	if v := getenv(envPrefix + "CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	str(&c.Store.Path, "DB")
	str(&c.Vocabulary.File, "VOCABULARY")
	str(&c.Models.Image.Backend, "IMAGE_BACKEND")
	str(&c.Models.Image.ModelPath, "IMAGE_MODEL")
	str(&c.Models.Image.ImageRoot, "IMAGE_ROOT")
	str(&c.Models.Image.Endpoint, "IMAGE_ENDPOINT")
	str(&c.Models.Image.APIKey, "IMAGE_API_KEY")
	str(&c.Models.Image.LabelsFile, "IMAGE_LABELS")
	str(&c.Models.Text.Backend, "TEXT_BACKEND")
	str(&c.Models.Text.ModelPath, "TEXT_MODEL")
	str(&c.Models.Text.TokenizerPath, "TEXT_TOKENIZER")
	str(&c.Models.OnnxRuntimeLib, "ONNXRUNTIME_LIB")
	str(&c.Cache.RedisURL, "REDIS_URL")
	str(&c.Logging.Level, "LOG_LEVEL")
	str(&c.Logging.Format, "LOG_FORMAT")

	for _, err := range []error{
		float(&c.Extraction.SimilarityThreshold, "SIMILARITY_THRESHOLD"),
		float(&c.Alignment.ImageThreshold, "IMAGE_THRESHOLD"),
		float(&c.Scoring.OvercallFactor, "OVERCALL_FACTOR"),
		boolean(&c.Alignment.ClosedWorldGroundTruth, "CLOSED_WORLD"),
		boolean(&c.Cache.Enabled, "ENABLE_CACHE"),
		duration(&c.Cache.TTL, "CACHE_TTL"),
		duration(&c.Engine.SubmissionTimeout, "SUBMISSION_TIMEOUT"),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds, so CACHE_TTL=3600
// keeps working.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks ranges and backend names across all sections.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := unit("extraction.similarityThreshold", c.Extraction.SimilarityThreshold); err != nil {
		return err
	}
	if err := unit("alignment.imageThreshold", c.Alignment.ImageThreshold); err != nil {
		return err
	}
	if c.Extraction.ScopeWindow < 0 {
		return fmt.Errorf("extraction.scopeWindow must not be negative")
	}
	if err := c.Models.Validate(); err != nil {
		return err
	}
	if c.Models.Text.Backend == "llm" {
		if err := c.LLM.Validate(); err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format: %q", c.Logging.Format)
	}
	return nil
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}
