// Package config provides configuration management for the PDF translation
// pipeline.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "neodumastrans.yaml"
	// EnvOpenAIAPIKey is the environment variable name for the OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for the OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default translation model
	DefaultModel = "gpt-4o-mini"
	// DefaultTargetLang is the default translation target language
	DefaultTargetLang = "zh"
	// DefaultChunkSize is the default number of pages per PDF chunk
	DefaultChunkSize = 25
	// DefaultTranslateConcurrency is the default number of concurrent
	// translation batches per chunk
	DefaultTranslateConcurrency = 10
	// DefaultExtractConcurrency is the default number of chunks processed
	// concurrently by the extraction backend
	DefaultExtractConcurrency = 1
	// DefaultMaxRetry is the default number of whole-pipeline attempts
	DefaultMaxRetry = 3
	// DefaultCharBudget is the default character budget per translation batch
	DefaultCharBudget = 1500
)

// Config 流水线运行配置
type Config struct {
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	Model         string `yaml:"model"`
	TargetLang    string `yaml:"target_lang"`

	// PDFType selects the extraction mode: txt, ocr, vlm or auto.
	PDFType string `yaml:"pdf_type"`

	ExtractAPIKey  string `yaml:"extract_api_key"`
	ExtractBaseURL string `yaml:"extract_base_url"`

	WorkDirectory string `yaml:"work_directory"`

	ChunkSize            int `yaml:"chunk_size"`
	TranslateConcurrency int `yaml:"translate_concurrency"`
	ExtractConcurrency   int `yaml:"extract_concurrency"`
	MaxRetry             int `yaml:"max_retry"`
	CharBudget           int `yaml:"char_budget"`

	// CleanupWorkdir removes the per-run working directory after a
	// successful merge.
	CleanupWorkdir bool `yaml:"cleanup_workdir"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		OpenAIBaseURL:        DefaultBaseURL,
		Model:                DefaultModel,
		TargetLang:           DefaultTargetLang,
		PDFType:              "auto",
		ChunkSize:            DefaultChunkSize,
		TranslateConcurrency: DefaultTranslateConcurrency,
		ExtractConcurrency:   DefaultExtractConcurrency,
		MaxRetry:             DefaultMaxRetry,
		CharBudget:           DefaultCharBudget,
	}
}

// Load reads the YAML config file at path. A missing file is not an error:
// defaults are returned. Environment variables override empty credential
// fields, matching the precedence the CLI documents.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// applyDefaults restores defaults for zero-valued fields so that a sparse
// config file behaves like the documented defaults.
func (c *Config) applyDefaults() {
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.TargetLang == "" {
		c.TargetLang = DefaultTargetLang
	}
	if c.PDFType == "" {
		c.PDFType = "auto"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.TranslateConcurrency <= 0 {
		c.TranslateConcurrency = DefaultTranslateConcurrency
	}
	if c.ExtractConcurrency <= 0 {
		c.ExtractConcurrency = DefaultExtractConcurrency
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = DefaultMaxRetry
	}
	if c.CharBudget <= 0 {
		c.CharBudget = DefaultCharBudget
	}
}

// applyEnv fills credentials from the environment when the file left them
// empty. Environment values never override explicit file values.
func (c *Config) applyEnv() {
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if c.OpenAIBaseURL == "" || c.OpenAIBaseURL == DefaultBaseURL {
		if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
			c.OpenAIBaseURL = v
		}
	}
}

// Validate checks the fields the pipeline cannot default its way around.
func (c *Config) Validate() error {
	switch c.PDFType {
	case "txt", "ocr", "vlm", "auto":
	default:
		return fmt.Errorf("invalid pdf_type %q: want txt, ocr, vlm or auto", c.PDFType)
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("missing OpenAI API key: set openai_api_key or %s", EnvOpenAIAPIKey)
	}
	return nil
}

// Save writes the configuration back to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
