package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	LLM      LLMConfig      `yaml:"llm" toml:"llm"`
	Generate GenerateConfig `yaml:"generate" toml:"generate"`
	Data     DataConfig     `yaml:"data" toml:"data"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"` // 为空时不启动状态服务
	Mode        string `yaml:"mode" toml:"mode"`                 // debug, release
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Type    string `yaml:"type" toml:"type"` // sqlite, mysql
	DSN     string `yaml:"dsn" toml:"dsn"`
}

type LLMConfig struct {
	Backend     string        `yaml:"backend" toml:"backend"` // http, openai
	APIURL      string        `yaml:"api_url" toml:"api_url"`
	APIKey      string        `yaml:"api_key" toml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file" toml:"api_key_file"`
	Model       string        `yaml:"model" toml:"model"`
	MaxTokens   int           `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64       `yaml:"temperature" toml:"temperature"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"` // 1 表示不重试
	BaseBackoff time.Duration `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff" toml:"max_backoff"`
}

type GenerateConfig struct {
	NumConversations int         `yaml:"num_conversations" toml:"num_conversations"`
	NumWorkers       int         `yaml:"num_workers" toml:"num_workers"`
	ExemplarCount    int         `yaml:"exemplar_count" toml:"exemplar_count"`
	MinMessages      int         `yaml:"min_messages" toml:"min_messages"`
	RequireASCII     bool        `yaml:"require_ascii" toml:"require_ascii"`
	FailOnRejection  bool        `yaml:"fail_on_rejection" toml:"fail_on_rejection"`
	DryRun           bool        `yaml:"dry_run" toml:"dry_run"`
	Retry            RetryConfig `yaml:"retry" toml:"retry"`
}

type DataConfig struct {
	Dir         string `yaml:"dir" toml:"dir"`
	OutputFile  string `yaml:"output_file" toml:"output_file"`
	TemplateDir string `yaml:"template_dir" toml:"template_dir"`
	ReadmePath  string `yaml:"readme_path" toml:"readme_path"`
	LifeDocPath string `yaml:"life_doc_path" toml:"life_doc_path"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Mode: "release",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./.cache/synthgen.db",
		},
		LLM: LLMConfig{
			Backend:     "http",
			APIURL:      "https://openrouter.ai/api/v1",
			APIKeyFile:  "openroutertoken.txt",
			Model:       "x-ai/grok-4-fast",
			Temperature: 1.0,
			Timeout:     5 * time.Minute,
		},
		Generate: GenerateConfig{
			NumConversations: 2500,
			NumWorkers:       4,
			ExemplarCount:    5,
			MinMessages:      6,
			Retry: RetryConfig{
				MaxAttempts: 1,
				BaseBackoff: time.Second,
				MaxBackoff:  30 * time.Second,
			},
		},
		Data: DataConfig{
			Dir:        "./.cache",
			OutputFile: "identity_conversations.jsonl",
			ReadmePath: "README.md",
		},
	}
}

// Load 读取配置：默认值 -> 配置文件 -> 环境变量
// path 为空时依次尝试 CONFIG_PATH 与 config.yaml，文件不存在不算错误
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(config)
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, config)
	default:
		return yaml.Unmarshal(data, config)
	}
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if backend := os.Getenv("LLM_BACKEND"); backend != "" {
		config.LLM.Backend = backend
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
		config.Database.Enabled = true
	}

	// NANOCHAT_BASE_DIR 与原有数据目录约定保持一致
	if dataDir := os.Getenv("NANOCHAT_BASE_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if workers := os.Getenv("SYNTHGEN_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Generate.NumWorkers = n
		}
	}
}

// OutputPath 返回输出 JSONL 文件的完整路径
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Data.OutputFile) {
		return c.Data.OutputFile
	}
	return filepath.Join(c.Data.Dir, c.Data.OutputFile)
}

// ResolveAPIKey 返回 API Key；未直接配置时从 api_key_file 读取
func (c *Config) ResolveAPIKey() (string, error) {
	if c.LLM.APIKey != "" {
		return c.LLM.APIKey, nil
	}
	if c.LLM.APIKeyFile == "" {
		return "", errors.New("no API key configured")
	}
	data, err := os.ReadFile(c.LLM.APIKeyFile)
	if err != nil {
		return "", fmt.Errorf("read API key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("API key file %s is empty", c.LLM.APIKeyFile)
	}
	return key, nil
}

// Validate 校验运行参数
func (c *Config) Validate() error {
	var errs []error
	if c.Generate.NumConversations < 0 {
		errs = append(errs, fmt.Errorf("num_conversations must be >= 0, got %d", c.Generate.NumConversations))
	}
	if c.Generate.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("num_workers must be >= 1, got %d", c.Generate.NumWorkers))
	}
	if c.Generate.MinMessages != 0 && c.Generate.MinMessages < 6 {
		errs = append(errs, fmt.Errorf("min_messages must be 0 (default) or >= 6, got %d", c.Generate.MinMessages))
	}
	if c.Generate.ExemplarCount < 1 {
		errs = append(errs, fmt.Errorf("exemplar_count must be >= 1, got %d", c.Generate.ExemplarCount))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}
	if c.Generate.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Generate.Retry.MaxAttempts))
	}
	switch c.LLM.Backend {
	case "http", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown llm backend %q", c.LLM.Backend))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm model is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
