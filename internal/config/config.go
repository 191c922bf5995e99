package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Validation errors.
var (
	ErrMissingSearchKey = errors.New("search provider API key not set")
	ErrMissingLLMKey    = errors.New("LLM API key not set")
	ErrMissingMongoURI  = errors.New("MongoDB URI not set")
)

type Config struct {
	Search   Search   `yaml:"search"`
	LLM      LLM      `yaml:"llm"`
	Storage  Storage  `yaml:"storage"`
	Pipeline Pipeline `yaml:"pipeline"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Search struct {
	Provider   string  `yaml:"provider"`
	BaseQuery  string  `yaml:"base_query"`
	MaxResults int     `yaml:"max_results"`
	FullMonth  bool    `yaml:"full_month"`
	Exa        Exa     `yaml:"exa"`
	Tavily     Tavily  `yaml:"tavily"`
	NewsAPI    NewsAPI `yaml:"newsapi"`
	Feeds      []Feed  `yaml:"feeds"`
}

type Exa struct {
	APIKeyEnv     string `yaml:"api_key_env"`
	BaseURL       string `yaml:"base_url"`
	TextMaxChars  int    `yaml:"text_max_chars"`
	UseAutoprompt bool   `yaml:"use_autoprompt"`
}

type Tavily struct {
	APIKeyEnv      string   `yaml:"api_key_env"`
	BaseURL        string   `yaml:"base_url"`
	Topic          string   `yaml:"topic"`
	IncludeDomains []string `yaml:"include_domains"`
	ExcludeDomains []string `yaml:"exclude_domains"`
}

type NewsAPI struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type LLM struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	OpenAIURL   string `yaml:"openai_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
	JudgeModel  string `yaml:"judge_model"`
	JudgePrompt string `yaml:"judge_prompt"`
	RankModel   string `yaml:"rank_model"`
	RankPrompt  string `yaml:"rank_prompt"`
}

type Storage struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"data_dir"`
	MongoURIEnv string `yaml:"mongo_uri_env"`
	MongoDB     string `yaml:"mongo_database"`
}

type Pipeline struct {
	Concurrency         int  `yaml:"concurrency"`
	MinScore            int  `yaml:"min_score"`
	TopN                int  `yaml:"top_n"`
	FetchMissingContent bool `yaml:"fetch_missing_content"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for eventminer.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "eventminer")
}

// DataDir returns the XDG data directory for eventminer.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "eventminer")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/eventminer/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'eventminer init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Search: Search{
			Provider:   "exa",
			BaseQuery:  "Bitcoin cryptocurrency news and developments",
			MaxResults: 15,
			Exa: Exa{
				APIKeyEnv:     "EXA_API_KEY",
				TextMaxChars:  1000,
				UseAutoprompt: true,
			},
			Tavily:  Tavily{APIKeyEnv: "TAVILY_API_KEY"},
			NewsAPI: NewsAPI{APIKeyEnv: "NEWSAPI_KEY"},
		},
		LLM: LLM{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   4096,
		},
		Storage: Storage{
			Backend:     "sqlite",
			MongoURIEnv: "MONGODB_URI",
			MongoDB:     "bitcoin_news",
		},
		Pipeline: Pipeline{
			Concurrency: 4,
			MinScore:    0,
			TopN:        5,
		},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the credentials the selected backends need are
// present in the environment. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	keyEnv := ""
	switch c.Search.Provider {
	case "exa":
		keyEnv = c.Search.Exa.APIKeyEnv
	case "tavily":
		keyEnv = c.Search.Tavily.APIKeyEnv
	case "newsapi":
		keyEnv = c.Search.NewsAPI.APIKeyEnv
	case "feed":
		if len(c.Search.Feeds) == 0 {
			errs = append(errs, errors.New("search.feeds is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search provider %q", c.Search.Provider))
	}
	if keyEnv != "" && os.Getenv(keyEnv) == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSearchKey, keyEnv))
	}

	if strings.ToLower(c.LLM.Provider) != "ollama" && os.Getenv(c.LLM.APIKeyEnv) == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingLLMKey, c.LLM.APIKeyEnv))
	}

	switch c.Storage.Backend {
	case "sqlite":
	case "mongo":
		if os.Getenv(c.Storage.MongoURIEnv) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingMongoURI, c.Storage.MongoURIEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency))
	}

	return errors.Join(errs...)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// MongoURI returns the MongoDB connection string from the environment.
func (c *Config) MongoURI() string {
	return os.Getenv(c.Storage.MongoURIEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
