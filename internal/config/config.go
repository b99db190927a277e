package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Search      Search      `yaml:"search"`
	Extractor   Extractor   `yaml:"extractor"`
	Acquisition Acquisition `yaml:"acquisition"`
	Rewrite     Rewrite     `yaml:"rewrite"`
	LLM         LLM         `yaml:"llm"`
	Articles    Articles    `yaml:"articles"`
	Catalog     Catalog     `yaml:"catalog"`
	Store       Store       `yaml:"store"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type Search struct {
	// Provider is duckduckgo (keyless HTML scraping) or newsapi.
	Provider      string        `yaml:"provider"`
	Endpoint      string        `yaml:"endpoint"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	Containers    []string      `yaml:"containers"`
	ExcludedHosts []string      `yaml:"excluded_hosts"`
	MaxResults    int           `yaml:"max_results"`
	MinResults    int           `yaml:"min_results"`
	WarnBelow     int           `yaml:"warn_below"`
	NewsAPI       NewsAPI       `yaml:"newsapi"`
}

type NewsAPI struct {
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
}

type Extractor struct {
	UserAgent           string        `yaml:"user_agent"`
	AcceptLanguage      string        `yaml:"accept_language"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	ReadabilityFallback bool          `yaml:"readability_fallback"`
	Strip               []string      `yaml:"strip"`
	Containers          []string      `yaml:"containers"`
	Blocks              string        `yaml:"blocks"`
	Profiles            []Profile     `yaml:"profiles"`
}

// Profile overrides extraction for one host (and its subdomains).
type Profile struct {
	Host          string   `yaml:"host"`
	Strip         []string `yaml:"strip"`
	Containers    []string `yaml:"containers"`
	Blocks        string   `yaml:"blocks"`
	SkipOnMissing bool     `yaml:"skip_on_missing"`
}

type Acquisition struct {
	Target int `yaml:"target"`
}

type Rewrite struct {
	Budgets      Budgets  `yaml:"budgets"`
	Blocklist    []string `yaml:"blocklist"`
	SummaryWords int      `yaml:"summary_words"`
	Fidelity     string   `yaml:"fidelity"`
	MinWords     int      `yaml:"min_words"`
}

// Budgets are character (rune) limits applied before any text reaches the backend.
type Budgets struct {
	Source          int `yaml:"source"`
	Reference       int `yaml:"reference"`
	Summary         int `yaml:"summary"`
	CombinedSummary int `yaml:"combined_summary"`
}

type LLM struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Articles struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Catalog struct {
	ListingURL   string `yaml:"listing_url"`
	FeedURL      string `yaml:"feed_url"`
	LinkSelector string `yaml:"link_selector"`
	MaxArticles  int    `yaml:"max_articles"`
}

type Store struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// ConfigDir returns the XDG config directory for refresher.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "refresher")
}

// DataDir returns the XDG data directory for refresher.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "refresher")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/refresher/config.yaml > ./config.yaml
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

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'refresher init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads .env files into the process environment. Missing files are
// not an error; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration with no file overrides applied.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults first so partial
// files work.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Search: Search{
			Provider:      "duckduckgo",
			Endpoint:      "https://html.duckduckgo.com/html/?q=",
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
			Timeout:       30 * time.Second,
			Containers:    []string{"div.result", "div.results > div"},
			ExcludedHosts: []string{"duckduckgo.com", "beyondchats.com"},
			MaxResults:    15,
			MinResults:    2,
			WarnBelow:     10,
			NewsAPI: NewsAPI{
				Endpoint:  "https://newsapi.org/v2/everything",
				APIKeyEnv: "NEWSAPI_KEY",
				Language:  "en",
			},
		},
		Extractor: Extractor{
			UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			AcceptLanguage:      "en-US,en;q=0.9",
			Timeout:             15 * time.Second,
			MaxBodyBytes:        5 << 20,
			ReadabilityFallback: true,
			Strip: []string{
				"script", "style", "nav", "header", "footer", "aside",
				".comments", ".comment", ".related-posts", ".author", ".share", ".breadcrumb", ".cta",
			},
			Containers: []string{"article", "main", `div[class*="content"]`, `div[class*="post"]`, "body"},
			Blocks:     "h1, h2, h3, p, li",
		},
		Acquisition: Acquisition{Target: 2},
		Rewrite: Rewrite{
			Budgets: Budgets{Source: 2000, Reference: 2000, Summary: 600, CombinedSummary: 1200},
			Blocklist: []string{
				"pmc.ncbi.nlm.nih.gov", "ncbi.nlm.nih.gov", "nature.com",
				"springer.com", "elsevier.com", "sciencedirect.com",
			},
			SummaryWords: 150,
			Fidelity:     "standard",
			MinWords:     1200,
		},
		LLM: LLM{
			Provider:    "openai",
			Model:       "llama-3.1-8b-instant",
			BaseURL:     "https://api.groq.com/openai/v1",
			APIKeyEnv:   "GROQ_API_KEY",
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Articles: Articles{BaseURL: "http://localhost:3000", Timeout: 10 * time.Second},
		Catalog: Catalog{
			ListingURL:   "https://beyondchats.com/blogs/",
			LinkSelector: "h2 a",
			MaxArticles:  5,
		},
		Server:  Server{Port: 3000},
		Logging: Logging{Level: "info", Console: true},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make a run meaningless.
func (c *Config) Validate() error {
	b := c.Rewrite.Budgets
	if b.Source <= 0 || b.Reference <= 0 || b.Summary <= 0 || b.CombinedSummary <= 0 {
		return fmt.Errorf("rewrite budgets must be positive: %+v", b)
	}
	if c.Acquisition.Target <= 0 {
		return fmt.Errorf("acquisition.target must be positive, got %d", c.Acquisition.Target)
	}
	if c.Search.MinResults <= 0 || c.Search.MaxResults < c.Search.MinResults {
		return fmt.Errorf("search.max_results (%d) must be >= min_results (%d) > 0",
			c.Search.MaxResults, c.Search.MinResults)
	}
	switch strings.ToLower(c.Search.Provider) {
	case "duckduckgo", "newsapi":
	default:
		return fmt.Errorf("search.provider must be duckduckgo or newsapi, got %q", c.Search.Provider)
	}
	switch strings.ToLower(c.Rewrite.Fidelity) {
	case "standard", "extended":
	default:
		return fmt.Errorf("rewrite.fidelity must be standard or extended, got %q", c.Rewrite.Fidelity)
	}
	return nil
}

// APIKey resolves the generation backend credential from the environment.
func (l LLM) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// APIKey resolves the NewsAPI key from the environment.
func (n NewsAPI) APIKey() string {
	if n.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(n.APIKeyEnv)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Store.DataDir != "" {
		return c.Store.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
