package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Search.MaxResults != 15 || cfg.Search.MinResults != 2 {
		t.Errorf("expected search pool 15/2, got %d/%d", cfg.Search.MaxResults, cfg.Search.MinResults)
	}
	if cfg.Search.Provider != "duckduckgo" || cfg.Search.NewsAPI.APIKeyEnv != "NEWSAPI_KEY" {
		t.Errorf("unexpected search provider defaults: %q / %q", cfg.Search.Provider, cfg.Search.NewsAPI.APIKeyEnv)
	}
	if cfg.Acquisition.Target != 2 {
		t.Errorf("expected target 2, got %d", cfg.Acquisition.Target)
	}
	if cfg.Rewrite.Budgets != (Budgets{Source: 2000, Reference: 2000, Summary: 600, CombinedSummary: 1200}) {
		t.Errorf("unexpected budgets: %+v", cfg.Rewrite.Budgets)
	}
	if len(cfg.Rewrite.Blocklist) != 6 {
		t.Errorf("expected 6 blocklisted domains, got %d", len(cfg.Rewrite.Blocklist))
	}
	if cfg.Extractor.Timeout != 15*time.Second {
		t.Errorf("expected extractor timeout 15s, got %s", cfg.Extractor.Timeout)
	}
	if len(cfg.Extractor.Profiles) != 1 || !cfg.Extractor.Profiles[0].SkipOnMissing {
		t.Fatalf("expected one skip_on_missing profile, got %+v", cfg.Extractor.Profiles)
	}
	if cfg.Extractor.Profiles[0].Containers[0] != ".elementor-widget-theme-post-content" {
		t.Errorf("unexpected profile container %q", cfg.Extractor.Profiles[0].Containers[0])
	}
	// Defaults not present in the file must survive.
	if len(cfg.Extractor.Strip) == 0 {
		t.Error("expected default strip selectors")
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
rewrite:
  budgets:
    source: 500
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Rewrite.Budgets.Source != 500 {
		t.Errorf("expected source budget 500, got %d", cfg.Rewrite.Budgets.Source)
	}
	if cfg.Rewrite.Budgets.Summary != 600 {
		t.Errorf("expected default summary budget, got %d", cfg.Rewrite.Budgets.Summary)
	}
	if cfg.Search.Endpoint == "" {
		t.Error("expected default search endpoint")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero budget":  "rewrite:\n  budgets:\n    reference: 0\n",
		"zero target":  "acquisition:\n  target: 0\n",
		"bad fidelity": "rewrite:\n  fidelity: verbose\n",
		"pool < min":   "search:\n  max_results: 1\n",
		"bad provider": "search:\n  provider: bing\n",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Catalog.LinkSelector != "h2 a" {
		t.Errorf("expected link selector 'h2 a', got %q", cfg.Catalog.LinkSelector)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("REFRESHER_TEST_KEY=secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REFRESHER_TEST_KEY", "")
	os.Unsetenv("REFRESHER_TEST_KEY")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	llm := LLM{APIKeyEnv: "REFRESHER_TEST_KEY"}
	if llm.APIKey() != "secret" {
		t.Errorf("expected key from .env, got %q", llm.APIKey())
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Store.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
