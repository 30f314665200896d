package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// metaSet answers IsDefined across the main file and its includes.
type metaSet []toml.MetaData

func (m metaSet) IsDefined(key ...string) bool {
	for _, md := range m {
		if md.IsDefined(key...) {
			return true
		}
	}
	return false
}

// Load reads path and the files it includes. Includes are decoded first, in
// order, so later files and finally path itself win.
func Load(path string) (*Config, error) {
	var cfg Config
	var metas metaSet
	if err := decodeLayered(path, &cfg, &metas, map[string]bool{}); err != nil {
		return nil, err
	}

	applyDefaults(&cfg, metas)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateTarget(&cfg); err != nil {
		return nil, err
	}
	if err := validateFix(&cfg); err != nil {
		return nil, err
	}
	if err := validateEnhance(&cfg); err != nil {
		return nil, err
	}
	if err := validateCrawler(&cfg); err != nil {
		return nil, err
	}
	if err := validateSupplements(&cfg); err != nil {
		return nil, err
	}
	if err := validateLLM(&cfg); err != nil {
		return nil, err
	}
	if err := validateRunner(&cfg); err != nil {
		return nil, err
	}
	if err := validateDatabase(&cfg); err != nil {
		return nil, err
	}
	if err := validateRedact(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path when it is set, otherwise returns the defaults
// with env overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return Load(path)
	}
	cfg := &Config{}
	applyDefaults(cfg, nil)
	ApplyEnvOverrides(cfg)
	normalize(cfg)
	for _, validate := range []func(*Config) error{
		validateVersion, validateTarget, validateFix, validateEnhance,
		validateCrawler, validateSupplements, validateLLM, validateRunner, validateDatabase, validateRedact,
	} {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func decodeLayered(path string, cfg *Config, metas *metaSet, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if seen[abs] {
		return fmt.Errorf("config include cycle at %s", path)
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	var header struct {
		ConfigFiles ConfigFiles `toml:"config"`
	}
	if _, err := toml.Decode(string(data), &header); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, inc := range header.ConfigFiles.Includes {
		if err := decodeLayered(ResolveRelative(filepath.Dir(abs), inc), cfg, metas, seen); err != nil {
			return err
		}
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*metas = append(*metas, md)
	return nil
}

func applyDefaults(cfg *Config, defined metaSet) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if !defined.IsDefined("target", "search_depth") {
		cfg.Target.SearchDepth = 2
	}

	if !defined.IsDefined("fix", "max_attempts") {
		cfg.Fix.MaxAttempts = 3
	}
	if !defined.IsDefined("fix", "max_json_retries") {
		cfg.Fix.MaxJSONRetries = 3
	}
	if !defined.IsDefined("fix", "context_lines") {
		cfg.Fix.ContextLines = 3
	}

	if !defined.IsDefined("enhance", "sequence") {
		cfg.Enhance.Sequence = append([]string(nil), DefaultEnhanceSequence...)
	}

	if !defined.IsDefined("crawler", "excluded_namespaces") {
		cfg.Crawler.ExcludedNamespaces = append([]string(nil), DefaultExcludedNamespaces...)
	}
	if len(cfg.Crawler.Exclude) == 0 {
		cfg.Crawler.Exclude = []string{"**/vendor/**", "**/testdata/**", "**/.git/**"}
	}
	if cfg.Crawler.ParseWorkers <= 0 {
		cfg.Crawler.ParseWorkers = 4
	}
	if cfg.Crawler.CacheSize <= 0 {
		cfg.Crawler.CacheSize = 4
	}

	if !defined.IsDefined("supplements") {
		cfg.Supplements = append([]Supplement(nil), DefaultSupplements...)
	}

	if strings.TrimSpace(cfg.LLM.Provider) == "" {
		cfg.LLM.Provider = "openai"
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.Model = "gemini-2.5-flash"
		default:
			cfg.LLM.Model = "gpt-4o"
		}
	}
	if strings.TrimSpace(cfg.LLM.APIKeyEnv) == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
		default:
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 3 * time.Minute
	}
	if cfg.LLM.RequestsPerSecond <= 0 {
		cfg.LLM.RequestsPerSecond = 1
	}
	if cfg.LLM.Burst <= 0 {
		cfg.LLM.Burst = 1
	}
	if !defined.IsDefined("llm", "max_tool_rounds") {
		cfg.LLM.MaxToolRounds = 5
	}
	if !defined.IsDefined("llm", "tools") {
		cfg.LLM.Tools = []string{"read_file", "list_directory"}
	}

	if strings.TrimSpace(cfg.Runner.Kind) == "" {
		cfg.Runner.Kind = "local"
	}
	if cfg.Runner.Timeout <= 0 {
		cfg.Runner.Timeout = 5 * time.Minute
	}
	if strings.TrimSpace(cfg.Runner.GoBinary) == "" {
		cfg.Runner.GoBinary = "go"
	}
	if cfg.Runner.Remote.PollInterval <= 0 {
		cfg.Runner.Remote.PollInterval = 500 * time.Millisecond
	}
	if cfg.Runner.Remote.ReadyTimeout <= 0 {
		cfg.Runner.Remote.ReadyTimeout = 60 * time.Second
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".sorcerer/state"
	}
	if strings.TrimSpace(cfg.Paths.DatabaseDir) == "" {
		cfg.Paths.DatabaseDir = ".sorcerer"
	}

	if !defined.IsDefined("db", "enabled") {
		cfg.DB.Enabled = true
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "sorcerer"
	}

	if !defined.IsDefined("ui", "spinner") {
		cfg.UI.Spinner = true
	}
	if !defined.IsDefined("ui", "color") {
		cfg.UI.Color = true
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}

	if !defined.IsDefined("redact", "enabled") {
		cfg.Redact.Enabled = true
	}
	if cfg.Redact.MinTokenLength <= 0 {
		cfg.Redact.MinTokenLength = 20
	}
}

func normalize(cfg *Config) {
	cfg.Target.File = strings.TrimSpace(cfg.Target.File)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Runner.Kind = strings.ToLower(strings.TrimSpace(cfg.Runner.Kind))
	cfg.Runner.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Runner.Remote.BaseURL), "/")
	cfg.Enhance.Sequence = normalizeList(cfg.Enhance.Sequence, true)
	cfg.Crawler.ExcludedNamespaces = normalizeList(cfg.Crawler.ExcludedNamespaces, false)
	cfg.Crawler.PreferredProjects = normalizeList(cfg.Crawler.PreferredProjects, false)
	cfg.LLM.Tools = normalizeList(cfg.LLM.Tools, true)
	for i := range cfg.Supplements {
		s := &cfg.Supplements[i]
		s.Symbol = strings.TrimSpace(s.Symbol)
		s.Type = strings.TrimSpace(s.Type)
		s.Reason = strings.TrimSpace(s.Reason)
	}
}

func normalizeList(values []string, lower bool) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
	}
	return out
}
