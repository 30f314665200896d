package config

import (
	"fmt"
	"regexp"
	"strings"

	"sorcerer/internal/core/model"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateTarget(cfg *Config) error {
	if cfg.Target.SearchDepth < 0 {
		return fmt.Errorf("target.search_depth must be >= 0, got %d", cfg.Target.SearchDepth)
	}
	if cfg.Target.File != "" && !strings.HasSuffix(cfg.Target.File, ".go") {
		return fmt.Errorf("target.file must be a .go source file, got %q", cfg.Target.File)
	}
	if strings.HasSuffix(cfg.Target.File, "_test.go") {
		return fmt.Errorf("target.file must not be a test file, got %q", cfg.Target.File)
	}
	return nil
}

func validateFix(cfg *Config) error {
	if cfg.Fix.MaxAttempts < 0 {
		return fmt.Errorf("fix.max_attempts must be >= 0, got %d", cfg.Fix.MaxAttempts)
	}
	if cfg.Fix.MaxJSONRetries < 0 {
		return fmt.Errorf("fix.max_json_retries must be >= 0, got %d", cfg.Fix.MaxJSONRetries)
	}
	if cfg.Fix.ContextLines < 0 {
		return fmt.Errorf("fix.context_lines must be >= 0, got %d", cfg.Fix.ContextLines)
	}
	return nil
}

func validateEnhance(cfg *Config) error {
	for i, kind := range cfg.Enhance.Sequence {
		if _, ok := model.ParseEnhancementKind(kind); !ok {
			return fmt.Errorf("enhance.sequence[%d]: unknown enhancement kind %q", i, kind)
		}
	}
	return nil
}

func validateCrawler(cfg *Config) error {
	for i, pattern := range cfg.Crawler.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("crawler.exclude[%d]: invalid glob %q: %w", i, pattern, err)
		}
	}
	return nil
}

func validateSupplements(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Supplements))
	for i, s := range cfg.Supplements {
		ref := fmt.Sprintf("supplements[%d]", i)
		if s.Symbol == "" {
			return fmt.Errorf("%s.symbol must not be empty", ref)
		}
		if s.Type == "" {
			return fmt.Errorf("%s.type must not be empty", ref)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("duplicate supplement symbol %q", s.Symbol)
		}
		seen[s.Symbol] = true
	}
	return nil
}

var knownTools = map[string]bool{
	"read_file":      true,
	"list_directory": true,
	"query_history":  true,
	"chain_prompt":   true,
}

func validateLLM(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be one of: openai, gemini")
	}
	if cfg.LLM.MaxToolRounds < 0 {
		return fmt.Errorf("llm.max_tool_rounds must be >= 0, got %d", cfg.LLM.MaxToolRounds)
	}
	for _, tool := range cfg.LLM.Tools {
		if !knownTools[tool] {
			return fmt.Errorf("llm.tools: unknown tool %q", tool)
		}
	}
	return nil
}

func validateRunner(cfg *Config) error {
	switch cfg.Runner.Kind {
	case "local":
	case "remote":
		if cfg.Runner.Remote.BaseURL == "" {
			return fmt.Errorf("runner.remote.base_url must be set when runner.kind is remote")
		}
	default:
		return fmt.Errorf("runner.kind must be one of: local, remote")
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if cfg.DB.Enabled && strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateRedact(cfg *Config) error {
	if cfg.Redact.EntropyThreshold < 0 {
		return fmt.Errorf("redact.entropy_threshold must be >= 0, got %v", cfg.Redact.EntropyThreshold)
	}
	for i, p := range cfg.Redact.Patterns {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("redact.patterns[%d]: name must not be empty", i)
		}
		if _, err := regexp.Compile(p.Regex); err != nil {
			return fmt.Errorf("redact.patterns[%d]: invalid regex %q: %w", i, p.Regex, err)
		}
	}
	return nil
}
