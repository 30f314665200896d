package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: SORCERER_[SECTION]_[KEY] (e.g., SORCERER_FIX_MAX_ATTEMPTS).
func ApplyEnvOverrides(cfg *Config) {
	// Target
	setEnvString(&cfg.Target.File, "SORCERER_TARGET_FILE")
	setEnvInt(&cfg.Target.SearchDepth, "SORCERER_TARGET_SEARCH_DEPTH")
	setEnvBool(&cfg.Target.SkipIfTestsExist, "SORCERER_TARGET_SKIP_IF_TESTS_EXIST")

	// Fix loop
	setEnvInt(&cfg.Fix.MaxAttempts, "SORCERER_FIX_MAX_ATTEMPTS")
	setEnvInt(&cfg.Fix.MaxJSONRetries, "SORCERER_FIX_MAX_JSON_RETRIES")
	setEnvInt(&cfg.Fix.ContextLines, "SORCERER_FIX_CONTEXT_LINES")

	// LLM
	setEnvString(&cfg.LLM.Provider, "SORCERER_LLM_PROVIDER")
	setEnvString(&cfg.LLM.Model, "SORCERER_LLM_MODEL")
	setEnvString(&cfg.LLM.BaseURL, "SORCERER_LLM_BASE_URL")
	setEnvString(&cfg.LLM.APIKeyEnv, "SORCERER_LLM_API_KEY_ENV")
	setEnvDuration(&cfg.LLM.Timeout, "SORCERER_LLM_TIMEOUT")
	setEnvFloat64(&cfg.LLM.RequestsPerSecond, "SORCERER_LLM_REQUESTS_PER_SECOND")

	// Runner
	setEnvString(&cfg.Runner.Kind, "SORCERER_RUNNER_KIND")
	setEnvDuration(&cfg.Runner.Timeout, "SORCERER_RUNNER_TIMEOUT")
	setEnvString(&cfg.Runner.GoBinary, "SORCERER_RUNNER_GO_BINARY")
	setEnvString(&cfg.Runner.Remote.BaseURL, "SORCERER_RUNNER_REMOTE_BASE_URL")

	// Output and paths
	setEnvString(&cfg.Output.TestsRoot, "SORCERER_OUTPUT_TESTS_ROOT")
	setEnvString(&cfg.Paths.ProjectRoot, "SORCERER_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "SORCERER_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.DatabaseDir, "SORCERER_PATHS_DATABASE_DIR")

	// Database
	setEnvBool(&cfg.DB.Enabled, "SORCERER_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "SORCERER_DB_PATH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "SORCERER_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "SORCERER_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "SORCERER_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "SORCERER_OBSERVABILITY_ENABLE_TRACING")

	// UI
	setEnvBool(&cfg.UI.Spinner, "SORCERER_UI_SPINNER")

	setEnvBool(&cfg.Redact.Enabled, "SORCERER_REDACT_ENABLED")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
