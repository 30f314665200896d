package config

import (
	"os"
	"strings"
	"time"
)

const DefaultFileName = "sorcerer.toml"

type Config struct {
	Version       int           `toml:"version"`
	ConfigFiles   ConfigFiles   `toml:"config"`
	Target        Target        `toml:"target"`
	Fix           Fix           `toml:"fix"`
	Enhance       Enhance       `toml:"enhance"`
	Crawler       Crawler       `toml:"crawler"`
	Supplements   []Supplement  `toml:"supplements"`
	LLM           LLM           `toml:"llm"`
	Runner        Runner        `toml:"runner"`
	Output        Output        `toml:"output"`
	Paths         Paths         `toml:"paths"`
	DB            Database      `toml:"db"`
	Observability Observability `toml:"observability"`
	UI            UI            `toml:"ui"`
	Watch         Watch         `toml:"watch"`
	Redact        Redact        `toml:"redact"`
}

type ConfigFiles struct {
	Includes []string `toml:"includes"`
}

type Target struct {
	File             string `toml:"file"`
	SearchDepth      int    `toml:"search_depth"`
	SkipIfTestsExist bool   `toml:"skip_if_tests_exist"`
}

type Fix struct {
	MaxAttempts    int `toml:"max_attempts"`
	MaxJSONRetries int `toml:"max_json_retries"`
	ContextLines   int `toml:"context_lines"`
}

type Enhance struct {
	Sequence []string `toml:"sequence"`
}

type Crawler struct {
	ExcludedNamespaces []string `toml:"excluded_namespaces"`
	PreferredProjects  []string `toml:"preferred_projects"`
	Exclude            []string `toml:"exclude"`
	ParseWorkers       int      `toml:"parse_workers"`
	CacheSize          int      `toml:"cache_size"`
}

// Supplement maps an interface-like symbol to the fake type that should be
// shown to the model next to it.
type Supplement struct {
	Symbol string `toml:"symbol"`
	Type   string `toml:"type"`
	Reason string `toml:"reason"`
}

type LLM struct {
	Provider          string        `toml:"provider"`
	Model             string        `toml:"model"`
	BaseURL           string        `toml:"base_url"`
	APIKeyEnv         string        `toml:"api_key_env"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
	MaxToolRounds     int           `toml:"max_tool_rounds"`
	SystemPrompt      string        `toml:"system_prompt"`
	Tools             []string      `toml:"tools"`
}

// APIKey reads the key from the configured environment variable.
func (l LLM) APIKey() string {
	if strings.TrimSpace(l.APIKeyEnv) == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

type Runner struct {
	Kind     string        `toml:"kind"`
	Timeout  time.Duration `toml:"timeout"`
	GoBinary string        `toml:"go_binary"`
	Remote   RemoteRunner  `toml:"remote"`
}

type RemoteRunner struct {
	BaseURL       string        `toml:"base_url"`
	LaunchCommand []string      `toml:"launch_command"`
	PollInterval  time.Duration `toml:"poll_interval"`
	ReadyTimeout  time.Duration `toml:"ready_timeout"`
}

type Output struct {
	TestsRoot string `toml:"tests_root"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
	DatabaseDir string `toml:"database_dir"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	ServiceName   string `toml:"service_name"`
}

type UI struct {
	Spinner bool `toml:"spinner"`
	Color   bool `toml:"color"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

// Redact controls masking of credentials in prompts. EntropyThreshold > 0
// also masks every high-entropy quoted token.
type Redact struct {
	Enabled          bool            `toml:"enabled"`
	MinTokenLength   int             `toml:"min_token_length"`
	EntropyThreshold float64         `toml:"entropy_threshold"`
	Patterns         []RedactPattern `toml:"patterns"`
}

type RedactPattern struct {
	Name  string `toml:"name"`
	Regex string `toml:"regex"`
}

// DefaultEnhanceSequence runs two improvement passes, each checked by a verify step.
var DefaultEnhanceSequence = []string{"general", "coverage", "verify", "cleanup", "verify"}

// DefaultExcludedNamespaces covers testing and mocking libraries. The Go
// standard library is excluded separately by the crawler.
var DefaultExcludedNamespaces = []string{
	"testing",
	"github.com/stretchr/testify",
	"go.uber.org/mock",
	"github.com/golang/mock",
	"github.com/onsi/ginkgo",
	"github.com/onsi/gomega",
}

var DefaultSupplements = []Supplement{
	{Symbol: "Clock", Type: "FakeClock", Reason: "Use FakeClock to control time deterministically in tests."},
	{Symbol: "TimeProvider", Type: "FakeTimeProvider", Reason: "Use FakeTimeProvider to control the current time in tests."},
	{Symbol: "TickProvider", Type: "FakeTickProvider", Reason: "Use FakeTickProvider to advance ticks manually instead of sleeping."},
	{Symbol: "Ticker", Type: "FakeTicker", Reason: "Use FakeTicker to fire ticks on demand."},
}

// Default returns a configuration with every default applied, used when no
// config file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, nil)
	normalize(cfg)
	return cfg
}
