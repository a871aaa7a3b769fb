package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/selector"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Reasoner modes.
const (
	ReasonerModeOff  = "off"
	ReasonerModeExec = "exec"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Playbook PlaybookConfig    `yaml:"playbook"`
	ACE      ACEConfig         `yaml:"ace"`
	Memory   MemoryConfig      `yaml:"memory"`
	Reasoner ReasonerConfig    `yaml:"reasoner"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Playbook.Validate(); err != nil {
		return err
	}
	if err := c.ACE.Validate(); err != nil {
		return err
	}
	return c.Reasoner.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// PlaybookConfig holds the store location and curation defaults.
type PlaybookConfig struct {
	Root              string  `yaml:"root"`
	HistoryDB         string  `yaml:"history_db"`
	DefaultConfidence float64 `yaml:"default_confidence"`
	MergeSeparator    string  `yaml:"merge_separator"`
}

// Validate validates the playbook configuration.
func (c *PlaybookConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.HistoryDB, validation.Required),
		validation.Field(&c.DefaultConfidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ACEConfig tunes the curation pipeline: selection budgets, refine
// cadence, and scoring weights.
type ACEConfig struct {
	Enabled          bool             `yaml:"enabled"`
	RefineInterval   int              `yaml:"refine_interval"`
	MaxDeltasPerTurn int              `yaml:"max_deltas_per_turn"`
	ContextFragments int              `yaml:"context_fragments"`
	ContextChars     int              `yaml:"context_chars"`
	MaxSections      int              `yaml:"max_sections"`
	MergePool        int              `yaml:"merge_pool"`
	Weights          selector.Weights `yaml:"weights"`
	Retention        selector.Weights `yaml:"retention_weights"`
}

// Validate validates the ACE configuration.
func (c *ACEConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RefineInterval, validation.Min(0)),
		validation.Field(&c.MaxDeltasPerTurn, validation.Min(0)),
		validation.Field(&c.ContextFragments, validation.Required, validation.Min(1)),
		validation.Field(&c.ContextChars, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxSections, validation.Required, validation.Min(2)),
		validation.Field(&c.MergePool, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.MergePool >= c.MaxSections {
		return fmt.Errorf("ace: merge_pool (%d) must be smaller than max_sections (%d)", c.MergePool, c.MaxSections)
	}
	return nil
}

// MemoryConfig holds the fallback turn-log memory location.
type MemoryConfig struct {
	Root string `yaml:"root"`
}

// ReasonerConfig holds the external reasoning process settings.
type ReasonerConfig struct {
	Mode           string `yaml:"mode"`
	Binary         string `yaml:"binary"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Validate validates the reasoner configuration.
func (c *ReasonerConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = ReasonerModeOff
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(ReasonerModeOff, ReasonerModeExec)),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Mode == ReasonerModeExec && c.Binary == "" {
		return fmt.Errorf("reasoner: mode is %q but binary is empty", ReasonerModeExec)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Playbook: PlaybookConfig{
			Root:              "./data/playbook",
			HistoryDB:         "./data/ansuz-history.db",
			DefaultConfidence: 0.5,
			MergeSeparator:    "\n\n",
		},
		ACE: ACEConfig{
			Enabled:          true,
			RefineInterval:   10,
			MaxDeltasPerTurn: 3,
			ContextFragments: 3,
			ContextChars:     400,
			MaxSections:      6,
			MergePool:        1,
			Weights:          selector.DefaultWeights(),
			Retention:        selector.RetentionWeights(),
		},
		Memory: MemoryConfig{
			Root: "./data/memory",
		},
		Reasoner: ReasonerConfig{
			Mode:           ReasonerModeOff,
			TimeoutSeconds: 90,
		},
	}
}
