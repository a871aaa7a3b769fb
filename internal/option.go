package internal

import "github.com/starford/ansuz/internal/reasoner"

// Run modes.
const (
	ModeServe   = "serve"   // full pipeline + HTTP surface
	ModeMonitor = "monitor" // read-only follower of another run's store
	ModeMCP     = "mcp"     // stdio MCP server, no HTTP
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	mode     string
	reasoner reasoner.Reasoner
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode selects the run mode (serve, monitor, mcp).
func WithMode(mode string) Option {
	return func(a *application) {
		a.mode = mode
	}
}

// WithReasoner overrides the configured reasoner client (used in tests).
func WithReasoner(r reasoner.Reasoner) Option {
	return func(a *application) {
		a.reasoner = r
	}
}
