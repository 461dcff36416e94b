// Package config loads kernel configuration from the environment (via
// .env files, grounded on github.com/joho/godotenv) with documented
// defaults, combined with a functional-options constructor in the
// teacher's style (runner.Options, agentmesh.Options).
package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the kernel's ambient configuration (spec.md §6 Configuration).
type Config struct {
	ProjectRoot       string
	MaxRecursionDepth int
	RetryBaseDelay    time.Duration
	RetryMaxAttempts  int
	CommandBlocklist  []*regexp.Regexp
	EventBufferSize   int
}

// DefaultCommandBlocklist is the static, compiled-in set of regexes from
// spec.md §4.C.
var DefaultCommandBlocklist = []string{
	`rm\s+-rf`,
	`rm\s+.*\/`,
	`curl.*\|.*sh`,
	`wget.*\|.*sh`,
	`>\s*\/dev`,
	`dd\s+if=`,
	`mkfs`,
	`format`,
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithProjectRoot overrides the default project root directory.
func WithProjectRoot(root string) Option { return func(c *Config) { c.ProjectRoot = root } }

// WithMaxRecursionDepth overrides the default recursion depth limit.
func WithMaxRecursionDepth(depth int) Option {
	return func(c *Config) { c.MaxRecursionDepth = depth }
}

// WithRetryPolicy overrides the provider adapter's retry policy.
func WithRetryPolicy(baseDelay time.Duration, maxAttempts int) Option {
	return func(c *Config) {
		c.RetryBaseDelay = baseDelay
		c.RetryMaxAttempts = maxAttempts
	}
}

// WithCommandBlocklist overrides the compiled-in command blocklist.
func WithCommandBlocklist(patterns []string) Option {
	return func(c *Config) { c.CommandBlocklist = compile(patterns) }
}

// WithEventBufferSize overrides the bus's per-subscriber buffer hint.
func WithEventBufferSize(n int) Option { return func(c *Config) { c.EventBufferSize = n } }

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// Default returns the documented defaults (spec.md §6): project root
// /projects, recursion depth 5, retry base delay 2s, max retries 4.
func Default() *Config {
	return &Config{
		ProjectRoot:       "/projects",
		MaxRecursionDepth: 5,
		RetryBaseDelay:    2 * time.Second,
		RetryMaxAttempts:  4,
		CommandBlocklist:  compile(DefaultCommandBlocklist),
		EventBufferSize:   256,
	}
}

// Load reads a .env file (if present, via godotenv) then environment
// variables, falling back to documented defaults for anything unset. A
// missing .env file is tolerated (in-memory/default mode).
func Load(envFile string, optFns ...Option) *Config {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Default()
	if v := os.Getenv("SWARMKERNEL_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("SWARMKERNEL_MAX_RECURSION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRecursionDepth = n
		}
	}
	if v := os.Getenv("SWARMKERNEL_RETRY_BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryBaseDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("SWARMKERNEL_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("SWARMKERNEL_EVENT_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBufferSize = n
		}
	}

	for _, fn := range optFns {
		fn(cfg)
	}
	return cfg
}
