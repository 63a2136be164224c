// Package config resolves tc settings from defaults, the optional
// .tc/config.yaml file, and TC_* environment variables (highest wins).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// Defaults. Interval and buffer sizes follow the documented environment
// contract; timeouts follow the operational defaults.
const (
	DefaultTickIntervalMS     = 2000
	DefaultMaxRetries         = 1
	DefaultEventBuffer        = 256
	DefaultAgentBin           = "claude"
	DefaultDBDriver           = "sqlite"
	DefaultKillGraceSecs      = 10
	DefaultPlanTimeoutSecs    = 300
	DefaultInputTimeoutSecs   = 300
	DefaultCheckTimeoutSecs   = 30
	DefaultInfraMaxFailures   = 5
	DefaultSessionTimeoutSecs = 0 // unbounded
	DefaultReviewTimeoutSecs  = 0 // unbounded
)

// Config holds the resolved tc settings.
type Config struct {
	// TickIntervalMS is the engine reconciliation cadence.
	TickIntervalMS int `yaml:"tick_interval_ms" mapstructure:"tick_interval_ms"`

	// MaxRetries caps automatic retries per task, clamped to [0, 1].
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// EventBuffer is the per-subscriber bus buffer size.
	EventBuffer int `yaml:"event_buffer" mapstructure:"event_buffer"`

	// AgentBin is the Agent CLI executable.
	AgentBin string `yaml:"agent_bin" mapstructure:"agent_bin"`

	// DBDriver selects the repository driver: sqlite (default) or postgres.
	DBDriver string `yaml:"db_driver" mapstructure:"db_driver"`
	// DBDSN overrides the connection string; empty means the project's
	// .tc/tc.db for sqlite.
	DBDSN string `yaml:"db_dsn" mapstructure:"db_dsn"`

	// SessionTimeoutSecs / ReviewTimeoutSecs bound a session's wall clock
	// per task kind when the task itself sets no limit. 0 means unbounded.
	SessionTimeoutSecs int `yaml:"session_timeout_secs" mapstructure:"session_timeout_secs"`
	ReviewTimeoutSecs  int `yaml:"review_timeout_secs" mapstructure:"review_timeout_secs"`

	// KillGraceSecs is the SIGTERM to SIGKILL escalation window.
	KillGraceSecs int `yaml:"kill_grace_secs" mapstructure:"kill_grace_secs"`

	// PlanTimeoutSecs bounds one Agent planning invocation.
	PlanTimeoutSecs int `yaml:"plan_timeout_secs" mapstructure:"plan_timeout_secs"`

	// InputTimeoutSecs bounds a blocked request_human_input call.
	InputTimeoutSecs int `yaml:"input_timeout_secs" mapstructure:"input_timeout_secs"`

	// CheckTimeoutSecs bounds one bootstrap check command.
	CheckTimeoutSecs int `yaml:"check_timeout_secs" mapstructure:"check_timeout_secs"`

	// InfraMaxFailures is how many consecutive infrastructure failures the
	// engine tolerates before marking the project failed.
	InfraMaxFailures int `yaml:"infra_max_failures" mapstructure:"infra_max_failures"`
}

// TickInterval returns the tick cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// KillGrace returns the kill escalation window as a duration.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.KillGraceSecs) * time.Second
}

// TimeoutFor returns the wall-clock limit for a task-kind string, 0 when
// unbounded.
func (c *Config) TimeoutFor(kind string) time.Duration {
	secs := c.SessionTimeoutSecs
	if kind == "review" {
		secs = c.ReviewTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TickIntervalMS:     DefaultTickIntervalMS,
		MaxRetries:         DefaultMaxRetries,
		EventBuffer:        DefaultEventBuffer,
		AgentBin:           DefaultAgentBin,
		DBDriver:           DefaultDBDriver,
		SessionTimeoutSecs: DefaultSessionTimeoutSecs,
		ReviewTimeoutSecs:  DefaultReviewTimeoutSecs,
		KillGraceSecs:      DefaultKillGraceSecs,
		PlanTimeoutSecs:    DefaultPlanTimeoutSecs,
		InputTimeoutSecs:   DefaultInputTimeoutSecs,
		CheckTimeoutSecs:   DefaultCheckTimeoutSecs,
		InfraMaxFailures:   DefaultInfraMaxFailures,
	}
}

// Load resolves configuration for a project directory. A missing
// .tc/config.yaml is fine; a malformed one is a validation error.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TC")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("tick_interval_ms", def.TickIntervalMS)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("event_buffer", def.EventBuffer)
	v.SetDefault("agent_bin", def.AgentBin)
	v.SetDefault("db_driver", def.DBDriver)
	v.SetDefault("db_dsn", "")
	v.SetDefault("session_timeout_secs", def.SessionTimeoutSecs)
	v.SetDefault("review_timeout_secs", def.ReviewTimeoutSecs)
	v.SetDefault("kill_grace_secs", def.KillGraceSecs)
	v.SetDefault("plan_timeout_secs", def.PlanTimeoutSecs)
	v.SetDefault("input_timeout_secs", def.InputTimeoutSecs)
	v.SetDefault("check_timeout_secs", def.CheckTimeoutSecs)
	v.SetDefault("infra_max_failures", def.InfraMaxFailures)

	if projectDir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(projectDir, ".tc"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, tcerrors.ErrConfigInvalid("config.yaml", err.Error())
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, tcerrors.ErrConfigInvalid("config.yaml", err.Error())
	}

	cfg.clamp()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clamp forces out-of-range values back into their documented bounds.
func (c *Config) clamp() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 1 {
		c.MaxRetries = 1
	}
	if c.TickIntervalMS < 100 {
		c.TickIntervalMS = 100
	}
	if c.EventBuffer < 1 {
		c.EventBuffer = 1
	}
	if c.InfraMaxFailures < 1 {
		c.InfraMaxFailures = 1
	}
}

func (c *Config) validate() error {
	if c.AgentBin == "" {
		return tcerrors.ErrConfigInvalid("agent_bin", "must not be empty")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return tcerrors.ErrConfigInvalid("db_driver", fmt.Sprintf("unknown driver %q", c.DBDriver))
	}
	if c.DBDriver == "postgres" && c.DBDSN == "" {
		return tcerrors.ErrConfigInvalid("db_dsn", "required when db_driver is postgres")
	}
	return nil
}
