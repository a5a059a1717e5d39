package config

// Config is the top-level configuration parsed from agentflow YAML.
type Config struct {
	// BaseDir holds run state, cached issues, and phase output logs.
	BaseDir string `yaml:"base_dir"`
	// TreesDir holds the per-run isolated worktrees.
	TreesDir string `yaml:"trees_dir"`

	Tracker       Tracker             `yaml:"tracker"`
	Notifications Notifications       `yaml:"notifications"`
	Database      Database            `yaml:"database"`
	Ports         Ports               `yaml:"ports"`
	Phases        map[string]PhaseCfg `yaml:"phases"`
	Env           Env                 `yaml:"env"`
}

// Tracker identifies where phase-transition notifications go.
type Tracker struct {
	// Repo is the owner/name passed to gh; empty means the current repo.
	Repo string `yaml:"repo"`
}

// Notifications controls tracker comment delivery.
type Notifications struct {
	Enabled *bool `yaml:"enabled"`
}

// Database selects the event-log backend. Path opens a local SQLite file;
// DSN opens PostgreSQL instead. Setting both is a configuration error.
type Database struct {
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

// Ports configures the deterministic per-run port derivation.
type Ports struct {
	BackendBase  int `yaml:"backend_base"`
	FrontendBase int `yaml:"frontend_base"`
	PoolSize     int `yaml:"pool_size"`
}

// PhaseCfg overrides how one phase is invoked.
type PhaseCfg struct {
	// Command is the argv prefix the issue ref, run id, and flags are
	// appended to.
	Command []string `yaml:"command"`
}

// Env configures the subprocess environment whitelist.
type Env struct {
	// Passthrough lists extra parent-environment variables forwarded to
	// phase processes on top of the built-in whitelist.
	Passthrough []string `yaml:"passthrough"`
}

// NotificationsEnabled reports whether tracker notifications are on.
// Defaults to true when the config does not say otherwise.
func (c *Config) NotificationsEnabled() bool {
	if c.Notifications.Enabled == nil {
		return true
	}
	return *c.Notifications.Enabled
}
