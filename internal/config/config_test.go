package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("AGENTFLOW_STATE_DIR", "")
	path := writeConfig(t, "tracker:\n  repo: myorg/myrepo\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != ".agentflow" {
		t.Errorf("BaseDir = %q, want .agentflow", cfg.BaseDir)
	}
	if cfg.TreesDir != "trees" {
		t.Errorf("TreesDir = %q, want trees", cfg.TreesDir)
	}
	if cfg.Ports.BackendBase != 9100 || cfg.Ports.FrontendBase != 9200 || cfg.Ports.PoolSize != 100 {
		t.Errorf("Ports = %+v, want defaults 9100/9200/100", cfg.Ports)
	}
	if cfg.Database.Path != filepath.Join(".agentflow", "agentflow.db") {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Tracker.Repo != "myorg/myrepo" {
		t.Errorf("Tracker.Repo = %q", cfg.Tracker.Repo)
	}
	if !cfg.NotificationsEnabled() {
		t.Error("notifications should default to enabled")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	t.Setenv("AGENTFLOW_STATE_DIR", "")
	path := writeConfig(t, `
base_dir: /var/lib/agentflow
trees_dir: /var/lib/agentflow/trees
notifications:
  enabled: false
ports:
  backend_base: 7100
  frontend_base: 7300
  pool_size: 50
database:
  dsn: postgres://agent@localhost/agentflow
phases:
  test:
    command: ["scripts/run-tests"]
env:
  passthrough: [CI, NODE_ENV]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != "/var/lib/agentflow" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.NotificationsEnabled() {
		t.Error("notifications should be disabled")
	}
	if cfg.Ports.BackendBase != 7100 || cfg.Ports.PoolSize != 50 {
		t.Errorf("Ports = %+v", cfg.Ports)
	}
	if cfg.Database.DSN == "" || cfg.Database.Path != "" {
		t.Errorf("Database = %+v, want dsn only", cfg.Database)
	}
	if len(cfg.Phases["test"].Command) != 1 || cfg.Phases["test"].Command[0] != "scripts/run-tests" {
		t.Errorf("Phases[test] = %+v", cfg.Phases["test"])
	}
	if len(cfg.Env.Passthrough) != 2 {
		t.Errorf("Env.Passthrough = %v", cfg.Env.Passthrough)
	}
}

func TestLoadStateDirEnvWins(t *testing.T) {
	t.Setenv("AGENTFLOW_STATE_DIR", "/work/.agentflow")
	path := writeConfig(t, "base_dir: .agentflow\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != "/work/.agentflow" {
		t.Errorf("BaseDir = %q, want the injected state dir", cfg.BaseDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "base_dir: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Default config failed validation: %v", errs)
	}
}

func TestValidatePortRanges(t *testing.T) {
	cfg := Default()
	cfg.Ports.BackendBase = 9100
	cfg.Ports.FrontendBase = 9150
	cfg.Ports.PoolSize = 100

	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected validation error for overlapping port ranges")
	}
	found := false
	for _, e := range errs {
		if e.Field == "ports" {
			found = true
		}
	}
	if !found {
		t.Errorf("errors missing ports overlap: %v", errs)
	}
}

func TestValidatePortBounds(t *testing.T) {
	cfg := Default()
	cfg.Ports.FrontendBase = 65500
	cfg.Ports.PoolSize = 100

	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected validation error for range past 65535")
	}
}

func TestValidateDatabaseExclusive(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "agentflow.db"
	cfg.Database.DSN = "postgres://localhost/agentflow"

	errs := Validate(cfg)
	if len(errs) != 1 || errs[0].Field != "database" {
		t.Errorf("Validate = %v, want single database error", errs)
	}
}

func TestValidateUnknownPhase(t *testing.T) {
	cfg := Default()
	cfg.Phases = map[string]PhaseCfg{
		"deploy": {Command: []string{"scripts/deploy"}},
	}

	errs := Validate(cfg)
	if len(errs) != 1 || errs[0].Field != "phases.deploy" {
		t.Errorf("Validate = %v, want unrecognized phase error", errs)
	}
}

func TestValidateEmptyPhaseCommand(t *testing.T) {
	cfg := Default()
	cfg.Phases = map[string]PhaseCfg{
		"plan": {},
	}

	errs := Validate(cfg)
	if len(errs) != 1 || errs[0].Field != "phases.plan.command" {
		t.Errorf("Validate = %v, want empty command error", errs)
	}
}

func TestValidateTrackerRepo(t *testing.T) {
	cfg := Default()
	cfg.Tracker.Repo = "not-a-repo"

	errs := Validate(cfg)
	if len(errs) != 1 || errs[0].Field != "tracker.repo" {
		t.Errorf("Validate = %v, want tracker.repo error", errs)
	}
}

func TestValidateEnvPassthrough(t *testing.T) {
	cfg := Default()
	cfg.Env.Passthrough = []string{"GOOD", "BAD=1", ""}

	errs := Validate(cfg)
	if len(errs) != 2 {
		t.Errorf("Validate = %v, want 2 passthrough errors", errs)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "ports.pool_size", Message: "0 is out of range (1-1000)"}
	want := "ports.pool_size: 0 is out of range (1-1000)"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
