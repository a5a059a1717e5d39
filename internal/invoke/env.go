package invoke

import (
	"fmt"
	"os"
	"strings"
)

// passthrough lists the parent environment variables a phase child is
// allowed to see. Everything else is dropped so a stray secret in the
// orchestrator's environment never leaks into agent processes.
var passthrough = []string{
	"ANTHROPIC_API_KEY",
	"CLAUDE_CODE_OAUTH_TOKEN",
	"GH_TOKEN",
	"GITHUB_TOKEN",
	"HOME",
	"LANG",
	"LC_ALL",
	"PATH",
	"SHELL",
	"TERM",
	"TMPDIR",
	"USER",
}

// SafeEnv builds a child environment from the parent's, keeping only the
// whitelisted variables plus any extra names from configuration, then adds
// the run's identity, port assignments, and the state directory. Phase
// scripts run inside the worktree, so AGENTFLOW_STATE_DIR is how nested
// agentflow invocations find their way back to the orchestrator's state.
func SafeEnv(runID, stateDir string, backendPort, frontendPort int, extra []string) []string {
	allowed := make(map[string]bool, len(passthrough)+len(extra))
	for _, name := range passthrough {
		allowed[name] = true
	}
	for _, name := range extra {
		allowed[name] = true
	}

	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if ok && allowed[name] {
			env = append(env, kv)
		}
	}

	env = append(env,
		"AGENTFLOW_RUN_ID="+runID,
		fmt.Sprintf("AGENTFLOW_BACKEND_PORT=%d", backendPort),
		fmt.Sprintf("AGENTFLOW_FRONTEND_PORT=%d", frontendPort),
	)
	if stateDir != "" {
		env = append(env, "AGENTFLOW_STATE_DIR="+stateDir)
	}
	return env
}
