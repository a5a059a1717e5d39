package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lucasnoah/agentflow/internal/config"
)

// Phase is one step of a pipeline. Command is the argv prefix the invoker
// runs; Flags are appended after the issue ref and run id on every
// invocation of this phase.
type Phase struct {
	Name     string
	Agent    string
	Title    string
	Emoji    string
	Progress string
	Summary  string
	// Fatal phases abort the pipeline on non-zero exit. A non-fatal phase
	// records a warning and the pipeline continues.
	Fatal   bool
	Command []string
	Flags   []string
}

// Definition is a named, ordered sequence of phases.
type Definition struct {
	Name   string
	Title  string
	Phases []Phase
}

// Workflow renders the arrow form of the phase sequence, e.g.
// "Plan → Build → Test".
func (d Definition) Workflow() string {
	titles := make([]string, len(d.Phases))
	for i, p := range d.Phases {
		titles[i] = p.Title
	}
	return strings.Join(titles, " → ")
}

// HasPhase reports whether the definition contains a phase by name.
func (d Definition) HasPhase(name string) bool {
	for _, p := range d.Phases {
		if p.Name == name {
			return true
		}
	}
	return false
}

// phase prototypes; Compose stamps commands and per-variant overrides on
// copies of these.
var (
	planPhase = Phase{
		Name:     "plan",
		Agent:    "planner",
		Title:    "Plan",
		Emoji:    "📋",
		Progress: "Planning...",
		Summary:  "Planning",
		Fatal:    true,
	}
	buildPhase = Phase{
		Name:     "build",
		Agent:    "implementor",
		Title:    "Build",
		Emoji:    "🔨",
		Progress: "Building implementation...",
		Summary:  "Implementation",
		Fatal:    true,
	}
	testPhase = Phase{
		Name:     "test",
		Agent:    "tester",
		Title:    "Test",
		Emoji:    "🧪",
		Progress: "Running tests...",
		Summary:  "Testing",
		Fatal:    true,
	}
	reviewPhase = Phase{
		Name:     "review",
		Agent:    "reviewer",
		Title:    "Review",
		Emoji:    "🔍",
		Progress: "Reviewing implementation...",
		Summary:  "Code Review",
		Fatal:    true,
	}
	documentPhase = Phase{
		Name:     "document",
		Agent:    "documenter",
		Title:    "Document",
		Emoji:    "📝",
		Progress: "Generating documentation...",
		Summary:  "Documentation",
		Fatal:    true,
	}
	patchPhase = Phase{
		Name:     "patch",
		Agent:    "patcher",
		Title:    "Patch",
		Emoji:    "🩹",
		Progress: "Applying patch...",
		Summary:  "Patching",
		Fatal:    true,
	}
)

// variants is the static pipeline catalog. The sdlc test phase is the one
// non-fatal phase: its failures warn and the pipeline continues. The sdlc
// variant always passes --skip-e2e to the test phase.
var variants = []Definition{
	{
		Name:   "plan-build",
		Title:  "Plan+Build Workflow",
		Phases: []Phase{planPhase, buildPhase},
	},
	{
		Name:   "plan-build-test",
		Title:  "Plan+Build+Test Workflow",
		Phases: []Phase{planPhase, buildPhase, testPhase},
	},
	{
		Name:   "plan-build-review",
		Title:  "Plan+Build+Review Workflow",
		Phases: []Phase{planPhase, buildPhase, reviewPhase},
	},
	{
		Name:   "plan-build-test-review",
		Title:  "Plan+Build+Test+Review Workflow",
		Phases: []Phase{planPhase, buildPhase, testPhase, reviewPhase},
	},
	{
		Name:   "plan-build-document",
		Title:  "Plan+Build+Document Workflow",
		Phases: []Phase{planPhase, buildPhase, documentPhase},
	},
	{
		Name:  "sdlc",
		Title: "Complete SDLC Workflow",
		Phases: []Phase{
			planPhase,
			buildPhase,
			func() Phase {
				p := testPhase
				p.Fatal = false
				p.Flags = []string{"--skip-e2e"}
				return p
			}(),
			reviewPhase,
			documentPhase,
		},
	},
	{
		Name:   "patch",
		Title:  "Patch Workflow",
		Phases: []Phase{patchPhase},
	},
}

// VariantNames returns the catalog names in sorted order.
func VariantNames() []string {
	names := make([]string, len(variants))
	for i, d := range variants {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

// Compose returns the named pipeline with phase commands resolved from
// configuration. Phases without a configured command default to the
// conventional agent script path.
func Compose(name string, cfg *config.Config) (Definition, error) {
	var def Definition
	found := false
	for _, d := range variants {
		if d.Name == name {
			def = d
			found = true
			break
		}
	}
	if !found {
		return Definition{}, fmt.Errorf("unknown pipeline %q", name)
	}

	// Deep-copy phases so config never mutates the catalog.
	phases := make([]Phase, len(def.Phases))
	copy(phases, def.Phases)
	for i := range phases {
		phases[i].Command = phaseCommand(phases[i].Name, cfg)
		phases[i].Flags = append([]string(nil), phases[i].Flags...)
	}
	def.Phases = phases
	return def, nil
}

func phaseCommand(phase string, cfg *config.Config) []string {
	if cfg != nil {
		if pc, ok := cfg.Phases[phase]; ok && len(pc.Command) > 0 {
			return append([]string(nil), pc.Command...)
		}
	}
	return []string{"uv", "run", fmt.Sprintf("adws/adw_%s_iso.py", phase)}
}

// Options carries the per-run flags a variant may accept.
type Options struct {
	SkipE2E        bool
	SkipResolution bool
}

// ValidateOptions rejects flags that have no meaning for the given
// pipeline: --skip-e2e needs a test phase and --skip-resolution a review
// phase.
func ValidateOptions(def Definition, opts Options) error {
	if opts.SkipE2E && !def.HasPhase("test") {
		return fmt.Errorf("pipeline %s has no test phase: --skip-e2e does not apply", def.Name)
	}
	if opts.SkipResolution && !def.HasPhase("review") {
		return fmt.Errorf("pipeline %s has no review phase: --skip-resolution does not apply", def.Name)
	}
	return nil
}

// PhaseFlags resolves the flags for one phase invocation: the variant's
// forced flags plus the run options that target this phase. Duplicates are
// collapsed so sdlc with --skip-e2e still passes the flag once.
func PhaseFlags(p Phase, opts Options) []string {
	flags := append([]string(nil), p.Flags...)
	has := func(f string) bool {
		for _, v := range flags {
			if v == f {
				return true
			}
		}
		return false
	}
	if opts.SkipE2E && p.Name == "test" && !has("--skip-e2e") {
		flags = append(flags, "--skip-e2e")
	}
	if opts.SkipResolution && p.Name == "review" && !has("--skip-resolution") {
		flags = append(flags, "--skip-resolution")
	}
	return flags
}
