package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSender struct {
	refs   []string
	bodies []string
	err    error
}

func (f *fakeSender) Comment(ref, body string) error {
	f.refs = append(f.refs, ref)
	f.bodies = append(f.bodies, body)
	return f.err
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func newTestNotifier(sender Sender) (*Notifier, *bytes.Buffer) {
	out := &bytes.Buffer{}
	n := New(sender, out)
	n.SetNow(fixedClock)
	return n, out
}

func TestPipelineStarted(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PipelineStarted(Start{
		IssueRef:  "42",
		RunID:     "abc12345",
		Title:     "Complete SDLC Workflow",
		Workflow:  "Plan → Build → Test → Review → Document",
		HasTest:   true,
		HasReview: true,
		SkipE2E:   true,
		First:     Step{Emoji: "📋", Index: 1, Total: 5, Progress: "Planning..."},
	})

	if len(sender.bodies) != 1 {
		t.Fatalf("posted %d comments, want 1", len(sender.bodies))
	}
	if sender.refs[0] != "42" {
		t.Errorf("posted to %q, want 42", sender.refs[0])
	}
	body := sender.bodies[0]
	for _, want := range []string{
		"🤖 **Complete SDLC Workflow Started**",
		"**Timestamp:** 2026-03-14 09:26:53",
		"**Run ID:** `abc12345`",
		"**Workflow:** Plan → Build → Test → Review → Document",
		"**E2E Tests:** Skipped",
		"**Auto-Resolution:** Enabled",
		"📋 Phase 1/5: Planning...",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("start message missing %q:\n%s", want, body)
		}
	}
}

func TestPipelineStartedOmitsIrrelevantFlagLines(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PipelineStarted(Start{
		IssueRef: "42",
		RunID:    "abc12345",
		Title:    "Plan+Build Workflow",
		Workflow: "Plan → Build",
		First:    Step{Emoji: "📋", Index: 1, Total: 2, Progress: "Planning..."},
	})

	body := sender.bodies[0]
	if strings.Contains(body, "E2E Tests") || strings.Contains(body, "Auto-Resolution") {
		t.Errorf("plan-build start should not mention flags:\n%s", body)
	}
}

func TestPhaseSucceededWithNext(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PhaseSucceeded(PhaseDone{
		IssueRef: "42",
		RunID:    "abc12345",
		Title:    "Plan",
		Next:     &Step{Emoji: "🔨", Index: 2, Total: 2, Progress: "Building implementation..."},
	})

	body := sender.bodies[0]
	if !strings.Contains(body, "✅ **Plan Phase Completed** (2026-03-14 09:26:53)") {
		t.Errorf("missing completion line:\n%s", body)
	}
	if !strings.Contains(body, "🔨 Phase 2/2: Building implementation...") {
		t.Errorf("missing next-phase teaser:\n%s", body)
	}
}

func TestPhaseSucceededLastPhaseHasNoTeaser(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PhaseSucceeded(PhaseDone{IssueRef: "42", RunID: "abc12345", Title: "Build"})

	if strings.Contains(sender.bodies[0], "Phase ") {
		t.Errorf("final phase success should have no teaser:\n%s", sender.bodies[0])
	}
}

func TestPhaseWarned(t *testing.T) {
	sender := &fakeSender{}
	n, out := newTestNotifier(sender)

	n.PhaseWarned(PhaseWarning{
		IssueRef: "42",
		RunID:    "abc12345",
		Title:    "Test",
		Summary:  "Testing",
		Index:    3,
		Total:    5,
		LogPath:  ".agentflow/runs/abc12345/tester/output.jsonl",
		Next:     &Step{Emoji: "🔍", Index: 4, Total: 5, Progress: "Reviewing implementation..."},
	})

	body := sender.bodies[0]
	for _, want := range []string{
		"⚠️ **Test Phase Had Failures**",
		"**Phase:** 3/5 - Testing",
		"the pipeline is continuing",
		"Check `.agentflow/runs/abc12345/tester/output.jsonl` for details",
		"🔍 Phase 4/5: Reviewing implementation...",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("warning missing %q:\n%s", want, body)
		}
	}
	// Warnings are mirrored to the progress writer.
	if !strings.Contains(out.String(), "Test Phase Had Failures") {
		t.Error("warning not written to progress output")
	}
}

func TestPhaseFailed(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PhaseFailed(PhaseFailure{
		IssueRef: "42",
		RunID:    "abc12345",
		Title:    "Build",
		Summary:  "Implementation",
		Index:    2,
		Total:    2,
		ExitCode: 3,
		LogPath:  ".agentflow/runs/abc12345/implementor/output.jsonl",
		Retry:    "cd trees/abc12345 && uv run adws/adw_build_iso.py 42 abc12345",
	})

	body := sender.bodies[0]
	for _, want := range []string{
		"❌ **Build Phase Failed**",
		"**Phase:** 2/2 - Implementation",
		"**Return Code:** 3",
		"The build phase failed to complete successfully",
		"Check `.agentflow/runs/abc12345/implementor/output.jsonl` for details",
		"Manually retry: `cd trees/abc12345 && uv run adws/adw_build_iso.py 42 abc12345`",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("failure missing %q:\n%s", want, body)
		}
	}
}

func TestPipelineCompleted(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender)

	n.PipelineCompleted(Completion{
		IssueRef: "42",
		RunID:    "abc12345",
		Title:    "Complete SDLC Workflow",
		Phases: []PhaseOutcome{
			{Summary: "Planning"},
			{Summary: "Implementation"},
			{Summary: "Testing", Warned: true},
			{Summary: "Code Review"},
			{Summary: "Documentation"},
		},
		Worktree: "trees/abc12345",
	})

	body := sender.bodies[0]
	for _, want := range []string{
		"✅ **Complete SDLC Workflow Finished**",
		"- ✅ Planning",
		"- ⚠️ Testing had failures (see warnings above)",
		"- ✅ Documentation",
		"**Worktree:** `trees/abc12345`",
		"**Cleanup:** `agentflow purge abc12345`",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q:\n%s", want, body)
		}
	}
}

func TestSenderErrorIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("gh: network unreachable")}
	n, out := newTestNotifier(sender)

	n.PhaseSucceeded(PhaseDone{IssueRef: "42", RunID: "abc12345", Title: "Plan"})

	if !strings.Contains(out.String(), "WARNING: failed to post comment to issue 42") {
		t.Errorf("sender failure not logged: %q", out.String())
	}
}

func TestNilSenderPostsNothing(t *testing.T) {
	n, out := newTestNotifier(nil)
	n.PipelineStarted(Start{IssueRef: "42", RunID: "abc12345", Title: "Plan+Build Workflow"})
	if strings.Contains(out.String(), "WARNING") {
		t.Errorf("nil sender should be silent: %q", out.String())
	}
}
