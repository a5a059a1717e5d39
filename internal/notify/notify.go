package notify

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Sender posts one comment to an issue. Implemented by github.Client.
type Sender interface {
	Comment(ref string, body string) error
}

// Notifier renders pipeline transition messages and posts them best-effort.
// A failed post is logged to the progress writer and never propagated; a nil
// sender disables posting entirely.
type Notifier struct {
	sender Sender
	out    io.Writer
	now    func() time.Time
}

// New creates a Notifier. out may be nil for silent operation.
func New(sender Sender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, out: out, now: time.Now}
}

// SetNow overrides the clock (for testing).
func (n *Notifier) SetNow(fn func() time.Time) {
	n.now = fn
}

func (n *Notifier) timestamp() string {
	return n.now().Format("2006-01-02 15:04:05")
}

func (n *Notifier) logf(format string, args ...interface{}) {
	if n.out != nil {
		fmt.Fprintf(n.out, format+"\n", args...)
	}
}

// post sends a comment, swallowing any failure.
func (n *Notifier) post(issueRef, body string) {
	if n.sender == nil {
		return
	}
	if err := n.sender.Comment(issueRef, body); err != nil {
		n.logf("WARNING: failed to post comment to issue %s: %v", issueRef, err)
	}
}

// Step identifies one phase position for "Phase k/N: ..." teaser lines.
type Step struct {
	Emoji    string
	Index    int // 1-based
	Total    int
	Progress string
}

func (s Step) teaser() string {
	return fmt.Sprintf("%s Phase %d/%d: %s", s.Emoji, s.Index, s.Total, s.Progress)
}

// Start describes a pipeline start notification. The E2E and resolution
// lines only appear for pipelines that contain the phases those flags steer.
type Start struct {
	IssueRef       string
	RunID          string
	Title          string
	Workflow       string
	HasTest        bool
	HasReview      bool
	SkipE2E        bool
	SkipResolution bool
	First          Step
}

// PipelineStarted announces a new run on the issue.
func (n *Notifier) PipelineStarted(s Start) {
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 **%s Started**\n\n", s.Title)
	fmt.Fprintf(&b, "**Timestamp:** %s\n", n.timestamp())
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", s.RunID)
	fmt.Fprintf(&b, "**Workflow:** %s\n", s.Workflow)
	if s.HasTest {
		fmt.Fprintf(&b, "**E2E Tests:** %s\n", includedOrSkipped(s.SkipE2E))
	}
	if s.HasReview {
		fmt.Fprintf(&b, "**Auto-Resolution:** %s\n", enabledOrDisabled(s.SkipResolution))
	}
	fmt.Fprintf(&b, "\n%s", s.First.teaser())
	n.post(s.IssueRef, b.String())
}

// PhaseDone describes a successful phase transition. Next is nil for the
// final phase, whose success is announced by the completion summary instead.
type PhaseDone struct {
	IssueRef string
	RunID    string
	Title    string
	Next     *Step
}

// PhaseSucceeded announces a phase completion and the next phase.
func (n *Notifier) PhaseSucceeded(d PhaseDone) {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **%s Phase Completed** (%s)", d.Title, n.timestamp())
	if d.Next != nil {
		fmt.Fprintf(&b, "\n\n%s", d.Next.teaser())
	}
	n.post(d.IssueRef, b.String())
}

// PhaseWarning describes a non-fatal phase failure.
type PhaseWarning struct {
	IssueRef string
	RunID    string
	Title    string
	Summary  string
	Index    int
	Total    int
	LogPath  string
	Next     *Step
}

// PhaseWarned announces a non-fatal failure and that the pipeline continues.
func (n *Notifier) PhaseWarned(w PhaseWarning) {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ **%s Phase Had Failures** (%s)\n\n", w.Title, n.timestamp())
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", w.RunID)
	fmt.Fprintf(&b, "**Phase:** %d/%d - %s\n\n", w.Index, w.Total, w.Summary)
	fmt.Fprintf(&b, "**Warning:** The %s phase reported failures, but the pipeline is continuing.\n\n", strings.ToLower(w.Title))
	fmt.Fprintf(&b, "**Logs:** Check `%s` for details.", w.LogPath)
	if w.Next != nil {
		fmt.Fprintf(&b, "\n\n%s", w.Next.teaser())
	}
	body := b.String()
	n.logf("%s", body)
	n.post(w.IssueRef, body)
}

// PhaseFailure describes a fatal phase failure.
type PhaseFailure struct {
	IssueRef string
	RunID    string
	Title    string
	Summary  string
	Index    int
	Total    int
	ExitCode int
	LogPath  string
	Retry    string
}

// PhaseFailed announces a fatal failure with recovery instructions.
func (n *Notifier) PhaseFailed(f PhaseFailure) {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ **%s Phase Failed**\n\n", f.Title)
	fmt.Fprintf(&b, "**Timestamp:** %s\n", n.timestamp())
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", f.RunID)
	fmt.Fprintf(&b, "**Phase:** %d/%d - %s\n", f.Index, f.Total, f.Summary)
	fmt.Fprintf(&b, "**Return Code:** %d\n\n", f.ExitCode)
	fmt.Fprintf(&b, "**Error:** The %s phase failed to complete successfully.\n\n", strings.ToLower(f.Title))
	fmt.Fprintf(&b, "**Logs:** Check `%s` for details.\n\n", f.LogPath)
	b.WriteString("**Next Steps:**\n")
	b.WriteString("- Review the error logs for detailed failure information\n")
	b.WriteString("- Check if previous phases completed correctly\n")
	fmt.Fprintf(&b, "- Manually retry: `%s`", f.Retry)
	body := b.String()
	n.logf("%s", body)
	n.post(f.IssueRef, body)
}

// PhaseOutcome is one checklist line in the completion summary.
type PhaseOutcome struct {
	Summary string
	Warned  bool
}

// Completion describes the final summary notification.
type Completion struct {
	IssueRef string
	RunID    string
	Title    string
	Phases   []PhaseOutcome
	Worktree string
}

// PipelineCompleted posts the final per-phase checklist.
func (n *Notifier) PipelineCompleted(c Completion) {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **%s Finished**\n\n", c.Title)
	fmt.Fprintf(&b, "**Timestamp:** %s\n", n.timestamp())
	fmt.Fprintf(&b, "**Run ID:** `%s`\n", c.RunID)
	b.WriteString("**Status:** All phases completed! 🎉\n\n")
	b.WriteString("**Phases Completed:**\n")
	for _, p := range c.Phases {
		if p.Warned {
			fmt.Fprintf(&b, "- ⚠️ %s had failures (see warnings above)\n", p.Summary)
		} else {
			fmt.Fprintf(&b, "- ✅ %s\n", p.Summary)
		}
	}
	fmt.Fprintf(&b, "\n**Worktree:** `%s`\n", c.Worktree)
	fmt.Fprintf(&b, "**Cleanup:** `agentflow purge %s`", c.RunID)
	n.post(c.IssueRef, b.String())
}

func includedOrSkipped(skip bool) string {
	if skip {
		return "Skipped"
	}
	return "Included"
}

func enabledOrDisabled(skip bool) string {
	if skip {
		return "Disabled"
	}
	return "Enabled"
}
