package github

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lucasnoah/agentflow/internal/state"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides issue-tracker operations through the gh CLI.
type Client struct {
	cmd  CmdRunner
	repo string // owner/name; empty means the current repo
}

// NewClient creates a tracker client. repo may be empty to target the
// repository gh resolves from the working directory.
func NewClient(cmd CmdRunner, repo string) *Client {
	return &Client{cmd: cmd, repo: repo}
}

// Issue represents a tracker issue.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
}

// Label represents an issue label.
type Label struct {
	Name string `json:"name"`
}

// ValidateIssueRef checks that an issue reference is safe to hand to gh.
func ValidateIssueRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("issue reference is empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid issue reference %q: must not start with -", ref)
	}
	return nil
}

// repoArgs returns the --repo arguments when a repo is configured.
func (c *Client) repoArgs() []string {
	if c.repo == "" {
		return nil
	}
	return []string{"--repo", c.repo}
}

// GetIssue fetches an issue by reference (number or URL).
func (c *Client) GetIssue(ref string) (*Issue, error) {
	if err := ValidateIssueRef(ref); err != nil {
		return nil, err
	}

	args := append([]string{"issue", "view", ref, "--json", "number,title,body,state,labels"}, c.repoArgs()...)
	out, err := c.cmd.Run(args...)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", ref, err)
	}

	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}
	return &issue, nil
}

// Comment posts a comment on an issue.
func (c *Client) Comment(ref string, body string) error {
	if err := ValidateIssueRef(ref); err != nil {
		return err
	}

	args := append([]string{"issue", "comment", ref, "--body", body}, c.repoArgs()...)
	if _, err := c.cmd.Run(args...); err != nil {
		return fmt.Errorf("comment on issue %s: %w", ref, err)
	}
	return nil
}

// CacheIssue fetches an issue and writes its snapshot to path.
func (c *Client) CacheIssue(ref string, path string) (*Issue, error) {
	issue, err := c.GetIssue(ref)
	if err != nil {
		return nil, err
	}
	if err := state.WriteJSON(path, issue); err != nil {
		return nil, fmt.Errorf("cache issue: %w", err)
	}
	return issue, nil
}

// LoadCachedIssue reads a previously cached issue snapshot.
func LoadCachedIssue(path string) (*Issue, error) {
	var issue Issue
	if err := state.ReadJSON(path, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}
