package batch

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// commandRunner executes an external command and returns its stdout. The
// seam exists so tests can avoid spawning processes.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GitHubProvider creates issues through the gh CLI. Dependencies and child
// summaries are recorded as issue comments.
type GitHubProvider struct {
	run commandRunner
}

// NewGitHubProvider creates a provider shelling out to gh.
func NewGitHubProvider() *GitHubProvider {
	return &GitHubProvider{run: runCommand}
}

// CreateIssue implements Provider. The issue number is parsed from the URL
// gh prints on success.
func (p *GitHubProvider) CreateIssue(ctx context.Context, repo string, node Node, parent *int) (int, string, error) {
	body := node.Body
	if parent != nil {
		if body != "" {
			body += "\n\n"
		}
		body += fmt.Sprintf("Parent: #%d", *parent)
	}

	args := []string{"issue", "create", "--repo", repo, "--title", node.Title, "--body", body}
	for _, label := range node.Labels {
		args = append(args, "--label", label)
	}
	for _, assignee := range node.Assignees {
		args = append(args, "--assignee", assignee)
	}

	url, err := p.run(ctx, "gh", args...)
	if err != nil {
		return 0, "", err
	}
	number, err := issueNumber(url)
	if err != nil {
		return 0, "", err
	}
	return number, url, nil
}

// LinkDependency implements Provider.
func (p *GitHubProvider) LinkDependency(ctx context.Context, repo string, from, to int) error {
	_, err := p.run(ctx, "gh", "issue", "comment", strconv.Itoa(from),
		"--repo", repo, "--body", fmt.Sprintf("Blocked by #%d", to))
	return err
}

// SummarizeChildren implements Provider.
func (p *GitHubProvider) SummarizeChildren(ctx context.Context, repo string, parent int, children []int) error {
	refs := make([]string, len(children))
	for i, c := range children {
		refs[i] = fmt.Sprintf("- #%d", c)
	}
	_, err := p.run(ctx, "gh", "issue", "comment", strconv.Itoa(parent),
		"--repo", repo, "--body", "Children:\n"+strings.Join(refs, "\n"))
	return err
}

// issueNumber extracts the trailing issue number from a gh issue URL.
func issueNumber(url string) (int, error) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return 0, fmt.Errorf("no issue number in %q", url)
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("no issue number in %q: %w", url, err)
	}
	return n, nil
}
