// Package batch creates a dependency-ordered graph of work items through a
// pluggable provider. Parents and explicit dependencies are created before
// their dependents, every node is attempted exactly once even under cycles,
// and one failing node never aborts the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Node is one requested work item. LocalID names it within the batch;
// Parent and DependsOn reference other nodes' LocalIDs.
type Node struct {
	LocalID   string   `yaml:"id"`
	Type      string   `yaml:"type,omitempty"`
	Title     string   `yaml:"title"`
	Body      string   `yaml:"body,omitempty"`
	Labels    []string `yaml:"labels,omitempty"`
	Assignees []string `yaml:"assignees,omitempty"`
	Parent    string   `yaml:"parent,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty"`
}

// Request is one batch to create.
type Request struct {
	Repository string `yaml:"repository"`
	Issues     []Node `yaml:"issues"`
}

// Created records one successfully created item.
type Created struct {
	LocalID              string
	ExternalNumber       int
	URL                  string
	ParentExternalNumber *int
}

// ItemError records one failed item.
type ItemError struct {
	LocalID string
	Message string
}

// Result is the outcome of a batch. Success is true exactly when Errors is
// empty; an empty batch is trivially successful.
type Result struct {
	Success bool
	Created []Created
	Errors  []ItemError
}

// Provider performs the actual creation and linking against an external
// tracker.
type Provider interface {
	// CreateIssue creates one item and returns its external number and URL.
	// parent is nil when the node has no successfully created parent.
	CreateIssue(ctx context.Context, repo string, node Node, parent *int) (int, string, error)
	// LinkDependency records that `from` depends on `to`. Both are external
	// numbers of successfully created items.
	LinkDependency(ctx context.Context, repo string, from, to int) error
	// SummarizeChildren is called once per created parent after all of its
	// children have been processed.
	SummarizeChildren(ctx context.Context, repo string, parent int, children []int) error
}

// Creator runs batches against a provider.
type Creator struct {
	provider Provider
	logger   *slog.Logger
}

// NewCreator creates a Creator. logger may be nil.
func NewCreator(p Provider, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{provider: p, logger: logger}
}

// run tracks one batch execution.
type run struct {
	ctx     context.Context
	repo    string
	nodes   map[string]Node
	visited map[string]bool // attempted, success or failure
	inStack map[string]bool // on the current DFS path
	numbers map[string]int  // LocalID -> external number for successes
	result  *Result
	c       *Creator
}

// Create processes the batch in dependency order. Duplicate LocalIDs fail
// those nodes up front; references to unknown LocalIDs are ignored at link
// time.
func (c *Creator) Create(ctx context.Context, req Request) Result {
	result := Result{}
	r := &run{
		ctx:     ctx,
		repo:    req.Repository,
		nodes:   make(map[string]Node, len(req.Issues)),
		visited: make(map[string]bool),
		inStack: make(map[string]bool),
		numbers: make(map[string]int),
		result:  &result,
		c:       c,
	}

	order := make([]string, 0, len(req.Issues))
	for _, n := range req.Issues {
		if _, dup := r.nodes[n.LocalID]; dup {
			result.Errors = append(result.Errors, ItemError{
				LocalID: n.LocalID,
				Message: fmt.Sprintf("duplicate local id %q", n.LocalID),
			})
			continue
		}
		r.nodes[n.LocalID] = n
		order = append(order, n.LocalID)
	}

	// Deterministic traversal regardless of input order.
	sort.Strings(order)
	for _, id := range order {
		r.visit(id)
	}

	r.summarizeParents(order)

	result.Success = len(result.Errors) == 0
	return result
}

// visit creates id's prerequisites, then id itself. A node already on the
// DFS path marks a cycle; the edge is skipped so traversal terminates and
// every node is still attempted exactly once.
func (r *run) visit(id string) {
	if r.visited[id] || r.inStack[id] {
		return
	}
	node, ok := r.nodes[id]
	if !ok {
		return // unknown reference
	}
	r.inStack[id] = true

	if node.Parent != "" {
		r.visit(node.Parent)
	}
	for _, dep := range node.DependsOn {
		r.visit(dep)
	}

	r.inStack[id] = false
	r.visited[id] = true
	r.create(node)
}

// create attempts one node and records the result. Failures are isolated to
// the node; links are made only between two successes.
func (r *run) create(node Node) {
	var parent *int
	if node.Parent != "" {
		if num, ok := r.numbers[node.Parent]; ok {
			parent = &num
		}
	}

	number, url, err := r.c.provider.CreateIssue(r.ctx, r.repo, node, parent)
	if err != nil {
		r.c.logger.Warn("batch item failed", "local_id", node.LocalID, "error", err)
		r.result.Errors = append(r.result.Errors, ItemError{LocalID: node.LocalID, Message: err.Error()})
		return
	}

	r.numbers[node.LocalID] = number
	r.result.Created = append(r.result.Created, Created{
		LocalID:              node.LocalID,
		ExternalNumber:       number,
		URL:                  url,
		ParentExternalNumber: parent,
	})

	for _, dep := range node.DependsOn {
		depNum, ok := r.numbers[dep]
		if !ok {
			continue // failed or unknown dependency, no link
		}
		if err := r.c.provider.LinkDependency(r.ctx, r.repo, number, depNum); err != nil {
			r.c.logger.Warn("dependency link failed",
				"local_id", node.LocalID, "dep", dep, "error", err)
		}
	}
}

// summarizeParents fires the one-time summarize hook for every created
// parent with at least one child, after the whole batch is processed.
func (r *run) summarizeParents(order []string) {
	children := make(map[string][]int)
	for _, id := range order {
		node := r.nodes[id]
		if node.Parent == "" {
			continue
		}
		if num, ok := r.numbers[id]; ok {
			children[node.Parent] = append(children[node.Parent], num)
		}
	}

	parents := make([]string, 0, len(children))
	for p := range children {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	for _, p := range parents {
		parentNum, ok := r.numbers[p]
		if !ok {
			continue
		}
		if err := r.c.provider.SummarizeChildren(r.ctx, r.repo, parentNum, children[p]); err != nil {
			r.c.logger.Warn("children summary failed", "parent", p, "error", err)
		}
	}
}
