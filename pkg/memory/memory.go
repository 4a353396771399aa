// Package memory implements knowledge storage and scored recall for agents.
// Storing persists a learning and announces it on the bus; recall composes
// retrieval strategies over the knowledge store, scores the merged candidates
// against the requesting context, and announces what was recalled.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"swarm/pkg/bus"
	"swarm/pkg/event"
	"swarm/pkg/knowledge"
)

// StoreError reports a failed knowledge store operation.
type StoreError struct {
	Type  knowledge.Type
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store knowledge (%s): %v", e.Type, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// RecallError reports a failed recall query.
type RecallError struct {
	Strategy string
	Cause    error
}

func (e *RecallError) Error() string {
	return fmt.Sprintf("recall (%s strategy): %v", e.Strategy, e.Cause)
}

func (e *RecallError) Unwrap() error { return e.Cause }

// Context describes what an agent is about to do, so recall can rank stored
// knowledge by relevance to it. All fields are optional; each non-empty field
// activates one retrieval strategy.
type Context struct {
	TaskType    string
	Tags        []string
	Description string
	Since       time.Time
	Until       time.Time
}

// ScoredEntry is a knowledge entry with its relevance score in [0, 1].
type ScoredEntry struct {
	knowledge.Entry
	Score float64
}

// Weights controls the relative contribution of each relevance dimension.
// The four weights should sum to 1.
type Weights struct {
	Recency  float64
	Tags     float64
	Text     float64
	TaskType float64
}

// DefaultWeights favors recent knowledge while still rewarding topical match.
var DefaultWeights = Weights{Recency: 0.35, Tags: 0.25, Text: 0.25, TaskType: 0.15}

// recencyHalfLife is the age at which the recency component halves.
const recencyHalfLife = 30 * 24 * time.Hour

// candidateLimit bounds how many rows each retrieval strategy contributes
// before scoring.
const candidateLimit = 50

// Service provides knowledge storage and recall for one agent.
type Service struct {
	store   *knowledge.Store
	bus     *bus.Bus
	logger  *slog.Logger
	source  string
	weights Weights

	nowFunc func() time.Time
}

// NewService creates a Service publishing events as the given source id.
// logger may be nil.
func NewService(store *knowledge.Store, b *bus.Bus, source string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		bus:     b,
		logger:  logger,
		source:  source,
		weights: DefaultWeights,
		nowFunc: time.Now,
	}
}

// SetWeights overrides the relevance weights. Intended for tuning; the
// defaults serve most deployments.
func (s *Service) SetWeights(w Weights) { s.weights = w }

// StoreKnowledge persists a learning and publishes a knowledge.stored event.
// On persistence failure no event is published and a *StoreError is returned.
func (s *Service) StoreKnowledge(ctx context.Context, e knowledge.Entry) (int64, error) {
	id, err := s.store.Insert(ctx, e)
	if err != nil {
		return 0, &StoreError{Type: e.Type, Cause: err}
	}

	ev := event.New(s.source, event.UrgencyLow, &event.KnowledgeStored{
		EntryID:       id,
		KnowledgeType: string(e.Type),
		Tags:          e.Tags,
		SourceID:      e.SourceID,
	})
	if err := s.bus.Publish(ctx, ev); err != nil {
		// The entry is stored; a lost announcement is not a storage failure.
		s.logger.Warn("knowledge stored but event publish failed", "entry_id", id, "error", err)
	}
	return id, nil
}

// RecallRelevantKnowledge retrieves up to limit entries relevant to c, best
// first. Every non-empty field of c activates one retrieval strategy; merged
// candidates are deduplicated and scored. A recall that finds nothing is
// still a successful recall and still publishes a knowledge.recalled event.
func (s *Service) RecallRelevantKnowledge(ctx context.Context, c Context, limit int) ([]ScoredEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	seen := make(map[int64]knowledge.Entry)
	merge := func(entries []knowledge.Entry) {
		for _, e := range entries {
			if _, ok := seen[e.ID]; !ok {
				seen[e.ID] = e
			}
		}
	}

	if c.TaskType != "" {
		entries, err := s.store.ByTaskType(ctx, c.TaskType, candidateLimit)
		if err != nil {
			return nil, &RecallError{Strategy: "task-type", Cause: err}
		}
		merge(entries)
	}
	for _, tag := range c.Tags {
		entries, err := s.store.ByTag(ctx, tag, candidateLimit)
		if err != nil {
			return nil, &RecallError{Strategy: "tag", Cause: err}
		}
		merge(entries)
	}
	if c.Description != "" {
		scored, err := s.store.SearchText(ctx, c.Description, candidateLimit)
		if err != nil {
			return nil, &RecallError{Strategy: "text", Cause: err}
		}
		for _, se := range scored {
			if _, ok := seen[se.ID]; !ok {
				seen[se.ID] = se.Entry
			}
		}
	}
	if !c.Since.IsZero() || !c.Until.IsZero() {
		from, to := c.Since, c.Until
		if to.IsZero() {
			to = s.nowFunc()
		}
		entries, err := s.store.ByTimeRange(ctx, from, to, candidateLimit)
		if err != nil {
			return nil, &RecallError{Strategy: "time-range", Cause: err}
		}
		merge(entries)
	}

	results := make([]ScoredEntry, 0, len(seen))
	now := s.nowFunc()
	for _, e := range seen {
		results = append(results, ScoredEntry{Entry: e, Score: s.score(e, c, now)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.publishRecalled(ctx, results)
	return results, nil
}

// score computes the weighted relevance of e to c, clamped to [0, 1].
func (s *Service) score(e knowledge.Entry, c Context, now time.Time) float64 {
	w := s.weights

	age := now.Sub(e.Timestamp)
	if age < 0 {
		age = 0
	}
	recency := math.Pow(0.5, float64(age)/float64(recencyHalfLife))

	total := w.Recency*recency +
		w.Tags*tagOverlap(e.Tags, c.Tags) +
		w.Text*textOverlap(e, c.Description) +
		w.TaskType*taskTypeMatch(e.TaskType, c.TaskType)

	return math.Min(1, math.Max(0, total))
}

// tagOverlap returns the fraction of wanted tags present on the entry.
func tagOverlap(entryTags, wanted []string) float64 {
	if len(wanted) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[strings.ToLower(t)] = struct{}{}
	}
	hits := 0
	for _, t := range wanted {
		if _, ok := set[strings.ToLower(t)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(wanted))
}

// textOverlap returns the fraction of description tokens appearing in the
// entry's approach or learnings.
func textOverlap(e knowledge.Entry, description string) float64 {
	tokens := strings.Fields(strings.ToLower(description))
	if len(tokens) == 0 {
		return 0
	}
	body := strings.ToLower(e.Approach + " " + e.Learnings)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(body, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// taskTypeMatch returns 1 for an exact task type match, else 0.
func taskTypeMatch(entryType, wanted string) float64 {
	if wanted != "" && entryType == wanted {
		return 1
	}
	return 0
}

// topSummaryCount bounds how many entries the recalled event summarizes.
const topSummaryCount = 5

// publishRecalled announces a completed recall on the bus.
func (s *Service) publishRecalled(ctx context.Context, results []ScoredEntry) {
	var mean float64
	ids := make([]int64, 0, topSummaryCount)
	summaries := make([]string, 0, topSummaryCount)
	for i, r := range results {
		mean += r.Score
		if i < topSummaryCount {
			ids = append(ids, r.ID)
			summaries = append(summaries, summarize(r.Entry))
		}
	}
	if len(results) > 0 {
		mean /= float64(len(results))
	}

	ev := event.New(s.source, event.UrgencyLow, &event.KnowledgeRecalled{
		Count:        len(results),
		MeanScore:    mean,
		TopIDs:       ids,
		TopSummaries: summaries,
	})
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("recall event publish failed", "error", err)
	}
}

// summaryMaxLen caps the per-entry summary in recalled events.
const summaryMaxLen = 120

// summarize renders a short one-line description of an entry.
func summarize(e knowledge.Entry) string {
	text := e.Approach
	if text == "" {
		text = e.Learnings
	}
	line := fmt.Sprintf("[%s] %s", e.Type, text)
	if len(line) > summaryMaxLen {
		line = line[:summaryMaxLen-3] + "..."
	}
	return line
}
