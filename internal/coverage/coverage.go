// Package coverage implements the per-session topic coverage tracker.
//
// The tracker owns no storage of its own: it mutates the coverage and
// answered-question records inside a single session value, so state is always
// scoped to one conversation and never shared. Status changes are emitted as
// events consumable by the host (UI progress, prompt context).
package coverage

import (
	"log/slog"

	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
)

// Event is the change notification emitted when a topic's coverage status moves.
type Event struct {
	SessionID string                `json:"session_id"`
	Topic     models.Topic          `json:"topic"`
	Status    models.CoverageStatus `json:"status"`
}

// Notifier consumes coverage change events. May be nil.
type Notifier func(Event)

// Tracker maintains the coverage state for one session.
type Tracker struct {
	reg     *registry.Registry
	session *models.Session
	notify  Notifier
}

// NewTracker wraps a session with a tracker. Coverage and answered maps are
// initialized on first use so freshly created sessions work without setup.
func NewTracker(reg *registry.Registry, session *models.Session, notify Notifier) *Tracker {
	if session.Coverage == nil {
		session.Coverage = make(map[models.Topic]models.CoverageStatus, len(models.AllTopics))
	}
	if session.Answered == nil {
		session.Answered = make(map[string]bool)
	}
	for _, topic := range reg.AllTopics() {
		if _, ok := session.Coverage[topic]; !ok {
			session.Coverage[topic] = models.CoveragePending
		}
	}
	t := &Tracker{reg: reg, session: session, notify: notify}
	t.Refresh()
	return t
}

// RecordAnswer marks a single question as answered and re-evaluates its
// topic. Returns true when the question was not previously recorded.
func (t *Tracker) RecordAnswer(questionID string) bool {
	q, ok := t.reg.Question(questionID)
	if !ok {
		slog.Warn("coverage.RecordAnswer: unknown question ID", "sessionID", t.session.ID, "questionID", questionID)
		return false
	}
	if t.session.Answered[questionID] {
		return false
	}
	t.session.Answered[questionID] = true
	t.refreshTopic(q.Topic)
	return true
}

// MarkCovered forces a topic satisfied by recording every applicable question
// as answered. Invoking it twice has the same effect as once.
func (t *Tracker) MarkCovered(topic models.Topic) {
	for _, q := range t.reg.RequiredQuestions(topic) {
		t.session.Answered[q.ID] = true
	}
	t.refreshTopic(topic)
}

// Refresh re-evaluates every topic against the session's facts and answered
// set. Call after the facts record changes so conditional-skip rules take
// effect.
func (t *Tracker) Refresh() {
	for _, topic := range t.reg.AllTopics() {
		t.refreshTopic(topic)
	}
}

// refreshTopic recomputes one topic's status and emits an event on change.
func (t *Tracker) refreshTopic(topic models.Topic) {
	status := t.computeStatus(topic)
	if t.session.Coverage[topic] == status {
		return
	}
	t.session.Coverage[topic] = status
	slog.Debug("coverage: topic status changed", "sessionID", t.session.ID, "topic", topic, "status", status)
	if t.notify != nil {
		t.notify(Event{SessionID: t.session.ID, Topic: topic, Status: status})
	}
}

func (t *Tracker) computeStatus(topic models.Topic) models.CoverageStatus {
	if !t.reg.TopicApplies(topic, t.session.Facts) {
		return models.CoverageSkipped
	}
	qs := t.reg.ApplicableQuestions(topic, t.session.Facts)
	for _, q := range qs {
		if !t.session.Answered[q.ID] {
			return models.CoveragePending
		}
	}
	return models.CoverageCovered
}

// IsComplete reports whether every topic is satisfied: covered, or explicitly
// skipped by a conditional rule. It never returns true while an unconditional
// topic lacks a recorded answer; this is the invariant the summary gate
// enforces.
func (t *Tracker) IsComplete() bool {
	for _, topic := range t.reg.AllTopics() {
		if !t.session.Coverage[topic].Satisfied() {
			return false
		}
	}
	return true
}

// UncoveredTopics returns the topics not yet satisfied, in the
// branch-specialized priority order.
func (t *Tracker) UncoveredTopics() []models.Topic {
	var out []models.Topic
	for _, topic := range t.reg.PriorityOrder(t.session.Branch) {
		if !t.session.Coverage[topic].Satisfied() {
			out = append(out, topic)
		}
	}
	return out
}

// NextQuestion selects the next question to ask: depth-first within the given
// topic when it still has unanswered applicable questions, otherwise the first
// unanswered question of the highest-priority uncovered topic. Returns false
// when coverage is complete.
func (t *Tracker) NextQuestion(within models.Topic) (registry.Question, bool) {
	if within != "" {
		if q, ok := t.firstUnanswered(within); ok {
			return q, true
		}
	}
	for _, topic := range t.reg.PriorityOrder(t.session.Branch) {
		if topic == within {
			continue
		}
		if q, ok := t.firstUnanswered(topic); ok {
			return q, true
		}
	}
	return registry.Question{}, false
}

func (t *Tracker) firstUnanswered(topic models.Topic) (registry.Question, bool) {
	for _, q := range t.reg.ApplicableQuestions(topic, t.session.Facts) {
		if !t.session.Answered[q.ID] {
			return q, true
		}
	}
	return registry.Question{}, false
}

// Progress builds the coverage-progress indicator for the UI collaborator.
func (t *Tracker) Progress() models.Progress {
	p := models.Progress{TotalCount: len(models.AllTopics)}
	for _, topic := range t.reg.PriorityOrder(t.session.Branch) {
		if t.session.Coverage[topic].Satisfied() {
			p.CoveredCount++
			p.CoveredTopics = append(p.CoveredTopics, topic.DisplayName())
		} else {
			p.MissingTopics = append(p.MissingTopics, topic.DisplayName())
		}
	}
	if p.TotalCount > 0 {
		p.Percentage = p.CoveredCount * 100 / p.TotalCount
	}
	return p
}
