package coverage

import (
	"testing"

	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
)

func boolPtr(b bool) *bool { return &b }

func newSession() *models.Session {
	return &models.Session{ID: "s1", Phase: models.PhaseAwaitingAnswer}
}

func TestIsCompleteOnlyWhenAllTopicsSatisfied(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	if tracker.IsComplete() {
		t.Fatal("fresh session must not be complete")
	}

	// Cover every topic but one.
	for _, topic := range models.AllTopics[:len(models.AllTopics)-1] {
		tracker.MarkCovered(topic)
	}
	if tracker.IsComplete() {
		t.Fatal("session with one pending topic must not be complete")
	}

	tracker.MarkCovered(models.AllTopics[len(models.AllTopics)-1])
	if !tracker.IsComplete() {
		t.Fatal("session with all topics covered must be complete")
	}
}

func TestMarkCoveredIdempotent(t *testing.T) {
	reg := registry.New()
	sess := newSession()

	var events []Event
	tracker := NewTracker(reg, sess, func(e Event) { events = append(events, e) })

	tracker.MarkCovered(models.TopicBasicInfo)
	after := len(events)
	if sess.Coverage[models.TopicBasicInfo] != models.CoverageCovered {
		t.Fatal("topic not covered after MarkCovered")
	}

	tracker.MarkCovered(models.TopicBasicInfo)
	if sess.Coverage[models.TopicBasicInfo] != models.CoverageCovered {
		t.Fatal("second MarkCovered changed the status")
	}
	if len(events) != after {
		t.Errorf("second MarkCovered emitted %d extra events", len(events)-after)
	}
}

func TestSingleListSkipsTopicQuestions(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	// Answer all list management questions except the conditional one.
	for _, q := range reg.RequiredQuestions(models.TopicListManagement) {
		if q.ID == "next_employee_list" {
			continue
		}
		tracker.RecordAnswer(q.ID)
	}
	if sess.Coverage[models.TopicListManagement] != models.CoveragePending {
		t.Fatal("topic should be pending while the traversal question is applicable and unanswered")
	}

	// Establishing a single list removes the question; the topic completes
	// without it ever being answered.
	sess.Facts.SingleList = boolPtr(true)
	tracker.Refresh()
	if sess.Coverage[models.TopicListManagement] != models.CoverageCovered {
		t.Fatalf("topic = %s, want covered after single-list fact", sess.Coverage[models.TopicListManagement])
	}
}

func TestTiebreakersSkippedWhenOvertimeRuledOut(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	sess.Facts.OvertimeOrdered = boolPtr(false)
	tracker.Refresh()
	if sess.Coverage[models.TopicTiebreakers] != models.CoverageSkipped {
		t.Fatalf("tiebreakers = %s, want skipped", sess.Coverage[models.TopicTiebreakers])
	}

	// Skipped counts toward completion.
	for _, topic := range models.AllTopics {
		if topic == models.TopicTiebreakers {
			continue
		}
		tracker.MarkCovered(topic)
	}
	if !tracker.IsComplete() {
		t.Fatal("skipped topic must count as satisfied")
	}
}

func TestRecordAnswer(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	if !tracker.RecordAnswer("name_company") {
		t.Fatal("first RecordAnswer should report a new answer")
	}
	if tracker.RecordAnswer("name_company") {
		t.Fatal("duplicate RecordAnswer should report false")
	}
	if tracker.RecordAnswer("no_such_question") {
		t.Fatal("unknown question ID should report false")
	}
}

func TestNextQuestionDepthFirst(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	tracker.RecordAnswer("name_company")
	q, ok := tracker.NextQuestion(models.TopicBasicInfo)
	if !ok {
		t.Fatal("expected a next question")
	}
	if q.Topic != models.TopicBasicInfo {
		t.Errorf("next question topic = %s, want current topic to finish first", q.Topic)
	}

	// Once the topic is exhausted, selection moves to the next priority topic.
	tracker.MarkCovered(models.TopicBasicInfo)
	q, ok = tracker.NextQuestion(models.TopicBasicInfo)
	if !ok {
		t.Fatal("expected a next question")
	}
	if q.Topic != models.TopicStaffingDetails {
		t.Errorf("next topic = %s, want staffing details", q.Topic)
	}
}

func TestNextQuestionNoneWhenComplete(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	for _, topic := range models.AllTopics {
		tracker.MarkCovered(topic)
	}
	if _, ok := tracker.NextQuestion(""); ok {
		t.Fatal("complete session must have no next question")
	}
}

func TestUncoveredTopicsInPriorityOrder(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	uncovered := tracker.UncoveredTopics()
	if len(uncovered) != len(models.AllTopics) {
		t.Fatalf("fresh session: %d uncovered, want %d", len(uncovered), len(models.AllTopics))
	}
	if uncovered[0] != models.TopicBasicInfo {
		t.Errorf("first uncovered = %s, want basic info", uncovered[0])
	}

	tracker.MarkCovered(models.TopicBasicInfo)
	uncovered = tracker.UncoveredTopics()
	if len(uncovered) != len(models.AllTopics)-1 {
		t.Fatalf("after covering one topic: %d uncovered", len(uncovered))
	}
}

func TestProgress(t *testing.T) {
	reg := registry.New()
	sess := newSession()
	tracker := NewTracker(reg, sess, nil)

	p := tracker.Progress()
	if p.Percentage != 0 || p.CoveredCount != 0 {
		t.Fatalf("fresh session progress = %+v", p)
	}

	tracker.MarkCovered(models.TopicBasicInfo)
	p = tracker.Progress()
	if p.CoveredCount != 1 {
		t.Errorf("covered count = %d, want 1", p.CoveredCount)
	}
	if p.Percentage != 100/len(models.AllTopics) {
		t.Errorf("percentage = %d", p.Percentage)
	}

	for _, topic := range models.AllTopics {
		tracker.MarkCovered(topic)
	}
	p = tracker.Progress()
	if p.Percentage != 100 {
		t.Errorf("complete percentage = %d, want 100", p.Percentage)
	}
	if len(p.MissingTopics) != 0 {
		t.Errorf("complete session still missing %v", p.MissingTopics)
	}
}

func TestCoverageEventsEmittedOnChange(t *testing.T) {
	reg := registry.New()
	sess := newSession()

	var events []Event
	tracker := NewTracker(reg, sess, func(e Event) { events = append(events, e) })

	tracker.MarkCovered(models.TopicContactProcess)
	if len(events) == 0 {
		t.Fatal("expected a coverage event")
	}
	last := events[len(events)-1]
	if last.Topic != models.TopicContactProcess || last.Status != models.CoverageCovered {
		t.Errorf("unexpected event %+v", last)
	}
}
