package registry

import (
	"testing"

	"github.com/CMCFame/ACEBotV2/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestValidate(t *testing.T) {
	reg := New()
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate failed on canonical registry: %v", err)
	}
}

func TestQuestionCount(t *testing.T) {
	reg := New()
	if got := reg.QuestionCount(); got != 45 {
		t.Errorf("question count = %d, want 45", got)
	}
}

func TestEveryTopicHasQuestions(t *testing.T) {
	reg := New()
	for _, topic := range models.AllTopics {
		if len(reg.RequiredQuestions(topic)) == 0 {
			t.Errorf("topic %s has no questions", topic)
		}
	}
}

func TestSingleListSkipsTraversalQuestion(t *testing.T) {
	reg := New()
	q, ok := reg.Question("next_employee_list")
	if !ok {
		t.Fatal("next_employee_list question missing")
	}

	if !q.Applies(models.Facts{}) {
		t.Error("question should apply before the list count is known")
	}
	if q.Applies(models.Facts{SingleList: boolPtr(true)}) {
		t.Error("question should not apply once a single list is established")
	}
	if !q.Applies(models.Facts{SingleList: boolPtr(false)}) {
		t.Error("question should apply when multiple lists are established")
	}
}

func TestTiebreakerTopicGating(t *testing.T) {
	reg := New()

	if !reg.TopicApplies(models.TopicTiebreakers, models.Facts{}) {
		t.Error("tiebreakers should apply before overtime ordering is known")
	}
	if reg.TopicApplies(models.TopicTiebreakers, models.Facts{OvertimeOrdered: boolPtr(false)}) {
		t.Error("tiebreakers should be skipped when overtime ordering is ruled out")
	}
	if !reg.TopicApplies(models.TopicTiebreakers, models.Facts{OvertimeOrdered: boolPtr(true)}) {
		t.Error("tiebreakers should apply when overtime ordering is confirmed")
	}

	// Sub-questions stay hidden until overtime ordering is confirmed.
	qs := reg.ApplicableQuestions(models.TopicTiebreakers, models.Facts{})
	if len(qs) != 1 {
		t.Fatalf("expected only the lead tiebreaker question before confirmation, got %d", len(qs))
	}
	if qs[0].ID != "overtime_tiebreakers" {
		t.Errorf("unexpected lead question %s", qs[0].ID)
	}
	qs = reg.ApplicableQuestions(models.TopicTiebreakers, models.Facts{OvertimeOrdered: boolPtr(true)})
	if len(qs) != 4 {
		t.Errorf("expected 4 tiebreaker questions after confirmation, got %d", len(qs))
	}
}

func TestPriorityOrderIsPermutation(t *testing.T) {
	reg := New()
	for _, branch := range []models.UtilityBranch{"", models.BranchElectric, models.BranchWater, models.BranchGas} {
		order := reg.PriorityOrder(branch)
		if len(order) != len(models.AllTopics) {
			t.Fatalf("branch %q: got %d topics, want %d", branch, len(order), len(models.AllTopics))
		}
		seen := make(map[models.Topic]bool)
		for _, topic := range order {
			if seen[topic] {
				t.Errorf("branch %q repeats topic %s", branch, topic)
			}
			seen[topic] = true
		}
		if order[0] != models.TopicBasicInfo {
			t.Errorf("branch %q: basic info must come first, got %s", branch, order[0])
		}
	}
}

func TestBranchSpecialization(t *testing.T) {
	reg := New()
	electric := reg.PriorityOrder(models.BranchElectric)
	def := reg.PriorityOrder("")

	pos := func(order []models.Topic, topic models.Topic) int {
		for i, t := range order {
			if t == topic {
				return i
			}
		}
		return -1
	}
	if pos(electric, models.TopicTiebreakers) >= pos(def, models.TopicTiebreakers) {
		t.Error("electric branch should raise tiebreaker priority")
	}
}

func TestFirstQuestion(t *testing.T) {
	reg := New()
	if got := reg.FirstQuestion().ID; got != "name_company" {
		t.Errorf("first question = %s, want name_company", got)
	}
}
