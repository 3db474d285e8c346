// Package registry defines the read-only topic registry for the ACE callout
// questionnaire: the nine canonical topics, the ordered required questions per
// topic, and the conditional-applicability predicates keyed off the structured
// answer record.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/CMCFame/ACEBotV2/internal/models"
)

// Predicate decides whether a question or topic applies given the facts
// extracted from prior answers. A nil predicate means unconditional.
type Predicate func(models.Facts) bool

// Question is one canonical prompt within a topic.
type Question struct {
	ID    string
	Topic models.Topic
	Text  string
	// AppliesIf, when non-nil, restricts the question to respondents whose
	// answer record satisfies the predicate.
	AppliesIf Predicate
}

// Applies reports whether the question is applicable under the given facts.
func (q Question) Applies(facts models.Facts) bool {
	return q.AppliesIf == nil || q.AppliesIf(facts)
}

// Registry exposes the fixed question set. It carries no mutable state;
// failures are configuration errors surfaced by Validate at startup.
type Registry struct {
	questions       []Question
	byID            map[string]Question
	byTopic         map[models.Topic][]Question
	topicPredicates map[models.Topic]Predicate
}

// notSingleList applies to traversal-between-lists questions: skipped once the
// respondent states they use exactly one list.
func notSingleList(f models.Facts) bool {
	return f.SingleList == nil || !*f.SingleList
}

// overtimeConfirmed applies to tiebreaker sub-questions: asked only once the
// respondent confirms lists are ordered by overtime hours.
func overtimeConfirmed(f models.Facts) bool {
	return f.OvertimeOrdered != nil && *f.OvertimeOrdered
}

// overtimeNotRuledOut gates the tiebreakers topic as a whole: the topic stays
// applicable until the respondent states they do not order by overtime.
func overtimeNotRuledOut(f models.Facts) bool {
	return f.OvertimeOrdered == nil || *f.OvertimeOrdered
}

// New builds the registry with the canonical ACE question set.
func New() *Registry {
	questions := []Question{
		// Basic Information
		{ID: "name_company", Topic: models.TopicBasicInfo, Text: "Could you please provide your name and company name?"},
		{ID: "callout_situation", Topic: models.TopicBasicInfo, Text: "What type of situation are you responding to for this callout?"},
		{ID: "callout_frequency", Topic: models.TopicBasicInfo, Text: "How often do callouts like this typically occur?"},
		{ID: "callout_timing", Topic: models.TopicBasicInfo, Text: "Do these callouts happen at any time, or mostly outside normal working hours?"},

		// Staffing Details
		{ID: "required_headcount", Topic: models.TopicStaffingDetails, Text: "How many employees are typically required for the callout?"},
		{ID: "job_classifications", Topic: models.TopicStaffingDetails, Text: "What job classifications or roles are included in the callout?"},
		{ID: "headcount_varies", Topic: models.TopicStaffingDetails, Text: "Does the number of employees needed vary by the type of situation?"},
		{ID: "qualification_requirements", Topic: models.TopicStaffingDetails, Text: "Are specific qualifications or certifications required for any of these roles?"},
		{ID: "crew_composition", Topic: models.TopicStaffingDetails, Text: "Do you need an exact mix of roles, or just a total number of people?"},

		// Contact Process
		{ID: "first_contact", Topic: models.TopicContactProcess, Text: "Who do you call first and why?"},
		{ID: "device_count", Topic: models.TopicContactProcess, Text: "How many devices do they have?"},
		{ID: "first_device", Topic: models.TopicContactProcess, Text: "Which device do you call first and why?"},
		{ID: "device_types", Topic: models.TopicContactProcess, Text: "What types of devices are you calling?"},
		{ID: "voicemail_handling", Topic: models.TopicContactProcess, Text: "If you reach voicemail, do you leave a message, and does that count as a contact attempt?"},

		// List Management
		{ID: "next_employee_list", Topic: models.TopicListManagement, Text: "Is the next employee you call on the same list or a different list?", AppliesIf: notSingleList},
		{ID: "list_count", Topic: models.TopicListManagement, Text: "How many lists (groups) total do you use for this callout?"},
		{ID: "list_basis", Topic: models.TopicListManagement, Text: "Are these lists based on job classification or some other attribute?"},
		{ID: "list_traversal", Topic: models.TopicListManagement, Text: "How do you call this list - straight down or do you skip around?"},
		{ID: "skip_rules", Topic: models.TopicListManagement, Text: "Do you skip around based on qualifications or employee status (vacation, sick, etc.)?"},
		{ID: "calling_pauses", Topic: models.TopicListManagement, Text: "Are there any pauses while calling this list?"},
		{ID: "list_start_position", Topic: models.TopicListManagement, Text: "When a new callout starts, do you begin at the top of the list or where the last callout left off?"},

		// Insufficient Staffing
		{ID: "short_staffed", Topic: models.TopicInsufficientStaffing, Text: "What happens when you don't get the required number of people?"},
		{ID: "secondary_list", Topic: models.TopicInsufficientStaffing, Text: "Do you call a different list or location? Is there any delay?"},
		{ID: "offer_unusual", Topic: models.TopicInsufficientStaffing, Text: "Will you offer positions to someone you wouldn't normally call?"},
		{ID: "whole_list_again", Topic: models.TopicInsufficientStaffing, Text: "Will you consider or call the whole list again?"},
		{ID: "always_same", Topic: models.TopicInsufficientStaffing, Text: "Do you always handle insufficient staffing the same way, or does it vary?"},

		// Calling Logistics
		{ID: "simultaneous_employees", Topic: models.TopicCallingLogistics, Text: "Is there any issue with calling multiple employees simultaneously?"},
		{ID: "simultaneous_devices", Topic: models.TopicCallingLogistics, Text: "Is there any issue with calling multiple devices simultaneously?"},
		{ID: "call_again_decline", Topic: models.TopicCallingLogistics, Text: "Can someone say 'no, but call again if nobody else accepts'?"},
		{ID: "declined_second_pass", Topic: models.TopicCallingLogistics, Text: "If someone says no on the first pass, are they called on the second pass?"},
		{ID: "response_wait", Topic: models.TopicCallingLogistics, Text: "How long do you wait for a response before moving on to the next employee?"},

		// List Changes
		{ID: "order_changes", Topic: models.TopicListChanges, Text: "Does the order of the lists ever change over time?"},
		{ID: "order_change_details", Topic: models.TopicListChanges, Text: "When and how does the list order change?"},
		{ID: "content_changes", Topic: models.TopicListChanges, Text: "Does the content of the lists (the employees on them) ever change over time?"},
		{ID: "content_change_details", Topic: models.TopicListChanges, Text: "When and how does the list content change?"},
		{ID: "change_notification", Topic: models.TopicListChanges, Text: "How are employees made aware when the lists change?"},

		// Tiebreakers
		{ID: "overtime_tiebreakers", Topic: models.TopicTiebreakers, Text: "If you use overtime to order employees on lists, what are your tiebreakers?"},
		{ID: "first_tiebreaker", Topic: models.TopicTiebreakers, Text: "What is your first tiebreaker if two employees have the same overtime hours?", AppliesIf: overtimeConfirmed},
		{ID: "second_tiebreaker", Topic: models.TopicTiebreakers, Text: "What is your second tiebreaker?", AppliesIf: overtimeConfirmed},
		{ID: "third_tiebreaker", Topic: models.TopicTiebreakers, Text: "What is your third tiebreaker?", AppliesIf: overtimeConfirmed},

		// Additional Rules
		{ID: "email_text_info", Topic: models.TopicAdditionalRules, Text: "Would you ever email or text information to employees about the callout?"},
		{ID: "shift_window_rules", Topic: models.TopicAdditionalRules, Text: "Do you have rules preventing callouts before or after normal working shifts?"},
		{ID: "excused_declines", Topic: models.TopicAdditionalRules, Text: "Do you have rules that excuse declined callouts near shifts, vacations, or other schedule items?"},
		{ID: "rest_period_rules", Topic: models.TopicAdditionalRules, Text: "Do you have minimum rest rules between the end of a callout and the start of a shift?"},
		{ID: "union_rules", Topic: models.TopicAdditionalRules, Text: "Are there union or contract rules that affect how callouts must be run?"},
	}

	r := &Registry{
		questions: questions,
		byID:      make(map[string]Question, len(questions)),
		byTopic:   make(map[models.Topic][]Question),
		topicPredicates: map[models.Topic]Predicate{
			models.TopicTiebreakers: overtimeNotRuledOut,
		},
	}
	for _, q := range questions {
		r.byID[q.ID] = q
		r.byTopic[q.Topic] = append(r.byTopic[q.Topic], q)
	}
	return r
}

// Validate checks registry consistency. A failure here is a configuration
// error and must be treated as fatal at startup.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.questions))
	for _, q := range r.questions {
		if q.ID == "" {
			return fmt.Errorf("registry question with empty ID (topic %s)", q.Topic)
		}
		if q.Text == "" {
			return fmt.Errorf("registry question %s has empty text", q.ID)
		}
		if !models.IsValidTopic(q.Topic) {
			return fmt.Errorf("registry question %s references unknown topic %s", q.ID, q.Topic)
		}
		if seen[q.ID] {
			return fmt.Errorf("registry question ID %s is duplicated", q.ID)
		}
		seen[q.ID] = true
	}
	for _, topic := range models.AllTopics {
		qs := r.byTopic[topic]
		if len(qs) == 0 {
			return fmt.Errorf("registry topic %s has no questions", topic)
		}
		// Topics without a topic-level predicate need at least one
		// unconditional question so the gating invariant can hold.
		if r.topicPredicates[topic] == nil {
			unconditional := false
			for _, q := range qs {
				if q.AppliesIf == nil {
					unconditional = true
					break
				}
			}
			if !unconditional {
				return fmt.Errorf("registry topic %s has only conditional questions", topic)
			}
		}
	}
	for _, branch := range []models.UtilityBranch{"", models.BranchElectric, models.BranchWater, models.BranchGas} {
		order := r.PriorityOrder(branch)
		if len(order) != len(models.AllTopics) {
			return fmt.Errorf("priority order for branch %q has %d topics, want %d", branch, len(order), len(models.AllTopics))
		}
		counted := make(map[models.Topic]bool, len(order))
		for _, t := range order {
			if counted[t] {
				return fmt.Errorf("priority order for branch %q repeats topic %s", branch, t)
			}
			counted[t] = true
		}
	}
	slog.Debug("registry.Validate: registry consistent", "questions", len(r.questions), "topics", len(r.byTopic))
	return nil
}

// AllTopics returns the fixed topic set in default priority order.
func (r *Registry) AllTopics() []models.Topic {
	topics := make([]models.Topic, len(models.AllTopics))
	copy(topics, models.AllTopics)
	return topics
}

// PriorityOrder returns the topic priority order for a utility branch.
// Specialization reorders topics but never removes a mandatory one;
// conditional-skip rules are the only removal mechanism.
func (r *Registry) PriorityOrder(branch models.UtilityBranch) []models.Topic {
	switch branch {
	case models.BranchElectric:
		// Electric utilities almost always order by overtime, so tiebreakers
		// move ahead of the lower-tier topics.
		return []models.Topic{
			models.TopicBasicInfo,
			models.TopicStaffingDetails,
			models.TopicContactProcess,
			models.TopicListManagement,
			models.TopicTiebreakers,
			models.TopicInsufficientStaffing,
			models.TopicCallingLogistics,
			models.TopicListChanges,
			models.TopicAdditionalRules,
		}
	case models.BranchWater, models.BranchGas:
		// Water and gas callouts hinge on crew logistics before list churn.
		return []models.Topic{
			models.TopicBasicInfo,
			models.TopicStaffingDetails,
			models.TopicContactProcess,
			models.TopicListManagement,
			models.TopicInsufficientStaffing,
			models.TopicCallingLogistics,
			models.TopicAdditionalRules,
			models.TopicListChanges,
			models.TopicTiebreakers,
		}
	default:
		return r.AllTopics()
	}
}

// RequiredQuestions returns the ordered question list for a topic.
func (r *Registry) RequiredQuestions(topic models.Topic) []Question {
	qs := r.byTopic[topic]
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}

// Question looks up a question by ID.
func (r *Registry) Question(id string) (Question, bool) {
	q, ok := r.byID[id]
	return q, ok
}

// TopicApplies reports whether a topic is applicable under the given facts.
func (r *Registry) TopicApplies(topic models.Topic, facts models.Facts) bool {
	if pred, ok := r.topicPredicates[topic]; ok {
		return pred(facts)
	}
	return true
}

// ApplicableQuestions returns the topic's questions that apply under the
// given facts, in registry order. An inapplicable topic yields none.
func (r *Registry) ApplicableQuestions(topic models.Topic, facts models.Facts) []Question {
	if !r.TopicApplies(topic, facts) {
		return nil
	}
	var out []Question
	for _, q := range r.byTopic[topic] {
		if q.Applies(facts) {
			out = append(out, q)
		}
	}
	return out
}

// FirstQuestion returns the opening question of the questionnaire.
func (r *Registry) FirstQuestion() Question {
	return r.questions[0]
}

// QuestionCount returns the total number of registered questions.
func (r *Registry) QuestionCount() int {
	return len(r.questions)
}
