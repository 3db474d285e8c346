// Package models defines state types for the questionnaire turn controller.
package models

// Phase represents a state of the turn controller state machine.
type Phase string

// Turn controller states. A turn is processed synchronously, so GREETING,
// ASKING, HELP_OR_EXAMPLE, and SUMMARY_READY exist only within a turn: by the
// time a session is persisted it is either awaiting the next answer or done.
const (
	PhaseGreeting       Phase = "GREETING"
	PhaseAsking         Phase = "ASKING"
	PhaseAwaitingAnswer Phase = "AWAITING_ANSWER"
	PhaseHelpOrExample  Phase = "HELP_OR_EXAMPLE"
	PhaseSummaryReady   Phase = "SUMMARY_READY"
	PhaseDone           Phase = "DONE"
)

// IsTerminal reports whether the phase is a terminal state.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone
}

// CoverageStatus is the satisfaction state of a topic within a session.
type CoverageStatus string

const (
	// CoveragePending means the topic still has unanswered applicable questions.
	CoveragePending CoverageStatus = "pending"
	// CoverageCovered means every applicable question of the topic has a
	// recorded answer.
	CoverageCovered CoverageStatus = "covered"
	// CoverageSkipped means a conditional-skip rule marked the topic not
	// applicable for this respondent.
	CoverageSkipped CoverageStatus = "skipped"
)

// Satisfied reports whether the status counts toward completion.
func (s CoverageStatus) Satisfied() bool {
	return s == CoverageCovered || s == CoverageSkipped
}

// MessageKind classifies a user utterance within a turn.
type MessageKind string

const (
	// KindAnswer is a substantive answer to the outstanding question.
	KindAnswer MessageKind = "answer"
	// KindHelpRequest asks for clarification of the outstanding question.
	KindHelpRequest MessageKind = "help_request"
	// KindExampleRequest asks for an example answer.
	KindExampleRequest MessageKind = "example_request"
	// KindSummaryRequest asks for the final summary.
	KindSummaryRequest MessageKind = "summary_request"
	// KindAmbiguous is too brief or unclear to determine topic coverage.
	KindAmbiguous MessageKind = "ambiguous"
)

// AnswerQuality grades how completely a response addressed its question.
type AnswerQuality string

const (
	QualityComplete AnswerQuality = "complete"
	QualityPartial  AnswerQuality = "partial"
	QualityUnclear  AnswerQuality = "unclear"
)
