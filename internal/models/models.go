// Package models defines the core data structures for the ACE questionnaire service.
//
// It includes the topic and question types shared across modules, the session
// (conversation state) record, and the API request/response envelopes.
package models

import (
	"errors"
	"time"
)

// Topic identifies one of the fixed subject areas the questionnaire must cover.
type Topic string

// The nine canonical topic areas, in default priority order.
const (
	TopicBasicInfo            Topic = "basic_info"
	TopicStaffingDetails      Topic = "staffing_details"
	TopicContactProcess       Topic = "contact_process"
	TopicListManagement       Topic = "list_management"
	TopicInsufficientStaffing Topic = "insufficient_staffing"
	TopicCallingLogistics     Topic = "calling_logistics"
	TopicListChanges          Topic = "list_changes"
	TopicTiebreakers          Topic = "tiebreakers"
	TopicAdditionalRules      Topic = "additional_rules"
)

// AllTopics lists every topic in default priority order.
var AllTopics = []Topic{
	TopicBasicInfo,
	TopicStaffingDetails,
	TopicContactProcess,
	TopicListManagement,
	TopicInsufficientStaffing,
	TopicCallingLogistics,
	TopicListChanges,
	TopicTiebreakers,
	TopicAdditionalRules,
}

// topicDisplayNames maps topic identifiers to the names shown to users.
var topicDisplayNames = map[Topic]string{
	TopicBasicInfo:            "Basic Information",
	TopicStaffingDetails:      "Staffing Details",
	TopicContactProcess:       "Contact Process",
	TopicListManagement:       "List Management",
	TopicInsufficientStaffing: "Insufficient Staffing",
	TopicCallingLogistics:     "Calling Logistics",
	TopicListChanges:          "List Changes",
	TopicTiebreakers:          "Tiebreakers",
	TopicAdditionalRules:      "Additional Rules",
}

// DisplayName returns the user-facing name for a topic.
func (t Topic) DisplayName() string {
	if name, ok := topicDisplayNames[t]; ok {
		return name
	}
	return string(t)
}

// IsValidTopic checks whether the given topic is one of the canonical nine.
func IsValidTopic(t Topic) bool {
	_, ok := topicDisplayNames[t]
	return ok
}

// UtilityBranch specializes topic priority ordering per utility type.
// Branch specialization reorders topics but never removes one.
type UtilityBranch string

const (
	BranchElectric UtilityBranch = "electric"
	BranchWater    UtilityBranch = "water"
	BranchGas      UtilityBranch = "gas"
)

// Facts is the structured answer record that conditional-applicability
// predicates evaluate. Pointer fields are tri-state: nil means the respondent
// has not resolved the fact yet.
type Facts struct {
	// OvertimeOrdered is true when callout lists are ordered by overtime hours.
	// Tiebreaker questions apply only once this resolves to true.
	OvertimeOrdered *bool `json:"overtime_ordered,omitempty"`
	// SingleList is true when the respondent uses exactly one callout list.
	// Traversal-between-lists questions are skipped once this resolves to true.
	SingleList *bool `json:"single_list,omitempty"`
	// UtilityType is the free-text utility type ("electric", "water and sewer", ...).
	UtilityType string `json:"utility_type,omitempty"`
}

// Validation constants for input validation.
const (
	// MaxMessageLength defines the maximum allowed length for a user utterance.
	MaxMessageLength = 4096
	// MaxNameLength defines the maximum allowed length for name/company fields.
	MaxNameLength = 200
)

// Error variables for better error handling and testability.
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrNameTooLong     = errors.New("name exceeds maximum length")
	ErrCompanyTooLong  = errors.New("company exceeds maximum length")
	ErrInvalidBranch   = errors.New("invalid utility branch")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionDone     = errors.New("session already completed")
)

// IsValidBranch checks whether the given branch is supported. The empty
// branch is valid and selects the default topic ordering.
func IsValidBranch(b UtilityBranch) bool {
	switch b {
	case "", BranchElectric, BranchWater, BranchGas:
		return true
	default:
		return false
	}
}

// Session is the owned conversation state for one questionnaire run. It is
// created at session start, mutated turn by turn through the controller, and
// reaches a terminal state when a summary is emitted or the session is
// abandoned. Each session is owned exclusively by one user; no state is
// shared across sessions.
type Session struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Company  string        `json:"company,omitempty"`
	Branch   UtilityBranch `json:"branch,omitempty"`
	Phase    Phase         `json:"phase"`
	Cursor   string        `json:"cursor,omitempty"` // question ID last asked
	Facts    Facts         `json:"facts"`
	Coverage map[Topic]CoverageStatus `json:"coverage"`
	Answered map[string]bool          `json:"answered"` // question IDs with a recorded answer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one (speaker, utterance) pair in a session transcript.
type Message struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Answer records a satisfying response to one registry question.
type Answer struct {
	SessionID  string        `json:"session_id"`
	QuestionID string        `json:"question_id"`
	Topic      Topic         `json:"topic"`
	Question   string        `json:"question"`
	Response   string        `json:"response"`
	Quality    AnswerQuality `json:"quality"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Progress is the incremental coverage indicator handed to the UI collaborator.
type Progress struct {
	Percentage    int      `json:"percentage"`
	CoveredCount  int      `json:"covered_count"`
	TotalCount    int      `json:"total_count"`
	CoveredTopics []string `json:"covered_topics"`
	MissingTopics []string `json:"missing_topics"`
}

// SessionCreateRequest is the payload for POST /sessions.
type SessionCreateRequest struct {
	Name    string        `json:"name,omitempty"`
	Company string        `json:"company,omitempty"`
	Branch  UtilityBranch `json:"branch,omitempty"`
}

// Validate performs validation on a SessionCreateRequest.
func (r *SessionCreateRequest) Validate() error {
	if len(r.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if len(r.Company) > MaxNameLength {
		return ErrCompanyTooLong
	}
	if !IsValidBranch(r.Branch) {
		return ErrInvalidBranch
	}
	return nil
}

// SessionMessageRequest is the payload for POST /sessions/{id}/messages.
type SessionMessageRequest struct {
	Message string `json:"message"`
}

// Validate performs validation on a SessionMessageRequest.
func (r *SessionMessageRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// API Response types for consistent JSON responses

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
