// Package flow implements the questionnaire turn controller: the per-session
// state machine that routes each user message through classification, updates
// topic coverage, and selects what to say next. All mutable state lives in
// the session value owned by the current turn; the controller itself is
// stateless and safe for concurrent sessions.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CMCFame/ACEBotV2/internal/coverage"
	"github.com/CMCFame/ACEBotV2/internal/genai"
	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
	"github.com/CMCFame/ACEBotV2/internal/store"
	"github.com/CMCFame/ACEBotV2/internal/summary"
)

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	Reply    string          `json:"reply"`
	Phase    models.Phase    `json:"phase"`
	Progress models.Progress `json:"progress"`
	// Summary holds the rendered final report when this turn completed the
	// questionnaire.
	Summary string `json:"summary,omitempty"`
}

// Controller drives questionnaire sessions.
type Controller struct {
	reg    *registry.Registry
	st     store.Store
	cls    *Classifier
	resp   *Responder
	notify coverage.Notifier
}

// Opts holds controller configuration.
type Opts struct {
	Notifier coverage.Notifier
}

// Option configures the controller.
type Option func(*Opts)

// WithNotifier registers a coverage change listener.
func WithNotifier(n coverage.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// NewController creates a turn controller.
func NewController(reg *registry.Registry, st store.Store, ai genai.ClientInterface, opts ...Option) *Controller {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller{
		reg:    reg,
		st:     st,
		cls:    NewClassifier(ai, reg),
		resp:   NewResponder(ai),
		notify: cfg.Notifier,
	}
}

// StartSession creates a session and returns it with the opening message.
func (c *Controller) StartSession(ctx context.Context, req models.SessionCreateRequest) (*models.Session, string, error) {
	now := time.Now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Company:   req.Company,
		Branch:    req.Branch,
		Phase:     models.PhaseGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tracker := coverage.NewTracker(c.reg, sess, c.notify)
	first, ok := tracker.NextQuestion("")
	if !ok {
		return nil, "", fmt.Errorf("registry has no applicable questions")
	}
	greeting := c.resp.Greeting(ctx, sess, first)
	sess.Cursor = first.ID
	sess.Phase = models.PhaseAwaitingAnswer
	if err := c.st.SaveSession(*sess); err != nil {
		return nil, "", fmt.Errorf("failed to save new session: %w", err)
	}
	if err := c.st.AddMessage(models.Message{SessionID: sess.ID, Role: models.RoleAssistant, Content: greeting, Timestamp: now}); err != nil {
		return nil, "", fmt.Errorf("failed to record greeting: %w", err)
	}
	slog.Info("flow.StartSession: session started", "sessionID", sess.ID, "firstQuestion", first.ID)
	return sess, greeting, nil
}

// HandleMessage runs one turn: classify the user message, update coverage,
// and produce the next reply. The caller must serialize turns per session.
func (c *Controller) HandleMessage(ctx context.Context, sessionID, userMsg string) (*TurnResult, error) {
	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrSessionNotFound
	}
	if sess.Phase.IsTerminal() {
		return nil, models.ErrSessionDone
	}

	transcript, err := c.st.GetMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	now := time.Now()
	if err := c.st.AddMessage(models.Message{SessionID: sessionID, Role: models.RoleUser, Content: userMsg, Timestamp: now}); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}

	tracker := coverage.NewTracker(c.reg, sess, c.notify)
	outstanding := c.outstandingQuestion(sess, tracker)

	var result *TurnResult
	cls, err := c.cls.Classify(ctx, sess, outstanding, userMsg, transcript)
	if err != nil {
		// Transient service failure. The respondent's words are already in
		// the transcript, so surface the failure and change nothing else:
		// coverage, answers, and the cursor stay exactly as they were.
		slog.Warn("flow.HandleMessage: classification unavailable, state unchanged",
			"sessionID", sessionID, "questionID", outstanding.ID, "error", err)
		result = &TurnResult{Reply: c.resp.TransientFailure(outstanding)}
	} else {
		result, err = c.dispatch(ctx, sess, tracker, outstanding, cls, userMsg)
		if err != nil {
			return nil, err
		}
	}

	sess.UpdatedAt = time.Now()
	if err := c.st.SaveSession(*sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	if err := c.st.AddMessage(models.Message{SessionID: sessionID, Role: models.RoleAssistant, Content: result.Reply, Timestamp: sess.UpdatedAt}); err != nil {
		return nil, fmt.Errorf("failed to record reply: %w", err)
	}
	result.Phase = sess.Phase
	result.Progress = tracker.Progress()
	return result, nil
}

// dispatch routes one classified message through the state machine.
func (c *Controller) dispatch(ctx context.Context, sess *models.Session, tracker *coverage.Tracker, outstanding registry.Question, cls Classification, userMsg string) (*TurnResult, error) {
	switch cls.Kind {
	case models.KindHelpRequest:
		// Help/example detours resolve within the turn: the cursor stays on
		// the outstanding question, the reply repeats it verbatim, and the
		// session is persisted awaiting the same answer.
		sess.Phase = models.PhaseAwaitingAnswer
		return &TurnResult{Reply: c.resp.Help(ctx, sess, outstanding)}, nil

	case models.KindExampleRequest:
		sess.Phase = models.PhaseAwaitingAnswer
		return &TurnResult{Reply: c.resp.Example(ctx, sess, outstanding)}, nil

	case models.KindSummaryRequest:
		if err := CheckSummaryGate(tracker); err != nil {
			var missing []models.Topic
			if pse, ok := err.(*PrematureSummaryError); ok {
				missing = pse.Missing
			}
			slog.Info("flow.dispatch: premature summary request", "sessionID", sess.ID, "missing", len(missing))
			next, ok := tracker.NextQuestion(outstanding.Topic)
			if !ok {
				next = outstanding
			}
			sess.Cursor = next.ID
			sess.Phase = models.PhaseAwaitingAnswer
			return &TurnResult{Reply: c.resp.PrematureSummary(sess, missing, next)}, nil
		}
		return c.finish(sess, tracker)

	case models.KindAmbiguous:
		// Re-prompt without advancing: coverage and cursor are unchanged.
		sess.Phase = models.PhaseAwaitingAnswer
		return &TurnResult{Reply: c.resp.Reprompt(ctx, sess, outstanding)}, nil

	default: // models.KindAnswer
		return c.recordAnswer(ctx, sess, tracker, outstanding, cls, userMsg)
	}
}

// recordAnswer applies a substantive answer: facts first (so conditional
// skips take effect before coverage is re-evaluated), then answered
// questions, then explicitly covered topics.
func (c *Controller) recordAnswer(ctx context.Context, sess *models.Session, tracker *coverage.Tracker, outstanding registry.Question, cls Classification, userMsg string) (*TurnResult, error) {
	c.applyFacts(sess, cls)
	tracker.Refresh()

	now := time.Now()
	for _, id := range cls.QuestionsAnswered {
		q, ok := c.reg.Question(id)
		if !ok {
			continue
		}
		if !tracker.RecordAnswer(id) {
			continue
		}
		if err := c.st.SaveAnswer(models.Answer{
			SessionID:  sess.ID,
			QuestionID: id,
			Topic:      q.Topic,
			Question:   q.Text,
			Response:   userMsg,
			Quality:    cls.Quality,
			CreatedAt:  now,
		}); err != nil {
			return nil, fmt.Errorf("failed to save answer %s: %w", id, err)
		}
	}
	for _, topic := range cls.TopicsAddressed {
		tracker.MarkCovered(topic)
	}

	if tracker.IsComplete() {
		return c.finish(sess, tracker)
	}

	next, ok := tracker.NextQuestion(outstanding.Topic)
	if !ok {
		// Coverage said incomplete but no question is askable; only a
		// registry inconsistency can cause this.
		return nil, fmt.Errorf("no next question for incomplete session %s", sess.ID)
	}
	sess.Cursor = next.ID
	sess.Phase = models.PhaseAwaitingAnswer
	return &TurnResult{Reply: c.resp.Ack(ctx, sess, userMsg, next)}, nil
}

// finish emits the final summary and moves the session to DONE. Reached only
// through the summary gate or a complete coverage map, which is the
// SUMMARY_READY condition.
func (c *Controller) finish(sess *models.Session, tracker *coverage.Tracker) (*TurnResult, error) {
	answers, err := c.st.GetAnswers(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers for summary: %w", err)
	}
	md := summary.RenderMarkdown(summary.Build(c.reg, sess, answers))
	sess.Phase = models.PhaseDone
	sess.Cursor = ""
	slog.Info("flow.finish: questionnaire complete", "sessionID", sess.ID, "answers", len(answers))
	reply := "That covers everything I needed. Thank you for walking me through your callout process!\n\n" + md
	return &TurnResult{Reply: reply, Summary: md}, nil
}

// Summary returns the rendered summary for a session, enforcing the gate.
func (c *Controller) Summary(ctx context.Context, sessionID string) (string, error) {
	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return "", models.ErrSessionNotFound
	}
	tracker := coverage.NewTracker(c.reg, sess, c.notify)
	if err := CheckSummaryGate(tracker); err != nil {
		return "", err
	}
	answers, err := c.st.GetAnswers(sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load answers: %w", err)
	}
	if !sess.Phase.IsTerminal() {
		sess.Phase = models.PhaseDone
		sess.Cursor = ""
		sess.UpdatedAt = time.Now()
		if err := c.st.SaveSession(*sess); err != nil {
			return "", fmt.Errorf("failed to save session: %w", err)
		}
	}
	return summary.RenderMarkdown(summary.Build(c.reg, sess, answers)), nil
}

// Progress reports coverage progress for a session.
func (c *Controller) Progress(sessionID string) (*models.Progress, error) {
	sess, err := c.st.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, models.ErrSessionNotFound
	}
	tracker := coverage.NewTracker(c.reg, sess, nil)
	p := tracker.Progress()
	return &p, nil
}

// outstandingQuestion resolves the cursor to a question, repairing a stale or
// empty cursor by selecting the next askable question.
func (c *Controller) outstandingQuestion(sess *models.Session, tracker *coverage.Tracker) registry.Question {
	if q, ok := c.reg.Question(sess.Cursor); ok {
		return q
	}
	if q, ok := tracker.NextQuestion(""); ok {
		sess.Cursor = q.ID
		return q
	}
	return c.reg.FirstQuestion()
}

// applyFacts merges classifier-extracted facts into the session. Fields are
// only ever set, never cleared, so an unrelated later answer cannot erase an
// established fact.
func (c *Controller) applyFacts(sess *models.Session, cls Classification) {
	if cls.SingleList != nil {
		v := *cls.SingleList
		sess.Facts.SingleList = &v
	}
	if cls.OvertimeOrdered != nil {
		v := *cls.OvertimeOrdered
		sess.Facts.OvertimeOrdered = &v
	}
	if cls.UtilityType != "" {
		sess.Facts.UtilityType = cls.UtilityType
		if sess.Branch == "" {
			sess.Branch = models.UtilityBranch(cls.UtilityType)
		}
	}
	if cls.Name != "" && sess.Name == "" {
		sess.Name = cls.Name
	}
	if cls.Company != "" && sess.Company == "" {
		sess.Company = cls.Company
	}
}
