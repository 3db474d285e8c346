package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CMCFame/ACEBotV2/internal/genai"
	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
)

// Responder turns the controller's decisions into conversational prose. Every
// generation has a deterministic fallback, so an exhausted generation retry
// never stalls the interview.
type Responder struct {
	ai genai.ClientInterface
}

// NewResponder creates a responder backed by the given generation client.
func NewResponder(ai genai.ClientInterface) *Responder {
	return &Responder{ai: ai}
}

const responderSystemPrompt = `You are ACE, a friendly assistant interviewing a utility company about their employee callout procedures. Keep replies to one or two short sentences, professional and warm. Always end with the exact question text you are given, in bold (** **). Never invent new questions and never answer for the user.`

// Greeting opens a session: a welcome line plus the first question, bolded.
func (r *Responder) Greeting(ctx context.Context, sess *models.Session, first registry.Question) string {
	fallback := fmt.Sprintf(
		"Hi! I'm ACE, and I'll be asking about your company's callout procedures so we can configure them accurately. This usually takes 10-15 minutes, and you can ask for help or an example at any point.\n\n**%s**",
		first.Text)
	prompt := fmt.Sprintf("Greet a new respondent%s and explain you'll walk them through questions about their callout process. Then ask: %s", forCompany(sess), first.Text)
	return r.generate(ctx, sess.ID, prompt, first.Text, fallback)
}

// Ack acknowledges an answer and asks the next question.
func (r *Responder) Ack(ctx context.Context, sess *models.Session, userMsg string, next registry.Question) string {
	fallback := fmt.Sprintf("Thanks, that helps.\n\n**%s**", next.Text)
	prompt := fmt.Sprintf("The respondent just said: %q. Briefly acknowledge it, then ask: %s", userMsg, next.Text)
	return r.generate(ctx, sess.ID, prompt, next.Text, fallback)
}

// Help explains the outstanding question and then repeats it verbatim, so the
// respondent is always returned to the exact question they stalled on.
func (r *Responder) Help(ctx context.Context, sess *models.Session, q registry.Question) string {
	fallback := fmt.Sprintf("%s\n\nTo continue with our question: **%s**", helpText(q.Topic), q.Text)
	prompt := fmt.Sprintf("The respondent asked for help with this question: %q. Explain in plain terms what it is asking and why it matters for callout configuration. Then repeat the question exactly: %s", q.Text, q.Text)
	return r.generate(ctx, sess.ID, prompt, q.Text, fallback)
}

// Example gives a sample answer for the outstanding question, clearly marked
// as illustration, then repeats the question verbatim.
func (r *Responder) Example(ctx context.Context, sess *models.Session, q registry.Question) string {
	fallback := fmt.Sprintf("For example: %s\n\nTo continue with our question: **%s**", exampleText(q.Topic), q.Text)
	prompt := fmt.Sprintf("The respondent asked for an example answer to: %q. Give one short, plausible example from a utility company, prefixed with \"For example:\" so it is clearly an illustration. Then repeat the question exactly: %s", q.Text, q.Text)
	return r.generate(ctx, sess.ID, prompt, q.Text, fallback)
}

// Reprompt handles an ambiguous message: ask the same question again without
// advancing.
func (r *Responder) Reprompt(ctx context.Context, sess *models.Session, q registry.Question) string {
	fallback := fmt.Sprintf("I want to make sure I capture this correctly. Could you tell me a bit more?\n\n**%s**", q.Text)
	prompt := fmt.Sprintf("The respondent's reply was too brief to record. Gently ask them to elaborate, then repeat the question exactly: %s", q.Text)
	return r.generate(ctx, sess.ID, prompt, q.Text, fallback)
}

// TransientFailure reports a temporary processing problem and re-emits the
// outstanding question. Deterministic by necessity: when this reply is needed
// the generation service is already failing.
func (r *Responder) TransientFailure(q registry.Question) string {
	return fmt.Sprintf("Sorry, I'm having trouble processing that right now. Please send it again in a moment.\n\n**%s**", q.Text)
}

// PrematureSummary declines an early summary request, names what is missing,
// and resumes with the next question.
func (r *Responder) PrematureSummary(sess *models.Session, missing []models.Topic, next registry.Question) string {
	names := make([]string, len(missing))
	for i, t := range missing {
		names[i] = t.DisplayName()
	}
	return fmt.Sprintf("We're close, but I still need to cover: %s. Let's keep going.\n\n**%s**",
		strings.Join(names, ", "), next.Text)
}

// generate runs one prose generation, falling back to deterministic text on
// failure or when the model drops the question it was required to repeat.
func (r *Responder) generate(ctx context.Context, sessionID, prompt, mustContain, fallback string) string {
	out, err := r.ai.GeneratePromptWithContext(ctx, responderSystemPrompt, prompt)
	if err != nil {
		slog.Warn("flow.Responder: generation failed, using fallback", "sessionID", sessionID, "error", err)
		return fallback
	}
	out = strings.TrimSpace(out)
	if out == "" || !strings.Contains(out, mustContain) {
		slog.Warn("flow.Responder: generation dropped the question text, using fallback", "sessionID", sessionID)
		return fallback
	}
	return out
}

// forCompany formats an optional company clause for the greeting prompt.
func forCompany(sess *models.Session) string {
	if sess.Company == "" {
		return ""
	}
	return " from " + sess.Company
}

// helpText is the canned per-topic clarification used when generation is
// unavailable.
func helpText(topic models.Topic) string {
	switch topic {
	case models.TopicBasicInfo:
		return "I'm asking about the situation that triggers this callout, such as an outage, a leak, or storm damage, and how often it comes up."
	case models.TopicStaffingDetails:
		return "I'm asking how many people you need for this callout and which job classifications they come from."
	case models.TopicContactProcess:
		return "I'm asking how you reach employees: who gets called first, on which devices, and in what order."
	case models.TopicListManagement:
		return "I'm asking how your callout lists are organized and how you move through them when calling."
	case models.TopicInsufficientStaffing:
		return "I'm asking what you do when not enough employees accept the callout."
	case models.TopicCallingLogistics:
		return "I'm asking about the mechanics of calling: whether several employees or devices can be called at once, and how declines are handled."
	case models.TopicListChanges:
		return "I'm asking whether the order or membership of your lists changes over time, and what drives those changes."
	case models.TopicTiebreakers:
		return "I'm asking how you break ties when two employees are equal under your ordering rule, for example equal overtime hours."
	case models.TopicAdditionalRules:
		return "I'm asking about any other rules around callouts, such as blackout windows near shifts or excused declines."
	default:
		return "I'm asking about your company's callout procedure for this area."
	}
}

// exampleText is the canned per-topic sample answer used when generation is
// unavailable.
func exampleText(topic models.Topic) string {
	switch topic {
	case models.TopicBasicInfo:
		return "\"This callout is for after-hours water main breaks; we get two or three a month.\""
	case models.TopicStaffingDetails:
		return "\"We need four people: two linemen, one crew lead, and one apprentice.\""
	case models.TopicContactProcess:
		return "\"We call the on-call supervisor first on their cell, then work down the crew list.\""
	case models.TopicListManagement:
		return "\"We keep one list per classification, ordered by overtime, and call straight down it.\""
	case models.TopicInsufficientStaffing:
		return "\"If we come up short we move to the neighboring district's list after 30 minutes.\""
	case models.TopicCallingLogistics:
		return "\"We call one employee at a time but ring both their cell and home phone together.\""
	case models.TopicListChanges:
		return "\"The list order refreshes every pay period when overtime totals update.\""
	case models.TopicTiebreakers:
		return "\"Equal overtime goes to seniority first, then alphabetical by last name.\""
	case models.TopicAdditionalRules:
		return "\"We never call within two hours of someone's next scheduled shift.\""
	default:
		return "\"We follow our standard callout procedure for this.\""
	}
}
