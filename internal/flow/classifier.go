package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/CMCFame/ACEBotV2/internal/genai"
	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
)

// Classification is the structured reading of one user message: what kind of
// utterance it was, which registry questions it answered, which topics it
// fully addressed, and any structured facts it established.
type Classification struct {
	Kind              models.MessageKind
	QuestionsAnswered []string
	TopicsAddressed   []models.Topic
	Quality           models.AnswerQuality
	Name              string
	Company           string
	SingleList        *bool
	OvertimeOrdered   *bool
	UtilityType       string
}

// Classifier determines how a user message relates to the outstanding
// question. Cheap deterministic keyword checks run first; everything else goes
// through a single tool-call generation, kept separate from prose generation
// so coverage decisions never depend on conversational phrasing.
type Classifier struct {
	ai  genai.ClientInterface
	reg *registry.Registry
}

// NewClassifier creates a classifier backed by the given generation client.
func NewClassifier(ai genai.ClientInterface, reg *registry.Registry) *Classifier {
	return &Classifier{ai: ai, reg: reg}
}

// The phrase tables mirror the phrasings respondents actually use when they
// stall on a question. Openers only count at the start of the message and
// closers only at the end; phrases match anywhere on word boundaries. That
// keeps a short substantive answer containing a trigger word ("whoever can
// help fastest") from being rerouted into a detour.
var (
	helpOpeners = []string{"help"}
	helpPhrases = []string{
		"can you help", "please help", "what do you mean", "i don't understand",
		"i dont understand", "not sure what", "i'm confused", "im confused",
		"can you explain", "can you clarify", "what does that mean",
	}

	exampleOpeners = []string{"example"}
	examplePhrases = []string{
		"an example", "for instance", "sample answer", "such as what",
	}

	summaryOpeners = []string{"summary", "summarize"}
	summaryClosers = []string{
		"wrap up", "we're done", "were done", "that's everything",
		"thats everything", "finish up", "all done", "the summary", "a summary",
	}
)

// keywordKind is the deterministic pre-pass. It only fires on short messages;
// a long substantive answer that happens to contain "example" is not a
// request for one.
func keywordKind(msg string) (models.MessageKind, bool) {
	norm := normalizeWords(msg)
	if norm == "" || len(norm) > 80 {
		return "", false
	}
	switch {
	case startsWithWord(norm, helpOpeners) || containsPhrase(norm, helpPhrases):
		return models.KindHelpRequest, true
	case startsWithWord(norm, exampleOpeners) || containsPhrase(norm, examplePhrases):
		return models.KindExampleRequest, true
	case startsWithWord(norm, summaryOpeners) || endsWithPhrase(norm, summaryClosers):
		return models.KindSummaryRequest, true
	}
	return "", false
}

// normalizeWords lowercases the message and reduces it to space-separated
// words, keeping apostrophes so contractions survive.
func normalizeWords(msg string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(msg) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func startsWithWord(norm string, words []string) bool {
	for _, w := range words {
		if norm == w || strings.HasPrefix(norm, w+" ") {
			return true
		}
	}
	return false
}

func containsPhrase(norm string, phrases []string) bool {
	padded := " " + norm + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func endsWithPhrase(norm string, phrases []string) bool {
	for _, p := range phrases {
		if norm == p || strings.HasSuffix(norm, " "+p) {
			return true
		}
	}
	return false
}

// classifyArgs is the JSON argument payload of the classification tool call.
type classifyArgs struct {
	Kind              string   `json:"kind"`
	QuestionsAnswered []string `json:"questions_answered,omitempty"`
	TopicsCovered     []string `json:"topics_covered,omitempty"`
	Quality           string   `json:"quality,omitempty"`
	Name              string   `json:"name,omitempty"`
	Company           string   `json:"company,omitempty"`
	SingleList        *bool    `json:"single_list,omitempty"`
	OvertimeOrdered   *bool    `json:"overtime_ordered,omitempty"`
	UtilityType       string   `json:"utility_type,omitempty"`
}

func classifyTool() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "record_answer_classification",
			Description: openai.String("Record how the user's latest message relates to the callout questionnaire."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"answer", "help_request", "example_request", "summary_request", "ambiguous"},
						"description": "How the message relates to the outstanding question.",
					},
					"questions_answered": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "IDs of questionnaire questions this message substantively answers, including questions other than the outstanding one.",
					},
					"topics_covered": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Topic IDs the message fully addresses, leaving nothing worth asking.",
					},
					"quality": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"complete", "partial", "unclear"},
						"description": "How completely the message answers the outstanding question.",
					},
					"name":    map[string]interface{}{"type": "string", "description": "Respondent's name, if stated."},
					"company": map[string]interface{}{"type": "string", "description": "Respondent's company, if stated."},
					"single_list": map[string]interface{}{
						"type":        "boolean",
						"description": "True if the respondent states they use exactly one callout list, false if they describe multiple lists.",
					},
					"overtime_ordered": map[string]interface{}{
						"type":        "boolean",
						"description": "True if lists are ordered by overtime hours, false if the respondent rules that out.",
					},
					"utility_type": map[string]interface{}{
						"type":        "string",
						"description": "Utility branch if stated: electric, water, or gas.",
					},
				},
				"required": []string{"kind"},
			},
		},
	}
}

// Classify determines how userMsg relates to the outstanding question.
func (c *Classifier) Classify(ctx context.Context, sess *models.Session, outstanding registry.Question, userMsg string, transcript []models.Message) (Classification, error) {
	if kind, ok := keywordKind(userMsg); ok {
		return Classification{Kind: kind}, nil
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.systemPrompt(sess, outstanding)),
	}
	for _, m := range tailMessages(transcript, 10) {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMsg))

	resp, err := c.ai.GenerateWithTools(ctx, messages, []openai.ChatCompletionToolParam{classifyTool()})
	if err != nil {
		return Classification{}, fmt.Errorf("classification failed: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != "record_answer_classification" {
			continue
		}
		var args classifyArgs
		if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
			return Classification{}, fmt.Errorf("failed to decode classification arguments: %w", err)
		}
		return c.fromArgs(sess, outstanding, args), nil
	}
	// No tool call: the model answered in prose, so there is no structured
	// coverage signal for this turn. Treated like any other generation
	// failure; coverage must never advance on a guess.
	slog.Warn("flow.Classify: no classification tool call returned", "sessionID", sess.ID, "questionID", outstanding.ID)
	return Classification{}, fmt.Errorf("classification returned no tool call")
}

// fromArgs validates the tool arguments against the registry and converts
// them to a Classification. Unknown question or topic IDs are dropped, not
// trusted.
func (c *Classifier) fromArgs(sess *models.Session, outstanding registry.Question, args classifyArgs) Classification {
	cls := Classification{
		Kind:            models.MessageKind(args.Kind),
		Quality:         models.AnswerQuality(args.Quality),
		Name:            strings.TrimSpace(args.Name),
		Company:         strings.TrimSpace(args.Company),
		SingleList:      args.SingleList,
		OvertimeOrdered: args.OvertimeOrdered,
	}
	switch cls.Kind {
	case models.KindAnswer, models.KindHelpRequest, models.KindExampleRequest, models.KindSummaryRequest, models.KindAmbiguous:
	default:
		cls.Kind = models.KindAmbiguous
	}
	switch cls.Quality {
	case models.QualityComplete, models.QualityPartial, models.QualityUnclear:
	default:
		cls.Quality = models.QualityComplete
	}
	if models.IsValidBranch(models.UtilityBranch(args.UtilityType)) {
		cls.UtilityType = args.UtilityType
	}
	for _, id := range args.QuestionsAnswered {
		if _, ok := c.reg.Question(id); ok {
			cls.QuestionsAnswered = append(cls.QuestionsAnswered, id)
		} else {
			slog.Warn("flow.Classify: classifier returned unknown question ID", "sessionID", sess.ID, "questionID", id)
		}
	}
	for _, t := range args.TopicsCovered {
		topic := models.Topic(t)
		if models.IsValidTopic(topic) {
			cls.TopicsAddressed = append(cls.TopicsAddressed, topic)
		} else {
			slog.Warn("flow.Classify: classifier returned unknown topic", "sessionID", sess.ID, "topic", t)
		}
	}
	// An answer of unclear quality that addresses nothing is an ambiguous
	// message: the controller re-prompts without advancing coverage.
	if cls.Kind == models.KindAnswer && len(cls.QuestionsAnswered) == 0 && len(cls.TopicsAddressed) == 0 {
		if cls.Quality == models.QualityUnclear {
			cls.Kind = models.KindAmbiguous
		} else {
			cls.QuestionsAnswered = []string{outstanding.ID}
		}
	}
	return cls
}

func (c *Classifier) systemPrompt(sess *models.Session, outstanding registry.Question) string {
	var b strings.Builder
	b.WriteString("You classify messages in a structured interview about utility callout procedures. ")
	b.WriteString("Call record_answer_classification exactly once for the user's latest message. Never reply in prose.\n\n")
	fmt.Fprintf(&b, "Outstanding question (id %s, topic %s): %s\n\n", outstanding.ID, outstanding.Topic, outstanding.Text)
	b.WriteString("All question IDs by topic:\n")
	for _, topic := range c.reg.AllTopics() {
		fmt.Fprintf(&b, "- %s:", topic)
		for _, q := range c.reg.RequiredQuestions(topic) {
			b.WriteString(" " + q.ID)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- kind=answer when the message gives substantive information, even for a question other than the outstanding one.\n")
	b.WriteString("- A single message may answer several questions across topics; list every question ID it answers.\n")
	b.WriteString("- Only list a topic in topics_covered when the message addresses it so completely that asking its remaining questions would be redundant.\n")
	b.WriteString("- kind=ambiguous for messages too brief or vague to record, such as \"ok\" or \"sure\".\n")
	b.WriteString("- Set single_list, overtime_ordered, and utility_type only when the message states them explicitly.\n")
	if sess.Name == "" {
		b.WriteString("- Extract name and company when introduced.\n")
	}
	return b.String()
}

// tailMessages returns up to n of the most recent transcript messages.
func tailMessages(transcript []models.Message, n int) []models.Message {
	if len(transcript) <= n {
		return transcript
	}
	return transcript[len(transcript)-n:]
}
