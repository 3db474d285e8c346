// Package summary assembles the final questionnaire summary from recorded
// answers, grouped by topic in priority order. It formats; it never decides
// completeness, which belongs to the coverage gate.
package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
)

// Item is one question/answer pair in the summary.
type Item struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Response   string `json:"response"`
}

// Section groups the items of one topic.
type Section struct {
	Topic   models.Topic `json:"topic"`
	Title   string       `json:"title"`
	Skipped bool         `json:"skipped,omitempty"`
	Items   []Item       `json:"items,omitempty"`
}

// Summary is the structured final report for a completed session.
type Summary struct {
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name,omitempty"`
	Company     string    `json:"company,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Build assembles a summary from a session and its recorded answers. Topics
// appear in the branch priority order; topics skipped by a conditional rule
// are listed as not applicable rather than silently dropped.
func Build(reg *registry.Registry, sess *models.Session, answers []models.Answer) Summary {
	byQuestion := make(map[string]models.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	s := Summary{
		SessionID:   sess.ID,
		Name:        sess.Name,
		Company:     sess.Company,
		Branch:      string(sess.Branch),
		GeneratedAt: time.Now(),
	}
	for _, topic := range reg.PriorityOrder(sess.Branch) {
		sec := Section{Topic: topic, Title: topic.DisplayName()}
		if sess.Coverage[topic] == models.CoverageSkipped {
			sec.Skipped = true
			s.Sections = append(s.Sections, sec)
			continue
		}
		for _, q := range reg.RequiredQuestions(topic) {
			a, ok := byQuestion[q.ID]
			if !ok {
				continue
			}
			sec.Items = append(sec.Items, Item{QuestionID: q.ID, Question: q.Text, Response: a.Response})
		}
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// RenderMarkdown renders the summary as the markdown report shown to the
// respondent and attached to export emails.
func RenderMarkdown(s Summary) string {
	var b strings.Builder
	b.WriteString("# Callout Procedure Summary\n\n")
	if s.Company != "" {
		fmt.Fprintf(&b, "**Company:** %s\n", s.Company)
	}
	if s.Name != "" {
		fmt.Fprintf(&b, "**Contact:** %s\n", s.Name)
	}
	if s.Branch != "" {
		fmt.Fprintf(&b, "**Utility type:** %s\n", s.Branch)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n\n", s.GeneratedAt.Format("January 2, 2006"))
	for _, sec := range s.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if sec.Skipped {
			b.WriteString("_Not applicable for this company._\n\n")
			continue
		}
		if len(sec.Items) == 0 {
			b.WriteString("_No responses recorded._\n\n")
			continue
		}
		for _, item := range sec.Items {
			fmt.Fprintf(&b, "- **%s**\n  %s\n", item.Question, strings.TrimSpace(item.Response))
		}
		b.WriteString("\n")
	}
	return b.String()
}
