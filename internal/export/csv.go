// Package export renders completed questionnaires for delivery outside the
// chat: CSV for configuration teams and email for handoff.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/CMCFame/ACEBotV2/internal/summary"
)

// CSV renders a summary as a CSV document with one row per recorded answer.
// Skipped topics appear with a "not applicable" marker so the receiving team
// sees a row for every topic.
func CSV(s summary.Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"company", "contact", "utility_type", "topic", "question_id", "question", "response"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, sec := range s.Sections {
		if sec.Skipped {
			row := []string{s.Company, s.Name, s.Branch, sec.Title, "", "", "not applicable"}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
			continue
		}
		for _, item := range sec.Items {
			row := []string{s.Company, s.Name, s.Branch, sec.Title, item.QuestionID, item.Question, item.Response}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}
