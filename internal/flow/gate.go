package flow

import (
	"fmt"
	"strings"

	"github.com/CMCFame/ACEBotV2/internal/coverage"
	"github.com/CMCFame/ACEBotV2/internal/models"
)

// PrematureSummaryError reports a summary request made while topics remain
// uncovered. Missing lists them in priority order.
type PrematureSummaryError struct {
	Missing []models.Topic
}

func (e *PrematureSummaryError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = t.DisplayName()
	}
	return fmt.Sprintf("summary requested with uncovered topics: %s", strings.Join(names, ", "))
}

// CheckSummaryGate is the single guard in front of summary generation: it
// passes only when every topic is covered or skipped. Callers must not emit a
// final summary on any other path.
func CheckSummaryGate(t *coverage.Tracker) error {
	if t.IsComplete() {
		return nil
	}
	return &PrematureSummaryError{Missing: t.UncoveredTopics()}
}
