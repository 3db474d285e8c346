package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/CMCFame/ACEBotV2/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func sampleSession(id string) models.Session {
	now := time.Now().Truncate(time.Second)
	return models.Session{
		ID:      id,
		Name:    "Sam",
		Company: "Acme Utility",
		Branch:  models.BranchElectric,
		Phase:   models.PhaseAwaitingAnswer,
		Cursor:  "name_company",
		Facts:   models.Facts{SingleList: boolPtr(true), UtilityType: "electric"},
		Coverage: map[models.Topic]models.CoverageStatus{
			models.TopicBasicInfo: models.CoverageCovered,
		},
		Answered:  map[string]bool{"name_company": true},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// exerciseStore runs the shared contract tests against any backend.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()

	sess := sampleSession("s1")
	if err := st.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSession returned nil for existing session")
	}
	if got.Name != "Sam" || got.Branch != models.BranchElectric || got.Cursor != "name_company" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.Facts.SingleList == nil || !*got.Facts.SingleList {
		t.Error("facts lost in roundtrip")
	}
	if got.Coverage[models.TopicBasicInfo] != models.CoverageCovered {
		t.Error("coverage lost in roundtrip")
	}
	if !got.Answered["name_company"] {
		t.Error("answered set lost in roundtrip")
	}

	// Upsert: saving again updates in place.
	sess.Phase = models.PhaseDone
	if err := st.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession update failed: %v", err)
	}
	got, _ = st.GetSession("s1")
	if got.Phase != models.PhaseDone {
		t.Errorf("phase after update = %s", got.Phase)
	}

	if missing, err := st.GetSession("absent"); err != nil || missing != nil {
		t.Errorf("GetSession(absent) = %v, %v; want nil, nil", missing, err)
	}

	// Messages get sequential numbering in insertion order.
	for _, content := range []string{"hello", "first answer", "second answer"} {
		if err := st.AddMessage(models.Message{SessionID: "s1", Role: models.RoleUser, Content: content, Timestamp: time.Now()}); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}
	messages, err := st.GetMessages("s1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	for i, m := range messages {
		if m.Seq != i+1 {
			t.Errorf("message %d has seq %d", i, m.Seq)
		}
	}
	if messages[1].Content != "first answer" {
		t.Errorf("message order wrong: %+v", messages)
	}

	// Answers upsert on (session, question).
	answer := models.Answer{
		SessionID:  "s1",
		QuestionID: "name_company",
		Topic:      models.TopicBasicInfo,
		Question:   "Could you please provide your name and company name?",
		Response:   "Sam, Acme Utility",
		Quality:    models.QualityComplete,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
	if err := st.SaveAnswer(answer); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}
	answer.Response = "Sam Jones, Acme Utility"
	if err := st.SaveAnswer(answer); err != nil {
		t.Fatalf("SaveAnswer update failed: %v", err)
	}
	answers, err := st.GetAnswers("s1")
	if err != nil {
		t.Fatalf("GetAnswers failed: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1 after upsert", len(answers))
	}
	if answers[0].Response != "Sam Jones, Acme Utility" {
		t.Errorf("answer not updated: %q", answers[0].Response)
	}

	// ListSessions and DeleteSession.
	if err := st.SaveSession(sampleSession("s2")); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	sessions, err := st.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if err := st.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if got, _ := st.GetSession("s1"); got != nil {
		t.Error("session still present after delete")
	}
	if messages, _ := st.GetMessages("s1"); len(messages) != 0 {
		t.Error("messages still present after delete")
	}
	if answers, _ := st.GetAnswers("s1"); len(answers) != 0 {
		t.Error("answers still present after delete")
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestInMemoryStoreOwnership(t *testing.T) {
	st := NewInMemoryStore()
	sess := sampleSession("s1")
	if err := st.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// Mutating the returned copy must not leak into the store.
	got, _ := st.GetSession("s1")
	got.Answered["extra"] = true
	got.Coverage[models.TopicTiebreakers] = models.CoverageCovered
	*got.Facts.SingleList = false

	again, _ := st.GetSession("s1")
	if again.Answered["extra"] {
		t.Error("answered map shared between store and caller")
	}
	if again.Coverage[models.TopicTiebreakers] == models.CoverageCovered {
		t.Error("coverage map shared between store and caller")
	}
	if !*again.Facts.SingleList {
		t.Error("facts pointer shared between store and caller")
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "select.db")
	st, err := NewStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*SQLiteStore); !ok {
		t.Errorf("NewStore with file path returned %T, want *SQLiteStore", st)
	}
}
