package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CMCFame/ACEBotV2/internal/coverage"
	"github.com/CMCFame/ACEBotV2/internal/export"
	"github.com/CMCFame/ACEBotV2/internal/flow"
	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/summary"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Service is healthy", nil))
}

// sessionStartResult is the payload returned when a session is created.
type sessionStartResult struct {
	Session *models.Session `json:"session"`
	Reply   string          `json:"reply"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	sess, reply, err := s.ctrl.StartSession(r.Context(), req)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to start session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "sessionID", sess.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionStartResult{Session: sess, Reply: reply}))
}

// sessionDetail bundles a session with its transcript.
type sessionDetail struct {
	Session  *models.Session  `json:"session"`
	Messages []models.Message `json:"messages"`
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.st.GetSession(id)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load session", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	messages, err := s.st.GetMessages(id)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load transcript", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load transcript"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionDetail{Session: sess, Messages: messages}))
}

func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")
	var req models.SessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postMessageHandler: failed to decode JSON", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// One turn at a time per session; concurrent sessions are independent.
	lock := s.lockSession(id)
	defer s.unlockSession(id, lock)

	result, err := s.ctrl.HandleMessage(r.Context(), id, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrSessionDone):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session already completed"))
		default:
			slog.Error("Server.postMessageHandler: turn failed", "error", err, "sessionID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	progress, err := s.ctrl.Progress(id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.progressHandler: failed to compute progress", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(progress))
}

// prematureSummaryResult names the topics blocking an early summary.
type prematureSummaryResult struct {
	MissingTopics []string `json:"missing_topics"`
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	lock := s.lockSession(id)
	defer s.unlockSession(id, lock)

	md, err := s.ctrl.Summary(r.Context(), id)
	if err != nil {
		var pse *flow.PrematureSummaryError
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.As(err, &pse):
			missing := make([]string, len(pse.Missing))
			for i, t := range pse.Missing {
				missing[i] = t.DisplayName()
			}
			resp := models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage("Questionnaire is not complete").
				WithResult(prematureSummaryResult{MissingTopics: missing}).
				Build()
			writeJSONResponse(w, http.StatusConflict, resp)
		default:
			slog.Error("Server.summaryHandler: failed to build summary", "error", err, "sessionID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to build summary"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"summary": md}))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.st.GetSession(id)
	if err != nil {
		slog.Error("Server.exportHandler: failed to load session", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	// Exports go through the same gate as summaries: no partial reports.
	tracker := coverage.NewTracker(s.reg, sess, nil)
	if err := flow.CheckSummaryGate(tracker); err != nil {
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	}
	answers, err := s.st.GetAnswers(id)
	if err != nil {
		slog.Error("Server.exportHandler: failed to load answers", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load answers"))
		return
	}
	sum := summary.Build(s.reg, sess, answers)

	if to := r.URL.Query().Get("email"); to != "" {
		if s.mailer == nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Email export is not configured"))
			return
		}
		if err := s.mailer.SendSummary([]string{to}, sum, summary.RenderMarkdown(sum)); err != nil {
			slog.Error("Server.exportHandler: failed to email summary", "error", err, "sessionID", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to email summary"))
			return
		}
		slog.Info("Server.exportHandler: summary emailed", "sessionID", id, "to", to)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Summary emailed", nil))
		return
	}

	data, err := export.CSV(sum)
	if err != nil {
		slog.Error("Server.exportHandler: failed to render CSV", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to render CSV"))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "callout_questionnaire_"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.exportHandler: failed to write CSV", "error", err, "sessionID", id)
	}
}
