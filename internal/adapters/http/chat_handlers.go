package httpadapter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const defaultSearchLimit = 20

type chatRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

// chat answers 200 for every well-formed request; pipeline failures surface as
// answer text rather than status codes.
func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	writeJSON(w, http.StatusOK, rt.svc.Chat.Answer(r.Context(), req.Question, userID))
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := rt.svc.Chat.History(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type questionRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit"`
}

func (rt *Router) intent(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Parser.Parse(req.Question))
}

type searchResponse struct {
	Intent       domain.QueryIntent    `json:"intent"`
	Results      []domain.SearchResult `json:"results"`
	Tier         domain.RetrievalTier  `json:"tier"`
	TotalMatches int                   `json:"total_matches"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	intent := rt.svc.Parser.Parse(req.Question)
	outcome := rt.svc.Retriever.Retrieve(r.Context(), intent, req.Question, req.Limit)
	writeJSON(w, http.StatusOK, searchResponse{
		Intent:       intent,
		Results:      outcome.Results,
		Tier:         outcome.Tier,
		TotalMatches: outcome.TotalMatches,
	})
}
