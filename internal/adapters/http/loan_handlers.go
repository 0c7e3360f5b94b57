package httpadapter

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

func (rt *Router) createLoan(w http.ResponseWriter, r *http.Request) {
	var rec domain.LoanRecord
	if !decodeJSON(w, r, &rec) {
		return
	}
	created, err := rt.svc.Loans.Create(r.Context(), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) listLoans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	records, err := rt.svc.Loans.List(r.Context(), query.Get("field"), query.Get("value"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": records, "count": len(records)})
}

func (rt *Router) getLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := rt.svc.Loans.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get loan", errors.New(id)))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) updateLoan(w http.ResponseWriter, r *http.Request) {
	var patch domain.LoanPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := rt.svc.Loans.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Indexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "search index is not configured"})
		return
	}
	n, err := rt.svc.Indexer.Reindex(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}
