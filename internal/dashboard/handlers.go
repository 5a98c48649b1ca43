package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/session"
)

// artifactsResponse lists everything a session has produced.
type artifactsResponse struct {
	Session     *session.Session            `json:"session"`
	Analyses    []artifact.PaperAnalysis    `json:"analyses"`
	Code        []artifact.CodeArtifact     `json:"code"`
	Refinements []artifact.RefinementRecord `json:"refinements"`
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.manager.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *Dashboard) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := d.manager.Session(ctx, chi.URLParam(r, "id"))
	if err != nil {
		status, msg := session.PublicError(err)
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}

	store := d.manager.Artifacts()
	analyses, err := store.ListAnalyses(ctx, sess.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	code, err := store.ListCode(ctx, sess.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	refinements, err := store.ListRefinements(ctx, sess.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if analyses == nil {
		analyses = []artifact.PaperAnalysis{}
	}
	if code == nil {
		code = []artifact.CodeArtifact{}
	}
	if refinements == nil {
		refinements = []artifact.RefinementRecord{}
	}

	writeJSON(w, http.StatusOK, artifactsResponse{
		Session:     sess,
		Analyses:    analyses,
		Code:        code,
		Refinements: refinements,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
