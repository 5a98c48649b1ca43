package report

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/paper2code/internal/artifact"
)

// RegisterRoutes mounts the report routes. Both accept ?format=md|html
// and default to markdown.
func RegisterRoutes(r chi.Router, store *artifact.Store) {
	renderer := NewRenderer()
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/evaluations/{id}", handleEvaluation(store, renderer))
		r.Get("/refinements/{code_id}", handleRefinement(store, renderer))
	})
}

func handleEvaluation(store *artifact.Store, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := store.GetEvaluation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			log.Printf("report: loading evaluation: %v", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if e == nil {
			http.Error(w, `{"error":"evaluation not found"}`, http.StatusNotFound)
			return
		}
		code, err := store.GetCode(r.Context(), e.CodeID)
		if err != nil || code == nil {
			log.Printf("report: loading code %s: %v", e.CodeID, err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		write(w, r, renderer, "Evaluation report", Evaluation(code, e))
	}
}

func handleRefinement(store *artifact.Store, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codeID := chi.URLParam(r, "code_id")
		lineage, err := store.Lineage(r.Context(), codeID)
		if err != nil {
			log.Printf("report: loading lineage of %s: %v", codeID, err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		if len(lineage) == 0 {
			http.Error(w, `{"error":"code not found"}`, http.StatusNotFound)
			return
		}
		history, err := store.History(r.Context(), codeID)
		if err != nil {
			log.Printf("report: loading history of %s: %v", codeID, err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		write(w, r, renderer, "Refinement process", Refinement(lineage, history))
	}
}

func write(w http.ResponseWriter, r *http.Request, renderer *Renderer, title, markdown string) {
	if r.URL.Query().Get("format") == "html" {
		page, err := renderer.HTML(title, markdown)
		if err != nil {
			log.Printf("report: %v", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(markdown))
}
