package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/pipeline"
)

const maxUploadBytes = 32 << 20

// TextExtractor pulls plain text out of an uploaded paper.
type TextExtractor interface {
	ExtractText(r io.ReaderAt, size int64) (string, error)
}

// RegisterRoutes mounts the conversation and pipeline API routes.
func RegisterRoutes(r chi.Router, m *Manager, extractor TextExtractor) {
	r.Post("/api/chat", handleChat(m))
	r.Post("/api/upload-paper", handleUpload(m, extractor))
	r.Post("/api/generate-code", handleGenerate(m))
	r.Post("/api/evaluate-implementation", handleEvaluate(m))
	r.Post("/api/refine-implementation", handleRefine(m))
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Get("/", handleSession(m))
		r.Get("/history", handleHistory(m))
	})
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func handleChat(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		reply, err := m.Chat(r.Context(), req.ConversationID, req.Message)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func handleUpload(m *Manager, extractor TextExtractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only .pdf files are accepted"})
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read upload"})
			return
		}
		text, err := extractor.ExtractText(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			log.Printf("session: extracting %s: %v", header.Filename, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not extract text from the PDF"})
			return
		}

		an, err := m.AnalyzePaper(r.Context(), r.FormValue("conversation_id"), text, header.Filename)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"analysis": an, "conversation_id": an.SessionID})
	}
}

type generateRequest struct {
	PaperID        string `json:"paper_id"`
	CodeType       string `json:"code_type"`
	ConversationID string `json:"conversation_id"`
}

func handleGenerate(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		code, err := m.GenerateCode(r.Context(), req.ConversationID, req.PaperID, req.CodeType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"code": code})
	}
}

type evaluateRequest struct {
	PaperID        string `json:"paper_id"`
	CodeID         string `json:"code_id"`
	ConversationID string `json:"conversation_id"`
}

func handleEvaluate(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		e, err := m.Evaluate(r.Context(), req.ConversationID, req.PaperID, req.CodeID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evaluation": e})
	}
}

type refineRequest struct {
	PaperID        string `json:"paper_id"`
	CodeID         string `json:"code_id"`
	Feedback       string `json:"feedback"`
	ConversationID string `json:"conversation_id"`
}

func handleRefine(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		res, err := m.Refine(r.Context(), req.ConversationID, req.PaperID, req.CodeID, req.Feedback)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSession(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Session(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleHistory(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := m.History(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("code_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if history == nil {
			history = []artifact.RefinementRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"refinement_history": history})
	}
}

// PublicError maps err to an HTTP status and a message safe to show to
// clients. Server-side failures are logged here.
func PublicError(err error) (int, string) {
	status, msg := http.StatusInternalServerError, "internal error"

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case pipeline.KindValidation:
			status, msg = http.StatusBadRequest, pe.Name()+": "+pe.Msg
			if errors.Is(err, pipeline.ErrUnknownCodeType) {
				msg = "UnknownCodeType: " + pe.Msg
			}
		case pipeline.KindStateConflict:
			status, msg = http.StatusConflict, pe.Name()+": "+pe.Msg
		case pipeline.KindUpstream:
			status, msg = http.StatusServiceUnavailable, pe.Name()+": the model service is unavailable, try again later"
		default:
			msg = pe.Name() + ": internal error"
		}
	}
	if status >= http.StatusInternalServerError {
		log.Printf("session: %v", err)
	}
	return status, msg
}

// writeError maps a classified error to a status code. Upstream and
// internal details are logged, never returned.
func writeError(w http.ResponseWriter, err error) {
	status, msg := PublicError(err)
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
