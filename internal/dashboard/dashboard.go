// Package dashboard serves the browser UI: a chat over websocket plus
// read-only views of a session's artifacts.
package dashboard

import (
	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/paper2code/internal/session"
)

// Dashboard provides the chat-first dashboard.
type Dashboard struct {
	manager *session.Manager
}

// New creates a new Dashboard.
func New(m *session.Manager) *Dashboard {
	return &Dashboard{manager: m}
}

// RegisterRoutes mounts all dashboard routes onto the given router. The
// websocket route must not sit behind a request timeout.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/api/dashboard/stats", d.handleStats)
	r.Get("/api/dashboard/sessions/{id}/artifacts", d.handleArtifacts)
	r.Get("/ws/chat", d.handleWebSocket)
}
