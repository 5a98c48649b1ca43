package dashboard

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/paper2code/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"`       // "message" or "history"
	SessionID string `json:"session_id"` // empty for new sessions
	Content   string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string         `json:"type"` // "response", "history" or "error"
	SessionID string         `json:"session_id"`
	Content   string         `json:"content,omitempty"`
	Turns     []session.Turn `json:"turns,omitempty"`
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("dashboard: websocket read: %v", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.sendError(conn, "", "invalid message format")
			continue
		}

		switch req.Type {
		case "message":
			if req.Content == "" {
				d.sendError(conn, req.SessionID, "content is required")
				continue
			}
			d.handleChatMessage(conn, r, req)
		case "history":
			d.handleHistory(conn, r, req)
		default:
			d.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
		}
	}
}

func (d *Dashboard) handleChatMessage(conn *websocket.Conn, r *http.Request, req chatRequest) {
	reply, err := d.manager.Chat(r.Context(), req.SessionID, req.Content)
	if err != nil {
		_, msg := session.PublicError(err)
		d.sendError(conn, req.SessionID, msg)
		return
	}

	d.sendResponse(conn, chatResponse{
		Type:      "response",
		SessionID: reply.SessionID,
		Content:   reply.Response,
	})
}

func (d *Dashboard) handleHistory(conn *websocket.Conn, r *http.Request, req chatRequest) {
	sess, err := d.manager.Session(r.Context(), req.SessionID)
	if err != nil {
		_, msg := session.PublicError(err)
		d.sendError(conn, req.SessionID, msg)
		return
	}
	d.sendResponse(conn, chatResponse{
		Type:      "history",
		SessionID: sess.ID,
		Turns:     sess.Turns,
	})
}

func (d *Dashboard) sendResponse(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("dashboard: websocket write: %v", err)
	}
}

func (d *Dashboard) sendError(conn *websocket.Conn, sessionID, message string) {
	resp := chatResponse{
		Type:      "error",
		SessionID: sessionID,
		Content:   message,
	}
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("dashboard: websocket write error: %v", err)
	}
}
