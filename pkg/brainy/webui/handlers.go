package webui

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleChat runs a single web conversation turn.
// POST /api/chat {history, message} → {reply}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body struct {
		History []ChatTurn `json:"history"`
		Message string     `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
		return
	}

	reply, err := s.api.WebChat(r.Context(), body.Message, body.History)
	if err != nil {
		s.logger.Error("web chat failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get response from AI"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleStatus reports the messaging link status.
// GET /api/whatsapp/status → {status, qr}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	status, code := s.api.MessagingStatus()
	resp := map[string]any{"status": status, "qr": nil}
	if code != "" {
		resp["qr"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDisconnect unlinks the messaging session.
// POST /api/whatsapp/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := s.api.DisconnectMessaging(r.Context()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Client is not connected."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully disconnected."})
}

// handleSettings reads or updates the operating mode.
// GET /api/settings → {mode}; POST /api/settings {mode}
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"mode": s.api.Mode()})

	case http.MethodPost:
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid mode specified."})
			return
		}
		if err := s.api.SetMode(body.Mode); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid mode specified."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Mode switched to %s", body.Mode),
			"mode":    body.Mode,
		})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleRestart re-establishes the messaging connection. Responds before the
// restart completes; clients poll /api/whatsapp/status for progress.
// POST /api/restart
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	s.api.Restart()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Restart initiated. Monitor UI for status changes."})
}
