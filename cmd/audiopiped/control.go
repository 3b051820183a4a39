package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// controlHandler serves a WebSocket endpoint that accepts JSON
// parameter-change commands for a live session, in the same
// type-dispatched command shape the project's audio extension manager
// uses for its own control-plane messages.
type controlHandler struct {
	sessions *sessionTable
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func newControlHandler(sessions *sessionTable, logger *log.Logger) *controlHandler {
	return &controlHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type controlMessage struct {
	Type    string    `json:"type"`
	SSRC    uint32    `json:"ssrc"`
	GainDB  float64   `json:"gain_db"`
	EQGains []float64 `json:"eq_gains"`
}

func (h *controlHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("control: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := h.dispatch(msg); err != nil {
			h.sendError(conn, err)
			continue
		}
		h.sendAck(conn, msg)
	}
}

func (h *controlHandler) dispatch(msg controlMessage) error {
	switch msg.Type {
	case "set_pre_gain":
		return h.withSession(msg.SSRC, func(s *session) error {
			s.pipeline.SetPreGain(msg.GainDB)
			return nil
		})
	case "set_post_gain":
		return h.withSession(msg.SSRC, func(s *session) error {
			s.pipeline.SetPostGain(msg.GainDB)
			return nil
		})
	case "set_eq_gains":
		return h.withSession(msg.SSRC, func(s *session) error {
			return s.pipeline.SetEQGains(msg.EQGains)
		})
	default:
		return fmt.Errorf("unknown control message type: %s", msg.Type)
	}
}

func (h *controlHandler) withSession(ssrc uint32, fn func(*session) error) error {
	var fnErr error
	found := h.sessions.withSession(ssrc, func(s *session) {
		fnErr = fn(s)
	})
	if !found {
		return fmt.Errorf("no active session for ssrc %d", ssrc)
	}
	return fnErr
}

func (h *controlHandler) sendAck(conn *websocket.Conn, msg controlMessage) {
	_ = conn.WriteJSON(map[string]any{
		"type": msg.Type + "_ack",
		"ssrc": msg.SSRC,
	})
}

func (h *controlHandler) sendError(conn *websocket.Conn, err error) {
	payload, marshalErr := json.Marshal(map[string]any{
		"type":  "error",
		"error": err.Error(),
	})
	if marshalErr != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}
