package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huddlehq/huddle/backend/pkg/logger"
)

const (
	// AITrigger marks a chat message as addressed to the assistant.
	AITrigger = "@ai"
	// AISender is the sender tag on assistant replies.
	AISender = "AI"

	// clientBuffer is the per-connection send buffer; slow clients drop
	// messages rather than stall the room.
	clientBuffer = 100

	generateTimeout = 60 * time.Second
)

// ChatMessage is a transient room message. Timestamps are server-assigned.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RoomClient is one live connection bound to a room. The transport layer
// drains Send and writes to the wire.
type RoomClient struct {
	ID     string
	RoomID string
	UserID uint
	Email  string
	Send   chan ChatMessage
}

// Hub fans chat messages out within rooms and interleaves assistant replies
// for @ai mentions. Room membership is in-memory only and rebuilt on each
// handshake.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*RoomClient]bool
	generator Generator
}

func NewHub(generator Generator) *Hub {
	return &Hub{
		rooms:     make(map[string]map[*RoomClient]bool),
		generator: generator,
	}
}

// Join registers a new client in the room and returns it.
func (h *Hub) Join(roomID string, userID uint, email string) *RoomClient {
	client := &RoomClient{
		ID:     uuid.New().String(),
		RoomID: roomID,
		UserID: userID,
		Email:  email,
		Send:   make(chan ChatMessage, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*RoomClient]bool)
		h.rooms[roomID] = room
	}
	room[client] = true
	return client
}

// Leave removes a client and closes its send channel.
func (h *Hub) Leave(client *RoomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}
	if room[client] {
		delete(room, client)
		close(client.Send)
	}
	if len(room) == 0 {
		delete(h.rooms, client.RoomID)
	}
}

// RoomSize returns the number of live connections in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// HandleMessage processes one inbound message from a client: broadcast to
// the rest of the room, then, for @ai mentions, kick off a detached
// generation whose reply goes to the whole room. The human broadcast always
// completes before the assistant reply is dispatched; generation never
// blocks intake of further messages.
func (h *Hub) HandleMessage(client *RoomClient, body string) {
	msg := ChatMessage{
		Sender:    client.Email,
		Message:   body,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	h.broadcast(client.RoomID, msg, client)

	if !strings.Contains(body, AITrigger) {
		return
	}

	prompt := strings.TrimSpace(strings.ReplaceAll(body, AITrigger, ""))
	go h.generateReply(client.RoomID, prompt)
}

// generateReply asks the language model for a reply and broadcasts it to the
// whole room, original sender included. Failures are soft: logged, nothing
// sent. A reply to a room that emptied in the meantime goes nowhere at no
// cost.
func (h *Hub) generateReply(roomID, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	text, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Error().Err(err).Str("room", roomID).Msg("assistant generation failed")
		LogError("chat", "ai_reply", "assistant generation failed", nil, map[string]interface{}{
			"room":  roomID,
			"error": err.Error(),
		})
		return
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn().Str("room", roomID).Msg("assistant returned empty reply, dropping")
		return
	}

	h.broadcast(roomID, ChatMessage{
		Sender:    AISender,
		Message:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil)
}

// broadcast delivers msg to every client in the room except exclude. Sends
// are non-blocking; a client with a full buffer misses the message.
func (h *Hub) broadcast(roomID string, msg ChatMessage, exclude *RoomClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		if client == exclude {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			logger.Warn().Str("client", client.ID).Str("room", roomID).Msg("client buffer full, message dropped")
		}
	}
}
