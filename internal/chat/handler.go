package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"go-market/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Store is everything the websocket and REST surfaces need from the
// message store.
type Store interface {
	MessageStore
	Subscribe(ctx context.Context, userID int64) (Notifications, error)
	GetByID(ctx context.Context, id int64) (*Message, error)
	UpdateContent(ctx context.Context, id int64, content string) (*Message, error)
	Delete(ctx context.Context, id int64) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ServeWs accepts one live connection for the authenticated user.
// The subscription is opened before the session exists, so no message can
// slip between replay and live delivery. A second connection for the same
// user is just another session with its own subscription.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	notifs, err := h.store.Subscribe(r.Context(), userID)
	if err != nil {
		log.Printf("session user=%d: subscribe: %v", userID, err)
		conn.Close()
		return
	}

	session := NewSession(userID, conn, h.store, notifs)
	// The session outlives this request; Upgrade hijacked the connection.
	go session.Run(context.Background())
}

// SendMessage is the HTTP path for creating a message. Same append+notify
// step as the socket, so a connected receiver sees it live.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var in wsMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.store.Append(r.Context(), MessageInput{
		SenderID:   userID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
	})
	if err != nil {
		http.Error(w, "could not send message", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// GetHistory returns the full conversation between the caller and ?peer=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	peer, err := strconv.ParseInt(r.URL.Query().Get("peer"), 10, 64)
	if err != nil {
		http.Error(w, "invalid peer id", http.StatusBadRequest)
		return
	}

	msgs, err := h.store.History(r.Context(), userID, peer)
	if err != nil {
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}

// GetContacts returns the ids of everyone the caller has messaged with.
func (h *Handler) GetContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peers, err := h.store.Contacts(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not load contacts", http.StatusInternalServerError)
		return
	}
	if peers == nil {
		peers = []int64{}
	}
	json.NewEncoder(w).Encode(peers)
}

// UpdateMessage rewrites the content of the caller's own message.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load message", http.StatusInternalServerError)
		return
	}
	if msg.SenderID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.store.UpdateContent(r.Context(), id, body.Content)
	if err != nil {
		http.Error(w, "could not update message", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(updated)
}

// DeleteMessage removes the caller's own message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	msg, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load message", http.StatusInternalServerError)
		return
	}
	if msg.SenderID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		http.Error(w, "could not delete message", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
