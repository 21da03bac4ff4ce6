package chat

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

// Message is one row of the append-only messages table.
// ID is assigned by the store on insert and is the authoritative ordering
// key; SentAt (unix seconds, also store-assigned) is advisory only.
type Message struct {
	ID         int64  `json:"message_id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	SentAt     int64  `json:"sent_at"`
}

// MessageInput is what callers provide; the store fills in the rest.
type MessageInput struct {
	SenderID   int64
	ReceiverID int64
	Content    string
}

// ---------------------------------------------
// Wire Models
// ---------------------------------------------

// wsMessage is the creation frame a client sends over the socket.
// The sender is always the authenticated user, never the payload.
type wsMessage struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}
