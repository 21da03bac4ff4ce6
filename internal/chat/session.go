package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum frame size allowed from peer.
)

// MessageStore is the slice of the repository a session needs.
type MessageStore interface {
	Append(ctx context.Context, in MessageInput) (*Message, error)
	History(ctx context.Context, userA, userB int64) ([]*Message, error)
	Contacts(ctx context.Context, userID int64) ([]int64, error)
}

// Session owns one user's live socket: a read pump that persists incoming
// frames and a write pump that replays history, then streams live messages.
type Session struct {
	userID int64
	conn   *websocket.Conn
	store  MessageStore
	notifs Notifications
}

// NewSession wires one authenticated connection. notifs must already be
// subscribed, so nothing published during replay can be missed.
func NewSession(userID int64, conn *websocket.Conn, store MessageStore, notifs Notifications) *Session {
	return &Session{
		userID: userID,
		conn:   conn,
		store:  store,
		notifs: notifs,
	}
}

// Run starts both pumps and blocks until the session is torn down. Either
// pump exiting cancels the other; the shared cancel closes the socket and
// the listener so a parked read or Receive unblocks.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readPump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.writePump(ctx)
	}()
	go func() {
		<-ctx.Done()
		s.notifs.Close()
		s.conn.Close()
	}()
	wg.Wait()
}

// readPump pumps creation frames from the socket into the store.
// Malformed input and failed inserts are logged and skipped; only
// transport errors end the pump.
func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("session user=%d: read: %v", s.userID, err)
			}
			return
		}

		var in wsMessage
		if err := json.Unmarshal(frame, &in); err != nil {
			log.Printf("session user=%d: malformed frame: %v", s.userID, err)
			continue
		}
		_, err = s.store.Append(ctx, MessageInput{
			SenderID:   s.userID,
			ReceiverID: in.ReceiverID,
			Content:    in.Content,
		})
		if err != nil {
			log.Printf("session user=%d: append failed: %v", s.userID, err)
			continue
		}
	}
}

// writePump replays the backlog, then forwards live notifications until the
// session dies. A failed replay or a failed send is fatal to the session;
// no error frame precedes the close.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := s.replayBacklog(ctx); err != nil {
		if ctx.Err() == nil {
			log.Printf("session user=%d: replay: %v", s.userID, err)
		}
		return
	}

	// Live from here on. Receive blocks indefinitely between messages, so it
	// runs on its own goroutine and feeds the select that also keeps the
	// heartbeat going.
	msgs := make(chan *Message)
	errs := make(chan error, 1)
	go func() {
		for {
			msg, err := s.notifs.Receive(ctx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-msgs:
			if err := s.writeMessage(msg); err != nil {
				log.Printf("session user=%d: send: %v", s.userID, err)
				return
			}
		case err := <-errs:
			if ctx.Err() == nil {
				log.Printf("session user=%d: notifications: %v", s.userID, err)
			}
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// replayBacklog streams every prior conversation to the socket,
// contact-by-contact, each in ascending message id order.
func (s *Session) replayBacklog(ctx context.Context) error {
	contacts, err := s.store.Contacts(ctx, s.userID)
	if err != nil {
		return err
	}
	for _, peer := range contacts {
		msgs, err := s.store.History(ctx, s.userID, peer)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := s.writeMessage(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) writeMessage(msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}
