package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for lookups of message ids that don't exist.
var ErrNotFound = errors.New("message not found")

// Repository is the durable message store: Postgres for the append-only log,
// Redis pub/sub as the per-recipient notification channel.
type Repository struct {
	db    *sql.DB
	redis *redis.Client
}

func NewRepository(db *sql.DB, redisClient *redis.Client) *Repository {
	return &Repository{db: db, redis: redisClient}
}

// userChannel is the notification channel key for one recipient.
func userChannel(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Append persists a message and publishes the stored row on the receiver's
// channel. Insert and publish share one error path: a failed publish still
// returns an error even though the row is durable and visible in History.
func (r *Repository) Append(ctx context.Context, in MessageInput) (*Message, error) {
	msg := &Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
	}
	query := `INSERT INTO messages (sender_id, receiver_id, content)
	          VALUES ($1, $2, $3) RETURNING id, sent_at`
	err := r.db.QueryRowContext(ctx, query, in.SenderID, in.ReceiverID, in.Content).
		Scan(&msg.ID, &msg.SentAt)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := r.redis.Publish(ctx, userChannel(in.ReceiverID), payload).Err(); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// History returns every message between the two users, either direction,
// ascending by id. A fresh call re-reads current state.
func (r *Repository) History(ctx context.Context, userA, userB int64) ([]*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, sent_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Contacts returns the distinct peers the user has exchanged messages with.
func (r *Repository) Contacts(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	var peers []int64
	for rows.Next() {
		var peer int64
		if err := rows.Scan(&peer); err != nil {
			return nil, fmt.Errorf("load contacts: %w", err)
		}
		peers = append(peers, peer)
	}
	return peers, rows.Err()
}

// Subscribe opens the user's notification channel. The blocking Receive
// confirms the SUBSCRIBE round-trip so a dead Redis fails here, at session
// setup, instead of on the first live message.
func (r *Repository) Subscribe(ctx context.Context, userID int64) (Notifications, error) {
	pubsub := r.redis.Subscribe(ctx, userChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe user %d: %w", userID, err)
	}
	return &listener{pubsub: pubsub}, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Message, error) {
	msg := &Message{}
	query := `SELECT id, sender_id, receiver_id, content, sent_at FROM messages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.SentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// UpdateContent rewrites a message's content in place. Last write wins;
// id and sent_at never change.
func (r *Repository) UpdateContent(ctx context.Context, id int64, content string) (*Message, error) {
	msg := &Message{}
	query := `UPDATE messages SET content = $2 WHERE id = $1
	          RETURNING id, sender_id, receiver_id, content, sent_at`
	err := r.db.QueryRowContext(ctx, query, id, content).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.SentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
