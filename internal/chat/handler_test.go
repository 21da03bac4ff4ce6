package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go-market/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore notes the order of store operations so tests can pin down
// the subscribe-before-history guarantee.
type recordingStore struct {
	*fakeStore
	mu    sync.Mutex
	calls []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{fakeStore: newFakeStore()}
}

func (r *recordingStore) record(op string) {
	r.mu.Lock()
	r.calls = append(r.calls, op)
	r.mu.Unlock()
}

func (r *recordingStore) callList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingStore) Subscribe(ctx context.Context, userID int64) (Notifications, error) {
	r.record("subscribe")
	return r.fakeStore.Subscribe(ctx, userID)
}

func (r *recordingStore) Contacts(ctx context.Context, userID int64) ([]int64, error) {
	r.record("contacts")
	return r.fakeStore.Contacts(ctx, userID)
}

func (r *recordingStore) History(ctx context.Context, userA, userB int64) ([]*Message, error) {
	r.record("history")
	return r.fakeStore.History(ctx, userA, userB)
}

// identified wraps a handler the way the JWT middleware would, without
// needing real tokens.
func identified(userID int64, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(middleware.WithIdentity(r.Context(), userID, "tester")))
	})
}

func TestServeWsRejectsAnonymous(t *testing.T) {
	h := NewHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	h.ServeWs(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// The subscription must be open before the first history read; otherwise a
// message landing in between would be invisible to both.
func TestServeWsSubscribesBeforeHistory(t *testing.T) {
	store := newRecordingStore()
	store.seed(10, 1, 2, "first")

	h := NewHandler(store)
	srv := httptest.NewServer(identified(2, h.ServeWs))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Replay reaching the client proves contacts+history already ran.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg := &Message{}
	require.NoError(t, conn.ReadJSON(msg))
	assert.Equal(t, int64(10), msg.ID)

	calls := store.callList()
	require.NotEmpty(t, calls)
	assert.Equal(t, "subscribe", calls[0], "subscription must precede every store read, got %v", calls)
	assert.Contains(t, calls, "history")
}

func TestSendMessageUsesAuthenticatedSender(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store)

	// sender_id in the payload must be ignored.
	body, _ := json.Marshal(map[string]any{"sender_id": 99, "receiver_id": 2, "content": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	identified(1, h.SendMessage).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	created := &Message{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), created))
	assert.Equal(t, int64(1), created.SenderID)
	assert.Equal(t, int64(2), created.ReceiverID)
	assert.NotZero(t, created.ID)
}

func TestUpdateMessageOnlyForSender(t *testing.T) {
	store := newFakeStore()
	store.seed(10, 1, 2, "original")

	h := NewHandler(store)
	r := chi.NewRouter()
	r.Post("/api/message/{id}", h.UpdateMessage)

	body, _ := json.Marshal(map[string]string{"content": "edited"})

	// Not the sender: forbidden, content untouched.
	req := httptest.NewRequest(http.MethodPost, "/api/message/10", bytes.NewReader(body)).
		WithContext(middleware.WithIdentity(context.Background(), 2, "eve"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The sender: allowed.
	req = httptest.NewRequest(http.MethodPost, "/api/message/10", bytes.NewReader(body)).
		WithContext(middleware.WithIdentity(context.Background(), 1, "alice"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	msg, err := store.GetByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "edited", msg.Content)
}

func TestDeleteMessage(t *testing.T) {
	store := newFakeStore()
	store.seed(10, 1, 2, "doomed")

	h := NewHandler(store)
	r := chi.NewRouter()
	r.Delete("/api/message/{id}", h.DeleteMessage)

	// Unknown id: 404.
	req := httptest.NewRequest(http.MethodDelete, "/api/message/999", nil).
		WithContext(middleware.WithIdentity(context.Background(), 1, "alice"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Sender deletes their own message.
	req = httptest.NewRequest(http.MethodDelete, "/api/message/10", nil).
		WithContext(middleware.WithIdentity(context.Background(), 1, "alice"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.GetByID(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHistoryAndContacts(t *testing.T) {
	store := newFakeStore()
	store.seed(10, 1, 2, "a")
	store.seed(11, 2, 1, "b")
	store.seed(12, 3, 1, "c")

	h := NewHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/messages?peer=2", nil)
	rec := httptest.NewRecorder()
	identified(1, h.GetHistory).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []*Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(10), msgs[0].ID)
	assert.Equal(t, int64(11), msgs[1].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	rec = httptest.NewRecorder()
	identified(1, h.GetContacts).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var peers []int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peers))
	assert.ElementsMatch(t, []int64{2, 3}, peers)
}
