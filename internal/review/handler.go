package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go-market/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// store is what the handler needs from the repository.
type store interface {
	Create(ctx context.Context, rev *Review) (*Review, error)
	GetByID(ctx context.Context, id int64) (*Review, error)
	ListForUser(ctx context.Context, userID int64) ([]*Review, error)
	ListByUser(ctx context.Context, userID int64) ([]*Review, error)
	Update(ctx context.Context, id int64, content string, rating int) (*Review, error)
	Delete(ctx context.Context, id int64) error
}

type Handler struct {
	repo store
}

func NewHandler(repo store) *Handler {
	return &Handler{repo: repo}
}

type reviewBody struct {
	UserReviewed int64  `json:"user_reviewed"`
	Rating       int    `json:"rating"`
	Content      string `json:"content"`
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !validRating(body.Rating) {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	rev, err := h.repo.Create(r.Context(), &Review{
		UserReviewed:  body.UserReviewed,
		UserReviewing: userID,
		Rating:        body.Rating,
		Content:       body.Content,
	})
	if err != nil {
		http.Error(w, "could not create review", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rev)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid review id", http.StatusBadRequest)
		return
	}

	rev, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load review", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(rev)
}

// ListForUser returns the reviews a user has received.
func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	reviews, err := h.repo.ListForUser(r.Context(), id)
	if err != nil {
		http.Error(w, "could not load reviews", http.StatusInternalServerError)
		return
	}
	if reviews == nil {
		reviews = []*Review{}
	}
	json.NewEncoder(w).Encode(reviews)
}

// ListByUser returns the reviews a user has written.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	reviews, err := h.repo.ListByUser(r.Context(), id)
	if err != nil {
		http.Error(w, "could not load reviews", http.StatusInternalServerError)
		return
	}
	if reviews == nil {
		reviews = []*Review{}
	}
	json.NewEncoder(w).Encode(reviews)
}

type reviewUpdateBody struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

// Update lets the author revise their own review.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid review id", http.StatusBadRequest)
		return
	}

	var body reviewUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !validRating(body.Rating) {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	rev, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load review", http.StatusInternalServerError)
		return
	}
	if rev.UserReviewing != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, body.Content, body.Rating)
	if err != nil {
		http.Error(w, "could not update review", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(updated)
}

// Delete lets the author remove their own review.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid review id", http.StatusBadRequest)
		return
	}

	rev, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load review", http.StatusInternalServerError)
		return
	}
	if rev.UserReviewing != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		http.Error(w, "could not delete review", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
