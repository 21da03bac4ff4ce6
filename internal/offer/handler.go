package offer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"go-market/internal/middleware"
	"go-market/internal/order"
	"go-market/internal/user"

	"github.com/go-chi/chi/v5"
)

// OrderStore and UserStore are the lookups needed to authorize status
// changes and to address the notification mail.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

type Mailer interface {
	OfferCreated(recipient, offerer, orderName string) error
}

type Handler struct {
	repo   *Repository
	orders OrderStore
	users  UserStore
	mail   Mailer
}

func NewHandler(repo *Repository, orders OrderStore, users UserStore, mail Mailer) *Handler {
	return &Handler{repo: repo, orders: orders, users: users, mail: mail}
}

type offerBody struct {
	OrderID int64 `json:"order_id"`
}

// Create records an offer from the caller on an order and mails the order's
// owner. Mail failure is logged, never surfaced — the offer already exists.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body offerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orders.GetByID(r.Context(), body.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load order", http.StatusInternalServerError)
		return
	}

	created, err := h.repo.Create(r.Context(), body.OrderID, userID)
	if err != nil {
		http.Error(w, "could not create offer", http.StatusInternalServerError)
		return
	}

	h.notifyOwner(r.Context(), o, userID)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) notifyOwner(ctx context.Context, o *order.Order, offererID int64) {
	offerer, err := h.users.GetByID(ctx, offererID)
	if err != nil {
		log.Printf("offer notice: load offerer %d: %v", offererID, err)
		return
	}
	owner, err := h.users.GetByID(ctx, o.UserID)
	if err != nil {
		log.Printf("offer notice: load owner %d: %v", o.UserID, err)
		return
	}
	if err := h.mail.OfferCreated(owner.Email, offerer.Username, o.OrderName); err != nil {
		log.Printf("offer notice: send to %s: %v", owner.Email, err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "offer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load offer", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	offers, err := h.repo.ListByUser(r.Context(), id)
	if err != nil {
		http.Error(w, "could not load offers", http.StatusInternalServerError)
		return
	}
	if offers == nil {
		offers = []*Offer{}
	}
	json.NewEncoder(w).Encode(offers)
}

func (h *Handler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	offers, err := h.repo.ListByOrder(r.Context(), id)
	if err != nil {
		http.Error(w, "could not load offers", http.StatusInternalServerError)
		return
	}
	if offers == nil {
		offers = []*Offer{}
	}
	json.NewEncoder(w).Encode(offers)
}

type statusBody struct {
	Status string `json:"status"`
}

// UpdateStatus lets the owner of the order the offer targets accept or
// reject it. Nobody else may change the status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	var body statusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "offer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load offer", http.StatusInternalServerError)
		return
	}

	ord, err := h.orders.GetByID(r.Context(), o.OrderID)
	if err != nil {
		http.Error(w, "could not load order", http.StatusInternalServerError)
		return
	}
	if ord.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.repo.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		http.Error(w, "could not update offer", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(updated)
}

// Delete lets the offerer withdraw their own offer.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid offer id", http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "offer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load offer", http.StatusInternalServerError)
		return
	}
	if o.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		http.Error(w, "could not delete offer", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
