package order

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go-market/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	repo     *Repository
	uploader Uploader
}

func NewHandler(repo *Repository, uploader Uploader) *Handler {
	return &Handler{repo: repo, uploader: uploader}
}

// orderBody is the creation payload; images arrive base64-encoded and are
// relayed to the image host before the row is written.
type orderBody struct {
	OrderName string   `json:"order_name"`
	OrderDesc string   `json:"order_desc"`
	Price     float64  `json:"price"`
	Images    []string `json:"images"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	imageURLs := make([]string, 0, len(body.Images))
	for _, img := range body.Images {
		decoded, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			http.Error(w, "invalid image encoding", http.StatusBadRequest)
			return
		}
		url, err := h.uploader.Upload(r.Context(), decoded)
		if err != nil {
			http.Error(w, "image upload failed", http.StatusInternalServerError)
			return
		}
		imageURLs = append(imageURLs, url)
	}

	o, err := h.repo.Create(r.Context(), userID, OrderInput{
		OrderName: body.OrderName,
		OrderDesc: body.OrderDesc,
		Price:     body.Price,
		ImageURLs: imageURLs,
	})
	if err != nil {
		http.Error(w, "could not create order", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load order", http.StatusInternalServerError)
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

	orders, err := h.repo.ListByUser(r.Context(), id)
	if err != nil {
		http.Error(w, "could not load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*Order{}
	}
	json.NewEncoder(w).Encode(orders)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*Order{}
	}
	json.NewEncoder(w).Encode(orders)
}

type orderUpdateBody struct {
	OrderName string  `json:"order_name"`
	OrderDesc string  `json:"order_desc"`
	Price     float64 `json:"price"`
}

// Update edits name/description/price of the caller's own order.
// Images are untouched.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var body orderUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load order", http.StatusInternalServerError)
		return
	}
	if o.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, OrderInput{
		OrderName: body.OrderName,
		OrderDesc: body.OrderDesc,
		Price:     body.Price,
		ImageURLs: o.ImageURLs,
	})
	if err != nil {
		http.Error(w, "could not update order", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not load order", http.StatusInternalServerError)
		return
	}
	if o.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		http.Error(w, "could not delete order", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
