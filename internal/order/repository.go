package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("order not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// image_urls lives in a JSONB column; the round trip through encoding/json
// keeps the repository free of driver-specific array types.
func encodeURLs(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	return json.Marshal(urls)
}

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	var rawURLs []byte
	err := row.Scan(&o.ID, &o.UserID, &o.OrderName, &o.OrderDesc, &o.Price, &rawURLs, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawURLs, &o.ImageURLs); err != nil {
		return nil, fmt.Errorf("decode image urls: %w", err)
	}
	return o, nil
}

func (r *Repository) Create(ctx context.Context, userID int64, in OrderInput) (*Order, error) {
	urls, err := encodeURLs(in.ImageURLs)
	if err != nil {
		return nil, err
	}
	query := `INSERT INTO orders (user_id, order_name, order_desc, price, image_urls)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, user_id, order_name, order_desc, price, image_urls, created_at`
	return scanOrder(r.db.QueryRowContext(ctx, query, userID, in.OrderName, in.OrderDesc, in.Price, urls))
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT id, user_id, order_name, order_desc, price, image_urls, created_at
	          FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	query := `SELECT id, user_id, order_name, order_desc, price, image_urls, created_at
	          FROM orders WHERE user_id = $1 ORDER BY id DESC`
	return r.list(ctx, query, userID)
}

func (r *Repository) Search(ctx context.Context, term string) ([]*Order, error) {
	query := `SELECT id, user_id, order_name, order_desc, price, image_urls, created_at
	          FROM orders WHERE order_name ILIKE $1 ORDER BY id DESC LIMIT 50`
	return r.list(ctx, query, "%"+term+"%")
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *Repository) Update(ctx context.Context, id int64, in OrderInput) (*Order, error) {
	urls, err := encodeURLs(in.ImageURLs)
	if err != nil {
		return nil, err
	}
	query := `UPDATE orders SET order_name = $2, order_desc = $3, price = $4, image_urls = $5
	          WHERE id = $1
	          RETURNING id, user_id, order_name, order_desc, price, image_urls, created_at`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id, in.OrderName, in.OrderDesc, in.Price, urls))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
