package offer

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("offer not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, orderID, userID int64) (*Offer, error) {
	o := &Offer{}
	query := `INSERT INTO offers (order_id, user_id) VALUES ($1, $2)
	          RETURNING id, order_id, user_id, status, created_at`
	err := r.db.QueryRowContext(ctx, query, orderID, userID).
		Scan(&o.ID, &o.OrderID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Offer, error) {
	o := &Offer{}
	query := `SELECT id, order_id, user_id, status, created_at FROM offers WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&o.ID, &o.OrderID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Offer, error) {
	query := `SELECT id, order_id, user_id, status, created_at
	          FROM offers WHERE user_id = $1 ORDER BY id DESC`
	return r.list(ctx, query, userID)
}

func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]*Offer, error) {
	query := `SELECT id, order_id, user_id, status, created_at
	          FROM offers WHERE order_id = $1 ORDER BY id DESC`
	return r.list(ctx, query, orderID)
}

func (r *Repository) list(ctx context.Context, query string, arg int64) ([]*Offer, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*Offer
	for rows.Next() {
		o := &Offer{}
		if err := rows.Scan(&o.ID, &o.OrderID, &o.UserID, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) (*Offer, error) {
	o := &Offer{}
	query := `UPDATE offers SET status = $2 WHERE id = $1
	          RETURNING id, order_id, user_id, status, created_at`
	err := r.db.QueryRowContext(ctx, query, id, status).
		Scan(&o.ID, &o.OrderID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
